package service

import (
	"context"

	"github.com/segyhp/emi-engine/internal/domain"
)

// CourseCatalog provides the EMI policy of a course
type CourseCatalog interface {
	GetCourseEMIPolicy(ctx context.Context, courseID string) (*domain.CourseEMIPolicy, error)
}

// PaymentVerifier asks the payment gateway for the status of a transaction
type PaymentVerifier interface {
	VerifyPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentVerification, error)
}

// Notifier delivers a templated message to a user
type Notifier interface {
	SendNotification(ctx context.Context, userID string, tmpl domain.NotificationTemplate, data map[string]interface{}) error
}

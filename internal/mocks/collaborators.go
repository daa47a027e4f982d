package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/emi-engine/internal/domain"
)

type MockCourseCatalog struct {
	mock.Mock
}

func (m *MockCourseCatalog) GetCourseEMIPolicy(ctx context.Context, courseID string) (*domain.CourseEMIPolicy, error) {
	args := m.Called(ctx, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CourseEMIPolicy), args.Error(1)
}

type MockPaymentVerifier struct {
	mock.Mock
}

func (m *MockPaymentVerifier) VerifyPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentVerification, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentVerification), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendNotification(ctx context.Context, userID string, tmpl domain.NotificationTemplate, data map[string]interface{}) error {
	args := m.Called(ctx, userID, tmpl, data)
	return args.Error(0)
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/emi-engine/internal/domain"
)

// AgreementRepository persists EMI agreements and their payment events.
// Lookups that match nothing return sql.ErrNoRows.
type AgreementRepository interface {
	// Create inserts the agreement and its initial payment events.
	// Returns ErrDuplicateAgreement when (user, course, originating transaction) exists.
	Create(ctx context.Context, agreement *domain.Agreement) error

	// GetByID retrieves an agreement with its payment events
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agreement, error)

	// FindByUserCourseTxn retrieves the agreement created by a specific transaction
	FindByUserCourseTxn(ctx context.Context, userID, courseID, txnID string) (*domain.Agreement, error)

	// FindBySuccessfulTxn retrieves the agreement, in any status, holding a success event for the transaction
	FindBySuccessfulTxn(ctx context.Context, txnID string) (*domain.Agreement, error)

	// FindOpenByUserCourse retrieves the active or overdue agreement of a user for a course
	FindOpenByUserCourse(ctx context.Context, userID, courseID string) (*domain.Agreement, error)

	// FindActiveByUser lists the open agreements of a user
	FindActiveByUser(ctx context.Context, userID string) ([]*domain.Agreement, error)

	// List lists agreements matching the filter, newest first
	List(ctx context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error)

	// FindDueWithinWindow lists agreements whose next due date is in [from, to)
	FindDueWithinWindow(ctx context.Context, from, to time.Time, statuses []domain.AgreementStatus) ([]*domain.Agreement, error)

	// AppendPaymentEvent records an event without touching the agreement's progress
	AppendPaymentEvent(ctx context.Context, agreementID uuid.UUID, event *domain.PaymentEvent) error

	// ApplyAdvance records the success event and advances the agreement atomically.
	// Returns ErrConcurrentUpdate when installments_remaining no longer matches
	// and ErrAlreadyProcessed when the transaction was already recorded.
	ApplyAdvance(ctx context.Context, advance domain.Advance) error

	// SetStatus transitions the agreement when it still has the expected status and progress.
	// Returns ErrConcurrentUpdate otherwise.
	SetStatus(ctx context.Context, change domain.StatusChange) error

	// Stats aggregates agreement counts and the outstanding amount
	Stats(ctx context.Context) (*domain.AgreementStats, error)
}

// OfflineEMIRepository persists manually entered EMI records
type OfflineEMIRepository interface {
	Create(ctx context.Context, record *domain.OfflineEMIRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIRecord, error)
	List(ctx context.Context, limit, offset int) ([]*domain.OfflineEMIRecord, error)
	Update(ctx context.Context, record *domain.OfflineEMIRecord) error
	// IncrementPaid adds one paid month while the record is below its total
	IncrementPaid(ctx context.Context, id uuid.UUID, maxPaid int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

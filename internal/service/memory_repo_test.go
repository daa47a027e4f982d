package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

// memoryAgreementRepository mirrors the conditional-update semantics of the
// postgres repository so concurrent reconciliation can be exercised in tests.
type memoryAgreementRepository struct {
	mu         sync.Mutex
	agreements map[uuid.UUID]*domain.Agreement
}

func newMemoryAgreementRepository(seed ...*domain.Agreement) *memoryAgreementRepository {
	r := &memoryAgreementRepository{agreements: make(map[uuid.UUID]*domain.Agreement)}
	for _, a := range seed {
		r.agreements[a.ID] = clone(a)
	}
	return r
}

func clone(a *domain.Agreement) *domain.Agreement {
	c := *a
	c.Payments = append([]domain.PaymentEvent(nil), a.Payments...)
	if a.NextDueDate != nil {
		d := *a.NextDueDate
		c.NextDueDate = &d
	}
	return &c
}

func (r *memoryAgreementRepository) Create(_ context.Context, agreement *domain.Agreement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agreements {
		if a.UserID == agreement.UserID && a.CourseID == agreement.CourseID && a.OriginatingTransactionID == agreement.OriginatingTransactionID {
			return customError.ErrDuplicateAgreement
		}
	}
	for _, p := range agreement.Payments {
		if p.Outcome == domain.PaymentOutcomeSuccess && r.holderOf(p.TransactionID) != nil {
			return customError.ErrAlreadyProcessed
		}
	}
	r.agreements[agreement.ID] = clone(agreement)
	return nil
}

func (r *memoryAgreementRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agreements[id]; ok {
		return clone(a), nil
	}
	return nil, sql.ErrNoRows
}

func (r *memoryAgreementRepository) FindByUserCourseTxn(_ context.Context, userID, courseID, txnID string) (*domain.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agreements {
		if a.UserID == userID && a.CourseID == courseID && a.OriginatingTransactionID == txnID {
			return clone(a), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryAgreementRepository) FindBySuccessfulTxn(_ context.Context, txnID string) (*domain.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.holderOf(txnID); a != nil {
		return clone(a), nil
	}
	return nil, sql.ErrNoRows
}

// holderOf mirrors the unique index on successful transaction ids; callers hold mu
func (r *memoryAgreementRepository) holderOf(txnID string) *domain.Agreement {
	for _, a := range r.agreements {
		if a.HasProcessed(txnID) {
			return a
		}
	}
	return nil
}

func (r *memoryAgreementRepository) FindOpenByUserCourse(_ context.Context, userID, courseID string) (*domain.Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agreements {
		if a.UserID == userID && a.CourseID == courseID && a.Status.IsOpen() {
			return clone(a), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryAgreementRepository) FindActiveByUser(_ context.Context, userID string) ([]*domain.Agreement, error) {
	return r.filter(func(a *domain.Agreement) bool { return a.UserID == userID && a.Status.IsOpen() }), nil
}

func (r *memoryAgreementRepository) List(_ context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error) {
	return r.filter(func(a *domain.Agreement) bool { return filter.UserID == "" || a.UserID == filter.UserID }), nil
}

func (r *memoryAgreementRepository) FindDueWithinWindow(_ context.Context, from, to time.Time, statuses []domain.AgreementStatus) ([]*domain.Agreement, error) {
	return r.filter(func(a *domain.Agreement) bool {
		if a.NextDueDate == nil || a.NextDueDate.Before(from) || !a.NextDueDate.Before(to) {
			return false
		}
		for _, s := range statuses {
			if a.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *memoryAgreementRepository) AppendPaymentEvent(_ context.Context, agreementID uuid.UUID, event *domain.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[agreementID]
	if !ok {
		return sql.ErrNoRows
	}
	a.Payments = append(a.Payments, *event)
	return nil
}

func (r *memoryAgreementRepository) ApplyAdvance(_ context.Context, advance domain.Advance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[advance.AgreementID]
	if !ok {
		return customError.ErrConcurrentUpdate
	}
	if r.holderOf(advance.Event.TransactionID) != nil {
		return customError.ErrAlreadyProcessed
	}
	if a.InstallmentsRemaining != advance.ExpectedRemaining || !a.Status.IsOpen() {
		return customError.ErrConcurrentUpdate
	}
	a.Apply(advance)
	return nil
}

func (r *memoryAgreementRepository) SetStatus(_ context.Context, change domain.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[change.AgreementID]
	if !ok || a.Status != change.From || a.InstallmentsRemaining != change.ExpectedRemaining {
		return customError.ErrConcurrentUpdate
	}
	a.ApplyStatus(change, time.Now())
	return nil
}

func (r *memoryAgreementRepository) Stats(_ context.Context) (*domain.AgreementStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.AgreementStats{ByStatus: make(map[domain.AgreementStatus]int)}
	for _, a := range r.agreements {
		stats.Total++
		stats.ByStatus[a.Status]++
		if a.Status.IsOpen() {
			stats.TotalOutstanding = stats.TotalOutstanding.Add(a.Outstanding())
		}
	}
	return stats, nil
}

func (r *memoryAgreementRepository) filter(keep func(*domain.Agreement) bool) []*domain.Agreement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Agreement
	for _, a := range r.agreements {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	return out
}

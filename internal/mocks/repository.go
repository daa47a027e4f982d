package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/emi-engine/internal/domain"
)

type MockAgreementRepository struct {
	mock.Mock
}

func (m *MockAgreementRepository) Create(ctx context.Context, agreement *domain.Agreement) error {
	args := m.Called(ctx, agreement)
	return args.Error(0)
}

func (m *MockAgreementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agreement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) FindByUserCourseTxn(ctx context.Context, userID, courseID, txnID string) (*domain.Agreement, error) {
	args := m.Called(ctx, userID, courseID, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) FindBySuccessfulTxn(ctx context.Context, txnID string) (*domain.Agreement, error) {
	args := m.Called(ctx, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) FindOpenByUserCourse(ctx context.Context, userID, courseID string) (*domain.Agreement, error) {
	args := m.Called(ctx, userID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) FindActiveByUser(ctx context.Context, userID string) ([]*domain.Agreement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) List(ctx context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) FindDueWithinWindow(ctx context.Context, from, to time.Time, statuses []domain.AgreementStatus) ([]*domain.Agreement, error) {
	args := m.Called(ctx, from, to, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Agreement), args.Error(1)
}

func (m *MockAgreementRepository) AppendPaymentEvent(ctx context.Context, agreementID uuid.UUID, event *domain.PaymentEvent) error {
	args := m.Called(ctx, agreementID, event)
	return args.Error(0)
}

func (m *MockAgreementRepository) ApplyAdvance(ctx context.Context, advance domain.Advance) error {
	args := m.Called(ctx, advance)
	return args.Error(0)
}

func (m *MockAgreementRepository) SetStatus(ctx context.Context, change domain.StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockAgreementRepository) Stats(ctx context.Context) (*domain.AgreementStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AgreementStats), args.Error(1)
}

type MockOfflineEMIRepository struct {
	mock.Mock
}

func (m *MockOfflineEMIRepository) Create(ctx context.Context, record *domain.OfflineEMIRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockOfflineEMIRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OfflineEMIRecord), args.Error(1)
}

func (m *MockOfflineEMIRepository) List(ctx context.Context, limit, offset int) ([]*domain.OfflineEMIRecord, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OfflineEMIRecord), args.Error(1)
}

func (m *MockOfflineEMIRepository) Update(ctx context.Context, record *domain.OfflineEMIRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockOfflineEMIRepository) IncrementPaid(ctx context.Context, id uuid.UUID, maxPaid int) error {
	args := m.Called(ctx, id, maxPaid)
	return args.Error(0)
}

func (m *MockOfflineEMIRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

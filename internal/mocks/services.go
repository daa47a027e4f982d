package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/emi-engine/internal/domain"
)

type MockAgreementService struct {
	mock.Mock
}

func (m *MockAgreementService) ListForUser(ctx context.Context, userID string, openOnly bool) ([]*domain.Agreement, error) {
	args := m.Called(ctx, userID, openOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Agreement), args.Error(1)
}

func (m *MockAgreementService) GetForUser(ctx context.Context, userID string, id uuid.UUID) (*domain.Agreement, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agreement), args.Error(1)
}

func (m *MockAgreementService) ListAll(ctx context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Agreement), args.Error(1)
}

func (m *MockAgreementService) Stats(ctx context.Context) (*domain.AgreementStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AgreementStats), args.Error(1)
}

func (m *MockAgreementService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Agreement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agreement), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconcileResult), args.Error(1)
}

type MockOfflineService struct {
	mock.Mock
}

func (m *MockOfflineService) Create(ctx context.Context, req *domain.OfflineEMIRequest) (*domain.OfflineEMIView, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OfflineEMIView), args.Error(1)
}

func (m *MockOfflineService) Get(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OfflineEMIView), args.Error(1)
}

func (m *MockOfflineService) List(ctx context.Context, limit, offset int) ([]*domain.OfflineEMIView, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OfflineEMIView), args.Error(1)
}

func (m *MockOfflineService) Update(ctx context.Context, id uuid.UUID, req *domain.OfflineEMIRequest) (*domain.OfflineEMIView, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OfflineEMIView), args.Error(1)
}

func (m *MockOfflineService) RecordPayment(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OfflineEMIView), args.Error(1)
}

func (m *MockOfflineService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Run(ctx context.Context) (*domain.SweepReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SweepReport), args.Error(1)
}

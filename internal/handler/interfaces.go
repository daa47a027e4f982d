package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/segyhp/emi-engine/internal/domain"
)

type AgreementService interface {
	ListForUser(ctx context.Context, userID string, openOnly bool) ([]*domain.Agreement, error)
	GetForUser(ctx context.Context, userID string, id uuid.UUID) (*domain.Agreement, error)
	ListAll(ctx context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error)
	Stats(ctx context.Context) (*domain.AgreementStats, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Agreement, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error)
}

type OfflineService interface {
	Create(ctx context.Context, req *domain.OfflineEMIRequest) (*domain.OfflineEMIView, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIView, error)
	List(ctx context.Context, limit, offset int) ([]*domain.OfflineEMIView, error)
	Update(ctx context.Context, id uuid.UUID, req *domain.OfflineEMIRequest) (*domain.OfflineEMIView, error)
	RecordPayment(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIView, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Sweeper interface {
	Run(ctx context.Context) (*domain.SweepReport, error)
}

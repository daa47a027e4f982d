package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/internal/repository"
	"github.com/segyhp/emi-engine/internal/schedule"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

// OfflineService manages manually tracked EMI records. Every record is
// returned together with its derived schedule.
type OfflineService struct {
	repo   repository.OfflineEMIRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewOfflineService(repo repository.OfflineEMIRepository, logger *zap.Logger) *OfflineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfflineService{repo: repo, logger: logger, now: time.Now}
}

func (s *OfflineService) Create(ctx context.Context, req *domain.OfflineEMIRequest) (*domain.OfflineEMIView, error) {
	now := s.now()
	record := &domain.OfflineEMIRecord{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyRequest(record, req)

	view, err := s.view(record)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.logger.Info("offline emi record created",
		zap.String("id", record.ID.String()),
		zap.Int("installments", view.Schedule.TotalInstallments))

	return view, nil
}

func (s *OfflineService) Get(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIView, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(record)
}

func (s *OfflineService) List(ctx context.Context, limit, offset int) ([]*domain.OfflineEMIView, error) {
	records, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	views := make([]*domain.OfflineEMIView, 0, len(records))
	for _, record := range records {
		view, err := s.view(record)
		if err != nil {
			// a stored record with broken terms is still listed, without a schedule
			s.logger.Warn("offline record has invalid terms", zap.String("id", record.ID.String()), zap.Error(err))
			view = &domain.OfflineEMIView{OfflineEMIRecord: record}
		}
		views = append(views, view)
	}

	return views, nil
}

// Update replaces the terms and progress of a record. Months paid must stay within 0 and the total.
func (s *OfflineService) Update(ctx context.Context, id uuid.UUID, req *domain.OfflineEMIRequest) (*domain.OfflineEMIView, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	applyRequest(record, req)
	record.UpdatedAt = s.now()

	view, err := s.view(record)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, record); err != nil {
		if errors.Is(err, customError.ErrOfflineRecordNotFound) {
			return nil, err
		}
		return nil, customError.WrapDatabaseError(err)
	}

	return view, nil
}

// RecordPayment marks one more month as paid
func (s *OfflineService) RecordPayment(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIView, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	current, err := s.view(record)
	if err != nil {
		return nil, err
	}
	if current.Schedule.RemainingInstallments <= 0 {
		return nil, customError.WrapInvalidTerms("all installments are already paid")
	}

	if err := s.repo.IncrementPaid(ctx, id, current.Schedule.TotalInstallments); err != nil {
		if errors.Is(err, customError.ErrConcurrentUpdate) {
			return nil, customError.WrapInvalidTerms("all installments are already paid")
		}
		return nil, customError.WrapDatabaseError(err)
	}

	return s.Get(ctx, id)
}

func (s *OfflineService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, customError.ErrOfflineRecordNotFound) {
			return err
		}
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (s *OfflineService) get(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapOfflineRecordNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return record, nil
}

func (s *OfflineService) view(record *domain.OfflineEMIRecord) (*domain.OfflineEMIView, error) {
	sched, err := schedule.Compute(record.Terms(), s.now())
	if err != nil {
		return nil, err
	}
	return &domain.OfflineEMIView{OfflineEMIRecord: record, Schedule: sched}, nil
}

func applyRequest(record *domain.OfflineEMIRecord, req *domain.OfflineEMIRequest) {
	record.StudentName = req.StudentName
	record.StudentAddress = req.StudentAddress
	record.CenterAddress = req.CenterAddress
	record.CourseName = req.CourseName
	record.TotalAmount = req.TotalAmount
	record.InstallmentAmount = req.InstallmentAmount
	record.DayOfMonth = req.DayOfMonth
	record.InstallmentsPaid = req.InstallmentsPaid
}

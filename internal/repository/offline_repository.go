package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

const offlineColumns = `id, student_name, student_address, center_address, course_name, total_amount,
	installment_amount, day_of_month, installments_paid, created_at, updated_at`

type offlineEMIRepository struct {
	db *sqlx.DB
}

func NewOfflineEMIRepository(db *sqlx.DB) OfflineEMIRepository {
	return &offlineEMIRepository{db: db}
}

func (r *offlineEMIRepository) Create(ctx context.Context, record *domain.OfflineEMIRecord) error {
	query := `
		INSERT INTO offline_emi_records (` + offlineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.StudentName,
		record.StudentAddress,
		record.CenterAddress,
		record.CourseName,
		record.TotalAmount,
		record.InstallmentAmount,
		record.DayOfMonth,
		record.InstallmentsPaid,
		record.CreatedAt,
		record.UpdatedAt,
	)

	return err
}

func (r *offlineEMIRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OfflineEMIRecord, error) {
	query := `SELECT ` + offlineColumns + ` FROM offline_emi_records WHERE id = $1`

	var record domain.OfflineEMIRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *offlineEMIRepository) List(ctx context.Context, limit, offset int) ([]*domain.OfflineEMIRecord, error) {
	query := `
		SELECT ` + offlineColumns + `
		FROM offline_emi_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	if limit <= 0 {
		limit = defaultListLimit
	}

	var records []*domain.OfflineEMIRecord
	if err := r.db.SelectContext(ctx, &records, query, limit, offset); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *offlineEMIRepository) Update(ctx context.Context, record *domain.OfflineEMIRecord) error {
	query := `
		UPDATE offline_emi_records
		SET student_name = $2, student_address = $3, center_address = $4, course_name = $5,
		    total_amount = $6, installment_amount = $7, day_of_month = $8, installments_paid = $9, updated_at = $10
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.StudentName,
		record.StudentAddress,
		record.CenterAddress,
		record.CourseName,
		record.TotalAmount,
		record.InstallmentAmount,
		record.DayOfMonth,
		record.InstallmentsPaid,
		record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return notFoundIfNoRows(result, record.ID)
}

func (r *offlineEMIRepository) IncrementPaid(ctx context.Context, id uuid.UUID, maxPaid int) error {
	query := `
		UPDATE offline_emi_records
		SET installments_paid = installments_paid + 1, updated_at = $2
		WHERE id = $1 AND installments_paid < $3
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now(), maxPaid)
	if err != nil {
		return err
	}

	return expectOneRow(result)
}

func (r *offlineEMIRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM offline_emi_records WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return notFoundIfNoRows(result, id)
}

func notFoundIfNoRows(result interface{ RowsAffected() (int64, error) }, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return customError.WrapOfflineRecordNotFound(id.String())
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

const (
	agreementColumns = `id, user_id, course_id, originating_transaction_id, total_amount, installment_amount,
		total_installments, installments_remaining, next_due_date, processing_fee, status, created_at, updated_at`

	paymentColumns = `id, agreement_id, paid_at, amount, transaction_id, outcome, created_at`

	uniqueViolation = "23505"

	defaultListLimit = 50
)

type agreementRepository struct {
	db *sqlx.DB
}

func NewAgreementRepository(db *sqlx.DB) AgreementRepository {
	return &agreementRepository{db: db}
}

func (r *agreementRepository) Create(ctx context.Context, agreement *domain.Agreement) error {
	query := `
		INSERT INTO emi_agreements (` + agreementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query,
		agreement.ID,
		agreement.UserID,
		agreement.CourseID,
		agreement.OriginatingTransactionID,
		agreement.TotalAmount,
		agreement.InstallmentAmount,
		agreement.TotalInstallments,
		agreement.InstallmentsRemaining,
		agreement.NextDueDate,
		agreement.ProcessingFee,
		agreement.Status,
		agreement.CreatedAt,
		agreement.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return customError.ErrDuplicateAgreement
		}
		return err
	}

	for i := range agreement.Payments {
		if err := insertPayment(ctx, tx, &agreement.Payments[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *agreementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM emi_agreements WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *agreementRepository) FindByUserCourseTxn(ctx context.Context, userID, courseID, txnID string) (*domain.Agreement, error) {
	query := `
		SELECT ` + agreementColumns + `
		FROM emi_agreements
		WHERE user_id = $1 AND course_id = $2 AND originating_transaction_id = $3
	`
	return r.getOne(ctx, query, userID, courseID, txnID)
}

func (r *agreementRepository) FindBySuccessfulTxn(ctx context.Context, txnID string) (*domain.Agreement, error) {
	query := `
		SELECT ` + agreementColumns + `
		FROM emi_agreements
		WHERE id = (
			SELECT agreement_id FROM emi_payments
			WHERE transaction_id = $1 AND outcome = 'success'
			LIMIT 1
		)
	`
	return r.getOne(ctx, query, txnID)
}

func (r *agreementRepository) FindOpenByUserCourse(ctx context.Context, userID, courseID string) (*domain.Agreement, error) {
	query := `
		SELECT ` + agreementColumns + `
		FROM emi_agreements
		WHERE user_id = $1 AND course_id = $2 AND status IN ('active', 'overdue')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID, courseID)
}

func (r *agreementRepository) FindActiveByUser(ctx context.Context, userID string) ([]*domain.Agreement, error) {
	query := `
		SELECT ` + agreementColumns + `
		FROM emi_agreements
		WHERE user_id = $1 AND status IN ('active', 'overdue')
		ORDER BY created_at DESC
	`
	return r.getMany(ctx, query, userID)
}

func (r *agreementRepository) List(ctx context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error) {
	query := `
		SELECT ` + agreementColumns + `
		FROM emi_agreements
		WHERE ($1 = '' OR user_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	return r.getMany(ctx, query, filter.UserID, pq.Array(statusStrings(filter.Statuses)), limit, filter.Offset)
}

func (r *agreementRepository) FindDueWithinWindow(ctx context.Context, from, to time.Time, statuses []domain.AgreementStatus) ([]*domain.Agreement, error) {
	query := `
		SELECT ` + agreementColumns + `
		FROM emi_agreements
		WHERE next_due_date >= $1 AND next_due_date < $2 AND status = ANY($3::text[])
		ORDER BY next_due_date
	`
	return r.getMany(ctx, query, from, to, pq.Array(statusStrings(statuses)))
}

func (r *agreementRepository) AppendPaymentEvent(ctx context.Context, agreementID uuid.UUID, event *domain.PaymentEvent) error {
	event.AgreementID = agreementID
	return insertPayment(ctx, r.db, event)
}

func (r *agreementRepository) ApplyAdvance(ctx context.Context, advance domain.Advance) error {
	query := `
		UPDATE emi_agreements
		SET installments_remaining = $2, next_due_date = $3, status = $4, updated_at = $5
		WHERE id = $1 AND installments_remaining = $6 AND status IN ('active', 'overdue')
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	event := advance.Event
	event.AgreementID = advance.AgreementID
	if err := insertPayment(ctx, tx, &event); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, query,
		advance.AgreementID,
		advance.NewRemaining,
		advance.NewNextDueDate,
		advance.NewStatus,
		event.PaidAt,
		advance.ExpectedRemaining,
	)
	if err != nil {
		return err
	}

	if err := expectOneRow(result); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *agreementRepository) SetStatus(ctx context.Context, change domain.StatusChange) error {
	query := `
		UPDATE emi_agreements
		SET status = $2, next_due_date = $3, updated_at = $4
		WHERE id = $1 AND status = $5 AND installments_remaining = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		change.AgreementID,
		change.To,
		change.NextDueDate,
		time.Now(),
		change.From,
		change.ExpectedRemaining,
	)
	if err != nil {
		return err
	}

	return expectOneRow(result)
}

func (r *agreementRepository) Stats(ctx context.Context) (*domain.AgreementStats, error) {
	query := `
		SELECT status, COUNT(*) AS count,
		       COALESCE(SUM(installment_amount * installments_remaining), 0) AS outstanding
		FROM emi_agreements
		GROUP BY status
	`

	var rows []struct {
		Status      domain.AgreementStatus `db:"status"`
		Count       int                    `db:"count"`
		Outstanding decimal.Decimal        `db:"outstanding"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	stats := &domain.AgreementStats{
		ByStatus:         make(map[domain.AgreementStatus]int),
		TotalOutstanding: decimal.Zero,
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByStatus[row.Status] = row.Count
		if row.Status.IsOpen() {
			stats.TotalOutstanding = stats.TotalOutstanding.Add(row.Outstanding)
		}
	}

	return stats, nil
}

func (r *agreementRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Agreement, error) {
	var agreement domain.Agreement
	if err := r.db.GetContext(ctx, &agreement, query, args...); err != nil {
		return nil, err
	}

	if err := r.loadPayments(ctx, []*domain.Agreement{&agreement}); err != nil {
		return nil, err
	}

	return &agreement, nil
}

func (r *agreementRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]*domain.Agreement, error) {
	var agreements []*domain.Agreement
	if err := r.db.SelectContext(ctx, &agreements, query, args...); err != nil {
		return nil, err
	}

	if err := r.loadPayments(ctx, agreements); err != nil {
		return nil, err
	}

	return agreements, nil
}

// loadPayments attaches the audit trail of every agreement with a single query
func (r *agreementRepository) loadPayments(ctx context.Context, agreements []*domain.Agreement) error {
	if len(agreements) == 0 {
		return nil
	}

	ids := make([]string, 0, len(agreements))
	byID := make(map[uuid.UUID]*domain.Agreement, len(agreements))
	for _, a := range agreements {
		ids = append(ids, a.ID.String())
		byID[a.ID] = a
		a.Payments = []domain.PaymentEvent{}
	}

	query := `
		SELECT ` + paymentColumns + `
		FROM emi_payments
		WHERE agreement_id = ANY($1::uuid[])
		ORDER BY paid_at, created_at
	`

	var payments []domain.PaymentEvent
	if err := r.db.SelectContext(ctx, &payments, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load payments: %w", err)
	}

	for _, p := range payments {
		if a, ok := byID[p.AgreementID]; ok {
			a.Payments = append(a.Payments, p)
		}
	}

	return nil
}

func insertPayment(ctx context.Context, exec sqlx.ExecerContext, event *domain.PaymentEvent) error {
	query := `
		INSERT INTO emi_payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := exec.ExecContext(ctx, query,
		event.ID,
		event.AgreementID,
		event.PaidAt,
		event.Amount,
		event.TransactionID,
		event.Outcome,
		event.CreatedAt,
	)
	if isUniqueViolation(err) {
		return customError.ErrAlreadyProcessed
	}
	return err
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return customError.ErrConcurrentUpdate
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func statusStrings(statuses []domain.AgreementStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

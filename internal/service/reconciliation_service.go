package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/internal/metrics"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

// ReconciliationService is the entry point for payment confirmations.
// It verifies the payment, then creates or advances the agreement.
type ReconciliationService struct {
	emi      *EMIService
	verifier PaymentVerifier
	logger   *zap.Logger
}

func NewReconciliationService(emi *EMIService, verifier PaymentVerifier, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{emi: emi, verifier: verifier, logger: logger}
}

// Reconcile is safe under at-least-once delivery: a replayed transaction is
// reported with AlreadyProcessed set and changes nothing.
func (s *ReconciliationService) Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	result, err := s.reconcile(ctx, req)

	outcome := "reconciled"
	switch {
	case err != nil:
		outcome = customError.Code(err)
		if outcome == "" {
			outcome = "error"
		}
	case result.AlreadyProcessed:
		outcome = "already_processed"
	case result.Created:
		outcome = "created"
	}
	metrics.Reconciliations.WithLabelValues(outcome).Inc()

	return result, err
}

func (s *ReconciliationService) reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	repo := s.emi.AgreementRepo

	// Nothing is written before the payment is known to have succeeded
	amount := decimal.Zero
	if !req.Verified {
		verification, err := s.verifier.VerifyPaymentStatus(ctx, req.TransactionID)
		if err != nil {
			return nil, err
		}
		if verification.Pending {
			return nil, customError.WrapPaymentPending(req.TransactionID)
		}
		if !verification.Succeeded {
			s.recordFailure(ctx, req, verification)
			return nil, customError.WrapPaymentNotSucceeded(req.TransactionID, verification.Status)
		}
		amount = verification.Amount
	}

	// A successful transaction settles exactly one installment, whatever the agreement's status now
	applied, err := repo.FindBySuccessfulTxn(ctx, req.TransactionID)
	if err == nil {
		return s.replay(req, applied)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	_, err = repo.FindOpenByUserCourse(ctx, req.UserID, req.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		if !req.Initial {
			return nil, customError.WrapNoActiveAgreement(req.UserID, req.CourseID)
		}
		return s.create(ctx, req, amount)
	}

	agreement, err := s.emi.ReconcilePayment(ctx, req.UserID, req.CourseID, req.TransactionID, amount)
	if errors.Is(err, customError.ErrAlreadyProcessed) {
		return s.resolveReplay(ctx, req, err)
	}
	if err != nil {
		return nil, err
	}

	return &domain.ReconcileResult{Agreement: agreement}, nil
}

// replay reports a delivery of a transaction that already settled an installment.
// It is a no-op success only for the agreement the transaction was applied to.
func (s *ReconciliationService) replay(req domain.ReconcileRequest, applied *domain.Agreement) (*domain.ReconcileResult, error) {
	if applied.UserID != req.UserID || applied.CourseID != req.CourseID {
		s.logger.Warn("transaction already applied to another agreement",
			zap.String("transaction_id", req.TransactionID),
			zap.String("agreement_id", applied.ID.String()),
			zap.String("user_id", req.UserID),
			zap.String("course_id", req.CourseID))
		return nil, customError.WrapTransactionAlreadyApplied(req.TransactionID, applied.ID.String())
	}

	s.logger.Info("payment replay ignored",
		zap.String("transaction_id", req.TransactionID),
		zap.String("agreement_id", applied.ID.String()),
		zap.String("status", applied.Status.String()))
	return &domain.ReconcileResult{Agreement: applied, AlreadyProcessed: true}, nil
}

// resolveReplay re-reads the holder of a transaction after a write lost to a concurrent delivery
func (s *ReconciliationService) resolveReplay(ctx context.Context, req domain.ReconcileRequest, cause error) (*domain.ReconcileResult, error) {
	applied, err := s.emi.AgreementRepo.FindBySuccessfulTxn(ctx, req.TransactionID)
	if err != nil {
		return nil, cause
	}
	return s.replay(req, applied)
}

func (s *ReconciliationService) create(ctx context.Context, req domain.ReconcileRequest, amount decimal.Decimal) (*domain.ReconcileResult, error) {
	if !amount.IsZero() && amount.LessThan(req.InstallmentAmount) {
		return nil, customError.WrapPaymentAmountMismatch(req.InstallmentAmount.String(), amount.String())
	}

	agreement, err := s.emi.CreateFromPayment(ctx, domain.NewAgreementTerms{
		UserID:            req.UserID,
		CourseID:          req.CourseID,
		TransactionID:     req.TransactionID,
		InstallmentCount:  req.InstallmentCount,
		InstallmentAmount: req.InstallmentAmount,
		ProcessingFee:     req.ProcessingFee,
	})
	if err != nil {
		// a concurrent delivery of the same transaction won the insert
		if errors.Is(err, customError.ErrDuplicateAgreement) || errors.Is(err, customError.ErrAlreadyProcessed) {
			return s.resolveReplay(ctx, req, err)
		}
		return nil, err
	}

	return &domain.ReconcileResult{Agreement: agreement, Created: true}, nil
}

// recordFailure keeps a failed gateway status in the audit trail of the open agreement, if any
func (s *ReconciliationService) recordFailure(ctx context.Context, req domain.ReconcileRequest, verification *domain.PaymentVerification) {
	agreement, err := s.emi.AgreementRepo.FindOpenByUserCourse(ctx, req.UserID, req.CourseID)
	if err != nil {
		return
	}

	if err := s.emi.RecordFailedPayment(ctx, agreement, req.TransactionID, verification.Amount, domain.PaymentOutcomeFailed); err != nil {
		s.logger.Warn("failed to record failed payment",
			zap.String("agreement_id", agreement.ID.String()),
			zap.String("transaction_id", req.TransactionID),
			zap.Error(err))
	}
}

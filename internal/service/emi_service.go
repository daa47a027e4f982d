package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/internal/metrics"
	"github.com/segyhp/emi-engine/internal/repository"
	customError "github.com/segyhp/emi-engine/pkg/errors"
	"github.com/segyhp/emi-engine/pkg/utils"
)

const dateLayout = "2006-01-02"

type EMIService struct {
	AgreementRepo repository.AgreementRepository
	catalog       CourseCatalog
	notifier      Notifier
	config        *config.Config
	logger        *zap.Logger
	now           func() time.Time
}

func NewEMIService(
	agreementRepo repository.AgreementRepository,
	catalog CourseCatalog,
	notifier Notifier,
	config *config.Config,
	logger *zap.Logger,
) *EMIService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EMIService{
		AgreementRepo: agreementRepo,
		catalog:       catalog,
		notifier:      notifier,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateFromPayment opens an agreement after the first installment was paid.
// The triggering payment counts as the first installment.
func (s *EMIService) CreateFromPayment(ctx context.Context, terms domain.NewAgreementTerms) (*domain.Agreement, error) {
	policy, err := s.catalog.GetCourseEMIPolicy(ctx, terms.CourseID)
	if err != nil {
		return nil, err
	}

	if err := s.validateTerms(policy, terms); err != nil {
		return nil, err
	}

	fee := terms.ProcessingFee
	if fee.IsNegative() {
		return nil, customError.WrapInvalidEMITerms("processing fee must not be negative")
	}
	if fee.IsZero() {
		fee = utils.PercentOf(policy.Price, policy.ProcessingFeePercent)
	}

	// Check if agreement already exists
	existing, err := s.AgreementRepo.FindByUserCourseTxn(ctx, terms.UserID, terms.CourseID, terms.TransactionID)
	if err == nil && existing != nil {
		return nil, customError.WrapDuplicateAgreement(terms.UserID, terms.CourseID, terms.TransactionID)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	open, err := s.AgreementRepo.FindOpenByUserCourse(ctx, terms.UserID, terms.CourseID)
	if err == nil && open != nil {
		return nil, customError.WrapOpenAgreementExists(terms.UserID, terms.CourseID)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	now := s.now()
	id := uuid.New()
	agreement := &domain.Agreement{
		ID:                       id,
		UserID:                   terms.UserID,
		CourseID:                 terms.CourseID,
		OriginatingTransactionID: terms.TransactionID,
		TotalAmount:              terms.InstallmentAmount.Mul(decimal.NewFromInt(int64(terms.InstallmentCount))),
		InstallmentAmount:        terms.InstallmentAmount,
		TotalInstallments:        terms.InstallmentCount,
		InstallmentsRemaining:    terms.InstallmentCount - 1,
		ProcessingFee:            fee,
		Status:                   domain.AgreementStatusActive,
		Payments: []domain.PaymentEvent{{
			ID:            uuid.New(),
			AgreementID:   id,
			PaidAt:        now,
			Amount:        terms.InstallmentAmount.Add(fee),
			TransactionID: terms.TransactionID,
			Outcome:       domain.PaymentOutcomeSuccess,
			CreatedAt:     now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if agreement.InstallmentsRemaining == 0 {
		agreement.Status = domain.AgreementStatusCompleted
	} else {
		next := utils.AddCalendarMonths(now, 1)
		agreement.NextDueDate = &next
	}

	if err := s.AgreementRepo.Create(ctx, agreement); err != nil {
		if errors.Is(err, customError.ErrDuplicateAgreement) {
			return nil, customError.WrapDuplicateAgreement(terms.UserID, terms.CourseID, terms.TransactionID)
		}
		// the originating transaction already settled an installment elsewhere
		if errors.Is(err, customError.ErrAlreadyProcessed) {
			return nil, customError.WrapAlreadyProcessed(terms.TransactionID)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	metrics.AgreementsCreated.Inc()
	s.logger.Info("emi agreement created",
		zap.String("agreement_id", agreement.ID.String()),
		zap.String("user_id", agreement.UserID),
		zap.String("course_id", agreement.CourseID),
		zap.Int("installments", agreement.TotalInstallments))

	s.notifyBestEffort(ctx, agreement, domain.TemplateEMICreated, policy.Title)

	return agreement, nil
}

func (s *EMIService) validateTerms(policy *domain.CourseEMIPolicy, terms domain.NewAgreementTerms) error {
	if !policy.Enabled {
		return customError.WrapInvalidEMITerms(fmt.Sprintf("EMI is not available for course %s", policy.CourseID))
	}

	minCount, maxCount := policy.MinInstallments, policy.MaxInstallments
	if minCount <= 0 {
		minCount = s.config.Business.MinInstallments
	}
	if maxCount <= 0 {
		maxCount = s.config.Business.MaxInstallments
	}
	if terms.InstallmentCount < minCount || terms.InstallmentCount > maxCount {
		return customError.WrapInvalidEMITerms(fmt.Sprintf("installment count %d is outside %d-%d", terms.InstallmentCount, minCount, maxCount))
	}

	minimum := policy.MinimumInstallmentAmount
	if !minimum.IsPositive() {
		minimum = s.config.GetMinimumFallback()
	}
	if terms.InstallmentAmount.LessThan(minimum) {
		return customError.WrapInvalidEMITerms(fmt.Sprintf("installment amount %s is below the minimum %s", terms.InstallmentAmount, minimum))
	}

	if !policy.MatchesOption(terms.InstallmentCount, terms.InstallmentAmount) {
		return customError.WrapInvalidEMITerms(fmt.Sprintf("%d months at %s does not match any EMI option of the course", terms.InstallmentCount, terms.InstallmentAmount))
	}

	return nil
}

// ReconcilePayment advances the open agreement of (userID, courseID) by one installment.
// amount may be zero when the caller already verified the payment out of band.
// A transaction that was already recorded returns the agreement with an ALREADY_PROCESSED error.
func (s *EMIService) ReconcilePayment(ctx context.Context, userID, courseID, txnID string, amount decimal.Decimal) (*domain.Agreement, error) {
	attempts := s.config.Business.MaxAdvanceRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastID string
	for attempt := 1; attempt <= attempts; attempt++ {
		agreement, err := s.AgreementRepo.FindOpenByUserCourse(ctx, userID, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, customError.WrapNoActiveAgreement(userID, courseID)
			}
			return nil, customError.WrapDatabaseError(err)
		}
		lastID = agreement.ID.String()

		if agreement.HasProcessed(txnID) {
			return agreement, customError.WrapAlreadyProcessed(txnID)
		}

		if !amount.IsZero() && amount.LessThan(agreement.InstallmentAmount) {
			return nil, customError.WrapPaymentAmountMismatch(agreement.InstallmentAmount.String(), amount.String())
		}

		advance := s.advanceFor(agreement, txnID, amount)

		err = s.AgreementRepo.ApplyAdvance(ctx, advance)
		switch {
		case err == nil:
			agreement.Apply(advance)
			s.logger.Info("emi installment reconciled",
				zap.String("agreement_id", lastID),
				zap.String("transaction_id", txnID),
				zap.Int("installments_remaining", agreement.InstallmentsRemaining),
				zap.String("status", agreement.Status.String()))

			tmpl := domain.TemplateEMIPaymentReceived
			if agreement.Status == domain.AgreementStatusCompleted {
				tmpl = domain.TemplateEMICompleted
			}
			s.notifyBestEffort(ctx, agreement, tmpl, "")

			return agreement, nil

		case errors.Is(err, customError.ErrAlreadyProcessed):
			// recorded by a concurrent delivery of the same transaction
			if fresh, getErr := s.AgreementRepo.GetByID(ctx, agreement.ID); getErr == nil {
				agreement = fresh
			}
			return agreement, customError.WrapAlreadyProcessed(txnID)

		case errors.Is(err, customError.ErrConcurrentUpdate):
			metrics.AdvanceConflicts.Inc()
			s.logger.Debug("advance lost a race, retrying",
				zap.String("agreement_id", lastID),
				zap.Int("attempt", attempt))
			continue

		default:
			return nil, customError.WrapDatabaseError(err)
		}
	}

	return nil, customError.WrapConcurrentUpdateConflict(lastID, attempts)
}

// advanceFor computes the conditional update for one reconciled installment.
// A late payment moves an overdue agreement back to active before completion is evaluated.
func (s *EMIService) advanceFor(agreement *domain.Agreement, txnID string, amount decimal.Decimal) domain.Advance {
	now := s.now()
	if amount.IsZero() {
		amount = agreement.InstallmentAmount
	}

	advance := domain.Advance{
		AgreementID:       agreement.ID,
		ExpectedRemaining: agreement.InstallmentsRemaining,
		NewRemaining:      agreement.InstallmentsRemaining - 1,
		NewStatus:         domain.AgreementStatusActive,
		Event: domain.PaymentEvent{
			ID:            uuid.New(),
			AgreementID:   agreement.ID,
			PaidAt:        now,
			Amount:        amount,
			TransactionID: txnID,
			Outcome:       domain.PaymentOutcomeSuccess,
			CreatedAt:     now,
		},
	}

	if advance.NewRemaining <= 0 {
		advance.NewRemaining = 0
		advance.NewStatus = domain.AgreementStatusCompleted
		return advance
	}

	next := utils.AddCalendarMonths(now, 1)
	advance.NewNextDueDate = &next
	return advance
}

// RecordFailedPayment appends a failed or pending event to the audit trail without touching progress
func (s *EMIService) RecordFailedPayment(ctx context.Context, agreement *domain.Agreement, txnID string, amount decimal.Decimal, outcome domain.PaymentOutcome) error {
	if outcome == domain.PaymentOutcomeSuccess {
		return fmt.Errorf("success events are recorded through ReconcilePayment")
	}

	now := s.now()
	event := &domain.PaymentEvent{
		ID:            uuid.New(),
		AgreementID:   agreement.ID,
		PaidAt:        now,
		Amount:        amount,
		TransactionID: txnID,
		Outcome:       outcome,
		CreatedAt:     now,
	}

	if err := s.AgreementRepo.AppendPaymentEvent(ctx, agreement.ID, event); err != nil {
		return customError.WrapDatabaseError(err)
	}

	agreement.Payments = append(agreement.Payments, *event)
	return nil
}

type DueAction int

const (
	DueActionNone DueAction = iota
	DueActionRemind
	DueActionMarkOverdue
)

func (a DueAction) String() string {
	switch a {
	case DueActionRemind:
		return "remind"
	case DueActionMarkOverdue:
		return "mark_overdue"
	}
	return "none"
}

type DueDecision struct {
	Action   DueAction
	DaysLeft int
}

// EvaluateDueDate decides what the sweep does with an agreement.
// daysLeft in (0, window] reminds and daysLeft < 0 marks overdue.
// An agreement due today (daysLeft == 0) gets neither.
func EvaluateDueDate(agreement *domain.Agreement, today time.Time, window int) DueDecision {
	if agreement.NextDueDate == nil {
		return DueDecision{Action: DueActionNone}
	}

	daysLeft := utils.DaysUntil(*agreement.NextDueDate, today)
	switch {
	case daysLeft > 0 && daysLeft <= window:
		return DueDecision{Action: DueActionRemind, DaysLeft: daysLeft}
	case daysLeft < 0:
		return DueDecision{Action: DueActionMarkOverdue, DaysLeft: daysLeft}
	}
	return DueDecision{Action: DueActionNone, DaysLeft: daysLeft}
}

// EvaluateDueDate applies the configured reminder window
func (s *EMIService) EvaluateDueDate(agreement *domain.Agreement, today time.Time) DueDecision {
	return EvaluateDueDate(agreement, today, s.config.Business.ReminderWindowDays)
}

// SetStatus transitions an agreement if it is still in the state it was read in.
// Financial fields are never touched.
func (s *EMIService) SetStatus(ctx context.Context, agreement *domain.Agreement, to domain.AgreementStatus) error {
	if !agreement.Status.CanTransitionTo(to) {
		return customError.WrapInvalidStatusTransition(agreement.Status.String(), to.String())
	}

	change := domain.StatusChange{
		AgreementID:       agreement.ID,
		From:              agreement.Status,
		To:                to,
		ExpectedRemaining: agreement.InstallmentsRemaining,
		NextDueDate:       agreement.NextDueDate,
	}
	if to.IsTerminal() {
		change.NextDueDate = nil
	}

	if err := s.AgreementRepo.SetStatus(ctx, change); err != nil {
		if errors.Is(err, customError.ErrConcurrentUpdate) {
			return customError.WrapConcurrentUpdateConflict(agreement.ID.String(), 1)
		}
		return customError.WrapDatabaseError(err)
	}

	agreement.ApplyStatus(change, s.now())
	s.logger.Info("emi agreement status changed",
		zap.String("agreement_id", agreement.ID.String()),
		zap.String("from", change.From.String()),
		zap.String("to", change.To.String()))

	return nil
}

// MarkOverdue moves an active agreement to overdue
func (s *EMIService) MarkOverdue(ctx context.Context, agreement *domain.Agreement) error {
	return s.SetStatus(ctx, agreement, domain.AgreementStatusOverdue)
}

// Cancel closes an open agreement. The audit trail is kept.
func (s *EMIService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Agreement, error) {
	agreement, err := s.getAgreement(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.SetStatus(ctx, agreement, domain.AgreementStatusCancelled); err != nil {
		return nil, err
	}

	return agreement, nil
}

// NotifyDue dispatches a reminder or overdue notice for a sweep decision
func (s *EMIService) NotifyDue(ctx context.Context, agreement *domain.Agreement, decision DueDecision) error {
	tmpl := domain.TemplateEMIReminder
	if decision.Action == DueActionMarkOverdue {
		tmpl = domain.TemplateEMIOverdue
	}

	data := s.notificationData(ctx, agreement, "")
	data["days_left"] = decision.DaysLeft

	return s.dispatch(ctx, agreement.UserID, tmpl, data)
}

// ListForUser lists a user's agreements, optionally only the open ones
func (s *EMIService) ListForUser(ctx context.Context, userID string, openOnly bool) ([]*domain.Agreement, error) {
	var (
		agreements []*domain.Agreement
		err        error
	)
	if openOnly {
		agreements, err = s.AgreementRepo.FindActiveByUser(ctx, userID)
	} else {
		agreements, err = s.AgreementRepo.List(ctx, domain.AgreementFilter{UserID: userID})
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if agreements == nil {
		agreements = []*domain.Agreement{}
	}
	return agreements, nil
}

// GetForUser returns an agreement owned by userID
func (s *EMIService) GetForUser(ctx context.Context, userID string, id uuid.UUID) (*domain.Agreement, error) {
	agreement, err := s.getAgreement(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.UserID != userID {
		return nil, customError.WrapAgreementNotFound(id.String())
	}
	return agreement, nil
}

func (s *EMIService) ListAll(ctx context.Context, filter domain.AgreementFilter) ([]*domain.Agreement, error) {
	agreements, err := s.AgreementRepo.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if agreements == nil {
		agreements = []*domain.Agreement{}
	}
	return agreements, nil
}

func (s *EMIService) Stats(ctx context.Context) (*domain.AgreementStats, error) {
	stats, err := s.AgreementRepo.Stats(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return stats, nil
}

func (s *EMIService) getAgreement(ctx context.Context, id uuid.UUID) (*domain.Agreement, error) {
	agreement, err := s.AgreementRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapAgreementNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return agreement, nil
}

// notifyBestEffort sends a notification and only logs failures
func (s *EMIService) notifyBestEffort(ctx context.Context, agreement *domain.Agreement, tmpl domain.NotificationTemplate, courseTitle string) {
	if err := s.dispatch(ctx, agreement.UserID, tmpl, s.notificationData(ctx, agreement, courseTitle)); err != nil {
		s.logger.Warn("notification failed",
			zap.String("agreement_id", agreement.ID.String()),
			zap.String("template", string(tmpl)),
			zap.Error(err))
	}
}

// dispatch bounds a single notification by the configured timeout
func (s *EMIService) dispatch(ctx context.Context, userID string, tmpl domain.NotificationTemplate, data map[string]interface{}) error {
	if s.notifier == nil {
		return nil
	}

	timeout := s.config.Notification.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.notifier.SendNotification(ctx, userID, tmpl, data)
	if err != nil {
		metrics.Notifications.WithLabelValues(string(tmpl), "failed").Inc()
		if !errors.Is(err, customError.ErrNotificationDispatchFailed) {
			err = customError.WrapNotificationDispatchFailed(string(tmpl), err)
		}
		return err
	}

	metrics.Notifications.WithLabelValues(string(tmpl), "sent").Inc()
	return nil
}

func (s *EMIService) notificationData(ctx context.Context, agreement *domain.Agreement, courseTitle string) map[string]interface{} {
	if courseTitle == "" {
		courseTitle = agreement.CourseID
		if policy, err := s.catalog.GetCourseEMIPolicy(ctx, agreement.CourseID); err == nil && policy.Title != "" {
			courseTitle = policy.Title
		}
	}

	data := map[string]interface{}{
		"agreement_id":           agreement.ID.String(),
		"course_id":              agreement.CourseID,
		"course_title":           courseTitle,
		"amount":                 agreement.InstallmentAmount.StringFixed(2),
		"currency":               s.config.Business.Currency,
		"installments_remaining": agreement.InstallmentsRemaining,
		"due_date":               "",
	}
	if agreement.NextDueDate != nil {
		data["due_date"] = agreement.NextDueDate.Format(dateLayout)
	}

	return data
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgreementStatus is the lifecycle state of an EMI agreement
type AgreementStatus string

const (
	AgreementStatusActive    AgreementStatus = "active"
	AgreementStatusOverdue   AgreementStatus = "overdue"
	AgreementStatusCompleted AgreementStatus = "completed"
	AgreementStatusCancelled AgreementStatus = "cancelled"
)

var agreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementStatusActive:  {AgreementStatusOverdue, AgreementStatusCompleted, AgreementStatusCancelled},
	AgreementStatusOverdue: {AgreementStatusActive, AgreementStatusCompleted, AgreementStatusCancelled},
}

// ParseAgreementStatus validates a raw status value
func ParseAgreementStatus(s string) (AgreementStatus, bool) {
	status := AgreementStatus(s)
	switch status {
	case AgreementStatusActive, AgreementStatusOverdue, AgreementStatusCompleted, AgreementStatusCancelled:
		return status, true
	}
	return "", false
}

func (s AgreementStatus) String() string { return string(s) }

// IsOpen reports whether installments can still be reconciled against the agreement
func (s AgreementStatus) IsOpen() bool {
	return s == AgreementStatusActive || s == AgreementStatusOverdue
}

// IsTerminal reports whether the status has no outgoing transitions
func (s AgreementStatus) IsTerminal() bool {
	return s == AgreementStatusCompleted || s == AgreementStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s
func (s AgreementStatus) CanTransitionTo(next AgreementStatus) bool {
	for _, allowed := range agreementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentOutcome is the result of a single installment payment attempt
type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailed  PaymentOutcome = "failed"
	PaymentOutcomePending PaymentOutcome = "pending"
)

// Agreement is one user's installment plan for one course purchase
type Agreement struct {
	ID                       uuid.UUID       `json:"id" db:"id"`
	UserID                   string          `json:"user_id" db:"user_id"`
	CourseID                 string          `json:"course_id" db:"course_id"`
	OriginatingTransactionID string          `json:"originating_transaction_id" db:"originating_transaction_id"`
	TotalAmount              decimal.Decimal `json:"total_amount" db:"total_amount"`
	InstallmentAmount        decimal.Decimal `json:"installment_amount" db:"installment_amount"`
	TotalInstallments        int             `json:"total_installments" db:"total_installments"`
	InstallmentsRemaining    int             `json:"installments_remaining" db:"installments_remaining"`
	NextDueDate              *time.Time      `json:"next_emi_due_date" db:"next_due_date"`
	ProcessingFee            decimal.Decimal `json:"processing_fee" db:"processing_fee"`
	Status                   AgreementStatus `json:"status" db:"status"`
	Payments                 []PaymentEvent  `json:"payments" db:"-"`
	CreatedAt                time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at" db:"updated_at"`
}

// PaymentEvent is one entry of an agreement's audit trail
type PaymentEvent struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	AgreementID   uuid.UUID       `json:"agreement_id" db:"agreement_id"`
	PaidAt        time.Time       `json:"date" db:"paid_at"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	Outcome       PaymentOutcome  `json:"outcome" db:"outcome"`
	CreatedAt     time.Time       `json:"-" db:"created_at"`
}

// HasProcessed reports whether txnID was already reconciled successfully
func (a *Agreement) HasProcessed(txnID string) bool {
	for _, p := range a.Payments {
		if p.TransactionID == txnID && p.Outcome == PaymentOutcomeSuccess {
			return true
		}
	}
	return false
}

// Outstanding is what is still owed on the plan
func (a *Agreement) Outstanding() decimal.Decimal {
	return a.InstallmentAmount.Mul(decimal.NewFromInt(int64(a.InstallmentsRemaining)))
}

// Advance is a conditional update computed from a read of the agreement.
// It only applies while the stored installments_remaining equals ExpectedRemaining.
type Advance struct {
	AgreementID       uuid.UUID
	ExpectedRemaining int
	NewRemaining      int
	NewStatus         AgreementStatus
	NewNextDueDate    *time.Time
	Event             PaymentEvent
}

// StatusChange is a conditional status transition.
type StatusChange struct {
	AgreementID       uuid.UUID
	From              AgreementStatus
	To                AgreementStatus
	ExpectedRemaining int
	NextDueDate       *time.Time
}

// Apply mirrors a persisted advance on the in-memory agreement
func (a *Agreement) Apply(adv Advance) {
	a.InstallmentsRemaining = adv.NewRemaining
	a.Status = adv.NewStatus
	a.NextDueDate = adv.NewNextDueDate
	a.Payments = append(a.Payments, adv.Event)
	a.UpdatedAt = adv.Event.PaidAt
}

// ApplyStatus mirrors a persisted status change on the in-memory agreement
func (a *Agreement) ApplyStatus(change StatusChange, at time.Time) {
	a.Status = change.To
	a.NextDueDate = change.NextDueDate
	a.UpdatedAt = at
}

// DTOs for requests and responses

type CreateAgreementRequest struct {
	CourseID          string          `json:"course_id" validate:"required"`
	TransactionID     string          `json:"transaction_id" validate:"required"`
	InstallmentCount  int             `json:"installment_count" validate:"required,gt=0"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" validate:"decimal_gt=0"`
	ProcessingFee     decimal.Decimal `json:"processing_fee" validate:"decimal_gte=0"`
}

// NewAgreementTerms are the validated inputs of createFromPayment
type NewAgreementTerms struct {
	UserID            string
	CourseID          string
	TransactionID     string
	InstallmentCount  int
	InstallmentAmount decimal.Decimal
	ProcessingFee     decimal.Decimal
}

// PaymentWebhookRequest is the confirmation payload sent by the payment provider
type PaymentWebhookRequest struct {
	TransactionID     string          `json:"transaction_id" validate:"required"`
	UserID            string          `json:"user_id" validate:"required"`
	CourseID          string          `json:"course_id" validate:"required"`
	Initial           bool            `json:"initial"`
	InstallmentCount  int             `json:"installment_count" validate:"required_if=Initial true"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" validate:"decimal_gte=0"`
}

type AdminPaymentRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	CourseID      string `json:"course_id" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required"`
}

// ReconcileRequest is the input of the reconciliation entry point
type ReconcileRequest struct {
	UserID            string
	CourseID          string
	TransactionID     string
	Initial           bool
	InstallmentCount  int
	InstallmentAmount decimal.Decimal
	ProcessingFee     decimal.Decimal
	// Verified is set when the caller already confirmed receipt (admin action)
	Verified bool
}

type ReconcileResult struct {
	Agreement        *Agreement `json:"agreement"`
	Created          bool       `json:"created"`
	AlreadyProcessed bool       `json:"already_processed"`
}

type AgreementFilter struct {
	UserID   string
	Statuses []AgreementStatus
	Limit    int
	Offset   int
}

type AgreementStats struct {
	Total            int                     `json:"total"`
	ByStatus         map[AgreementStatus]int `json:"by_status"`
	TotalOutstanding decimal.Decimal         `json:"total_outstanding"`
}

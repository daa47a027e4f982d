package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EMIOption is one installment plan a course offers
type EMIOption struct {
	Months        int             `json:"months" db:"months"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount" db:"monthly_amount"`
}

// CourseEMIPolicy is the EMI configuration of a course in the catalog
type CourseEMIPolicy struct {
	CourseID                 string          `json:"course_id" db:"course_id"`
	Title                    string          `json:"title" db:"title"`
	Enabled                  bool            `json:"enabled" db:"emi_enabled"`
	Price                    decimal.Decimal `json:"price" db:"price"`
	MinInstallments          int             `json:"min_installments" db:"min_installments"`
	MaxInstallments          int             `json:"max_installments" db:"max_installments"`
	ProcessingFeePercent     decimal.Decimal `json:"processing_fee_percent" db:"processing_fee_percent"`
	MinimumInstallmentAmount decimal.Decimal `json:"minimum_installment_amount" db:"minimum_installment_amount"`
	Options                  []EMIOption     `json:"options" db:"-"`
}

// MatchesOption reports whether (months, amount) equals one configured option.
// A course without options accepts any pair inside its bounds.
func (p *CourseEMIPolicy) MatchesOption(months int, amount decimal.Decimal) bool {
	if len(p.Options) == 0 {
		return true
	}
	for _, o := range p.Options {
		if o.Months == months && o.MonthlyAmount.Equal(amount) {
			return true
		}
	}
	return false
}

// PaymentVerification is the gateway's view of a transaction
type PaymentVerification struct {
	TransactionID string          `json:"transaction_id"`
	Succeeded     bool            `json:"succeeded"`
	Pending       bool            `json:"pending"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
}

// User is the notification target resolved from the user directory
type User struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// NotificationTemplate names an outbound message
type NotificationTemplate string

const (
	TemplateEMICreated         NotificationTemplate = "emi_created"
	TemplateEMIReminder        NotificationTemplate = "emi_reminder"
	TemplateEMIOverdue         NotificationTemplate = "emi_overdue"
	TemplateEMIPaymentReceived NotificationTemplate = "emi_payment_received"
	TemplateEMICompleted       NotificationTemplate = "emi_completed"
)

// DueNotice is the data carried by reminder and overdue notifications
type DueNotice struct {
	AgreementID string    `json:"agreement_id"`
	CourseTitle string    `json:"course_title"`
	DueDate     time.Time `json:"due_date"`
	DaysLeft    int       `json:"days_left"`
	Amount      string    `json:"amount"`
}

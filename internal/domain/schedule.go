package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ScheduleStatusPending   = "pending"
	ScheduleStatusCompleted = "completed"
)

// ScheduleTerms are the inputs of an amortization schedule
type ScheduleTerms struct {
	TotalAmount        decimal.Decimal
	InstallmentAmount  decimal.Decimal
	DayOfMonth         int
	PeriodsAlreadyPaid int
	AnchorDate         time.Time
}

// ScheduleEntry is one scheduled installment
type ScheduleEntry struct {
	Index  int             `json:"index"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Paid   bool            `json:"paid"`
}

// Schedule is a derived, never stored, amortization schedule
type Schedule struct {
	Entries               []ScheduleEntry `json:"entries"`
	TotalInstallments     int             `json:"total_emis"`
	PaidInstallments      int             `json:"emis_paid"`
	RemainingInstallments int             `json:"emis_left"`
	AmountPaid            decimal.Decimal `json:"total_emi_paid"`
	AmountDue             decimal.Decimal `json:"total_emi_due"`
	NextDueDate           *time.Time      `json:"next_due_date"`
	Status                string          `json:"status"`
}

// PaidCount counts entries flagged as paid
func (s Schedule) PaidCount() int {
	n := 0
	for _, e := range s.Entries {
		if e.Paid {
			n++
		}
	}
	return n
}

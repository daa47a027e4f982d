package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfflineEMIRecord is a manually tracked installment plan with no online transaction
type OfflineEMIRecord struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	StudentName       string          `json:"student_name" db:"student_name"`
	StudentAddress    string          `json:"student_address" db:"student_address"`
	CenterAddress     string          `json:"center_address" db:"center_address"`
	CourseName        string          `json:"course_name" db:"course_name"`
	TotalAmount       decimal.Decimal `json:"total_amount" db:"total_amount"`
	InstallmentAmount decimal.Decimal `json:"monthly_emi_amount" db:"installment_amount"`
	DayOfMonth        int             `json:"day_of_month" db:"day_of_month"`
	InstallmentsPaid  int             `json:"emis_paid_months" db:"installments_paid"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Terms returns the schedule inputs of the record, anchored on its creation date
func (r *OfflineEMIRecord) Terms() ScheduleTerms {
	return ScheduleTerms{
		TotalAmount:        r.TotalAmount,
		InstallmentAmount:  r.InstallmentAmount,
		DayOfMonth:         r.DayOfMonth,
		PeriodsAlreadyPaid: r.InstallmentsPaid,
		AnchorDate:         r.CreatedAt,
	}
}

// OfflineEMIView is a record with its derived fields
type OfflineEMIView struct {
	*OfflineEMIRecord
	Schedule *Schedule `json:"schedule"`
}

type OfflineEMIRequest struct {
	StudentName       string          `json:"student_name" validate:"required"`
	StudentAddress    string          `json:"student_address"`
	CenterAddress     string          `json:"center_address"`
	CourseName        string          `json:"course_name" validate:"required"`
	TotalAmount       decimal.Decimal `json:"total_amount" validate:"decimal_gt=0"`
	InstallmentAmount decimal.Decimal `json:"monthly_emi_amount" validate:"decimal_gt=0"`
	DayOfMonth        int             `json:"day_of_month" validate:"required,min=1,max=31"`
	InstallmentsPaid  int             `json:"emis_paid_months" validate:"min=0"`
}

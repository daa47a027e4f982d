// Package schedule derives installment schedules from plan terms.
package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/teambition/rrule-go"

	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
	"github.com/segyhp/emi-engine/pkg/utils"
)

// Compute builds the amortization schedule for terms as seen at now.
// It has no side effects: identical inputs always produce identical output.
func Compute(terms domain.ScheduleTerms, now time.Time) (*domain.Schedule, error) {
	if !terms.TotalAmount.IsPositive() || !terms.InstallmentAmount.IsPositive() {
		return nil, customError.WrapInvalidTerms("total and installment amounts must be greater than 0")
	}
	if terms.DayOfMonth < 1 || terms.DayOfMonth > 31 {
		return nil, customError.WrapInvalidTerms(fmt.Sprintf("day of month %d is outside 1-31", terms.DayOfMonth))
	}

	total := utils.InstallmentCount(terms.TotalAmount, terms.InstallmentAmount)
	if terms.PeriodsAlreadyPaid < 0 || terms.PeriodsAlreadyPaid > total {
		return nil, customError.WrapInvalidTerms(fmt.Sprintf("periods paid %d is outside 0-%d", terms.PeriodsAlreadyPaid, total))
	}

	dates, err := MonthlyDates(terms.AnchorDate, terms.DayOfMonth, total)
	if err != nil {
		return nil, customError.WrapInvalidTerms(err.Error())
	}

	entries := make([]domain.ScheduleEntry, 0, total)
	for i, date := range dates {
		entries = append(entries, domain.ScheduleEntry{
			Index:  i,
			Date:   date,
			Amount: terms.InstallmentAmount,
			Paid:   i < terms.PeriodsAlreadyPaid,
		})
	}

	remaining := total - terms.PeriodsAlreadyPaid
	result := &domain.Schedule{
		Entries:               entries,
		TotalInstallments:     total,
		PaidInstallments:      terms.PeriodsAlreadyPaid,
		RemainingInstallments: remaining,
		AmountPaid:            terms.InstallmentAmount.Mul(decimal.NewFromInt(int64(terms.PeriodsAlreadyPaid))),
		AmountDue:             terms.InstallmentAmount.Mul(decimal.NewFromInt(int64(remaining))),
		Status:                domain.ScheduleStatusPending,
	}

	if remaining <= 0 {
		result.Status = domain.ScheduleStatusCompleted
		return result, nil
	}

	next := NextAnchorOccurrence(terms.DayOfMonth, now)
	result.NextDueDate = &next

	return result, nil
}

// MonthlyDates returns count dates starting in anchor's month, one per month, on
// dayOfMonth or on the last day of months that are shorter.
func MonthlyDates(anchor time.Time, dayOfMonth, count int) ([]time.Time, error) {
	if count <= 0 {
		return nil, nil
	}

	// BYMONTHDAY=28..d with BYSETPOS=-1 picks d, or the month's last day when d does not exist
	days := []int{dayOfMonth}
	if dayOfMonth > 28 {
		days = days[:0]
		for d := 28; d <= dayOfMonth; d++ {
			days = append(days, d)
		}
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:       rrule.MONTHLY,
		Dtstart:    time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location()),
		Count:      count,
		Bymonthday: days,
		Bysetpos:   []int{-1},
	})
	if err != nil {
		return nil, fmt.Errorf("build monthly rule: %w", err)
	}

	return rule.All(), nil
}

// NextAnchorOccurrence is the occurrence of dayOfMonth in now's month, or in the
// following month when that date is already on or before now.
func NextAnchorOccurrence(dayOfMonth int, now time.Time) time.Time {
	candidate := utils.ClampedDate(now.Year(), now.Month(), dayOfMonth, now.Location())
	if !candidate.After(now) {
		candidate = utils.ClampedDate(now.Year(), now.Month()+1, dayOfMonth, now.Location())
	}
	return candidate
}

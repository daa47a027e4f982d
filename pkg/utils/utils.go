package utils

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// DaysInMonth returns the number of days of the given month
func DaysInMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ClampedDate builds the date for dayOfMonth in the given month, falling back to the
// last day of the month when the month is shorter
func ClampedDate(year int, month time.Month, dayOfMonth int, loc *time.Location) time.Time {
	// normalise month overflow before clamping
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := DaysInMonth(first.Year(), first.Month(), loc)
	if dayOfMonth > last {
		dayOfMonth = last
	}
	if dayOfMonth < 1 {
		dayOfMonth = 1
	}
	return time.Date(first.Year(), first.Month(), dayOfMonth, 0, 0, 0, 0, loc)
}

// AddCalendarMonths moves t forward by n calendar months keeping the time of day.
// Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
func AddCalendarMonths(t time.Time, n int) time.Time {
	target := ClampedDate(t.Year(), t.Month()+time.Month(n), t.Day(), t.Location())
	return time.Date(target.Year(), target.Month(), target.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysUntil returns ceil((due - from) / 1 day). Negative values mean due is in the past.
func DaysUntil(due, from time.Time) int {
	return int(math.Ceil(float64(due.Sub(from)) / float64(day)))
}

// InstallmentCount returns ceil(total / perInstallment)
func InstallmentCount(total, perInstallment decimal.Decimal) int {
	if !perInstallment.IsPositive() {
		return 0
	}
	return int(total.Div(perInstallment).Ceil().IntPart())
}

// PercentOf returns amount * percent / 100 rounded to 2 decimal places
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

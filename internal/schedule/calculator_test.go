package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

func TestCompute_OfflineScenario(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	terms := domain.ScheduleTerms{
		TotalAmount:        decimal.NewFromInt(10000),
		InstallmentAmount:  decimal.NewFromInt(3000),
		DayOfMonth:         5,
		PeriodsAlreadyPaid: 2,
		AnchorDate:         time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
	}

	result, err := Compute(terms, now)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalInstallments)
	assert.Equal(t, 2, result.RemainingInstallments)
	assert.True(t, result.AmountPaid.Equal(decimal.NewFromInt(6000)), "paid %s", result.AmountPaid)
	assert.True(t, result.AmountDue.Equal(decimal.NewFromInt(6000)), "due %s", result.AmountDue)
	assert.Equal(t, domain.ScheduleStatusPending, result.Status)

	require.Len(t, result.Entries, 4)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), result.Entries[0].Date)
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), result.Entries[3].Date)
	assert.True(t, result.Entries[1].Paid)
	assert.False(t, result.Entries[2].Paid)

	// the 5th of March has passed, so the next anchor occurrence is in April
	require.NotNil(t, result.NextDueDate)
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), *result.NextDueDate)
}

func TestCompute_IsPure(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	terms := domain.ScheduleTerms{
		TotalAmount:        decimal.NewFromInt(25000),
		InstallmentAmount:  decimal.NewFromInt(2000),
		DayOfMonth:         31,
		PeriodsAlreadyPaid: 4,
		AnchorDate:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	first, err := Compute(terms, now)
	require.NoError(t, err)
	second, err := Compute(terms, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, terms.PeriodsAlreadyPaid, first.PaidCount())
	assert.Equal(t, 13, first.TotalInstallments)
}

func TestCompute_PaidCountMatchesPeriodsPaid(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for paid := 0; paid <= 5; paid++ {
		result, err := Compute(domain.ScheduleTerms{
			TotalAmount:        decimal.NewFromInt(5000),
			InstallmentAmount:  decimal.NewFromInt(1000),
			DayOfMonth:         15,
			PeriodsAlreadyPaid: paid,
			AnchorDate:         now,
		}, now)
		require.NoError(t, err)
		assert.Equal(t, paid, result.PaidCount())
	}
}

func TestCompute_Completed(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	result, err := Compute(domain.ScheduleTerms{
		TotalAmount:        decimal.NewFromInt(3000),
		InstallmentAmount:  decimal.NewFromInt(1000),
		DayOfMonth:         10,
		PeriodsAlreadyPaid: 3,
		AnchorDate:         now,
	}, now)

	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCompleted, result.Status)
	assert.Nil(t, result.NextDueDate)
	assert.Equal(t, 0, result.RemainingInstallments)
	assert.True(t, result.AmountDue.IsZero())
}

func TestCompute_InvalidTerms(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		terms domain.ScheduleTerms
	}{
		{
			name: "zero installment amount",
			terms: domain.ScheduleTerms{
				TotalAmount: decimal.NewFromInt(1000), InstallmentAmount: decimal.Zero, DayOfMonth: 1, AnchorDate: now,
			},
		},
		{
			name: "negative total",
			terms: domain.ScheduleTerms{
				TotalAmount: decimal.NewFromInt(-1), InstallmentAmount: decimal.NewFromInt(10), DayOfMonth: 1, AnchorDate: now,
			},
		},
		{
			name: "day of month out of range",
			terms: domain.ScheduleTerms{
				TotalAmount: decimal.NewFromInt(1000), InstallmentAmount: decimal.NewFromInt(100), DayOfMonth: 32, AnchorDate: now,
			},
		},
		{
			name: "more periods paid than scheduled",
			terms: domain.ScheduleTerms{
				TotalAmount: decimal.NewFromInt(1000), InstallmentAmount: decimal.NewFromInt(500), DayOfMonth: 1,
				PeriodsAlreadyPaid: 3, AnchorDate: now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compute(tt.terms, now)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, customError.ErrInvalidTerms))
		})
	}
}

func TestMonthlyDates_ClampsShortMonths(t *testing.T) {
	dates, err := MonthlyDates(time.Date(2024, 1, 31, 15, 0, 0, 0, time.UTC), 31, 4)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
	}, dates)
}

func TestMonthlyDates_ThirtiethInFebruary(t *testing.T) {
	dates, err := MonthlyDates(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), 30, 3)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		time.Date(2023, 1, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 30, 0, 0, 0, 0, time.UTC),
	}, dates)
}

func TestNextAnchorOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		day      int
		now      time.Time
		expected time.Time
	}{
		{
			name:     "later this month",
			day:      20,
			now:      time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "today rolls to next month",
			day:      10,
			now:      time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "already passed, next month is shorter",
			day:      31,
			now:      time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "december rolls into january",
			day:      5,
			now:      time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextAnchorOccurrence(tt.day, tt.now))
		})
	}
}

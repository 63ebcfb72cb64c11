package service

import (
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/util"
	"github.com/shopspring/decimal"
)

// DaysPerMonth is the average month length used to turn day counts into months
const DaysPerMonth = 30.44

var monthsPerYear = decimal.NewFromInt(12)

// AnnualMultiplier is how many times per year an amount at frequency f recurs.
// One-time amounts do not recur and contribute nothing to annual totals.
func AnnualMultiplier(f domain.Frequency) decimal.Decimal {
	switch f {
	case domain.FrequencyWeekly:
		return decimal.NewFromInt(52)
	case domain.FrequencyBiWeekly:
		return decimal.NewFromInt(26)
	case domain.FrequencyMonthly:
		return decimal.NewFromInt(12)
	case domain.FrequencyQuarterly:
		return decimal.NewFromInt(4)
	case domain.FrequencyYearly:
		return decimal.NewFromInt(1)
	default:
		return decimal.Zero
	}
}

// Annualize converts a recurring amount to its yearly equivalent
func Annualize(amount decimal.Decimal, f domain.Frequency) decimal.Decimal {
	return amount.Mul(AnnualMultiplier(f))
}

// MonthlyEquivalent converts a recurring amount to its average monthly equivalent
func MonthlyEquivalent(amount decimal.Decimal, f domain.Frequency) decimal.Decimal {
	return Annualize(amount, f).Div(monthsPerYear)
}

// AdvanceByFrequency returns the next occurrence after t. Month-based
// frequencies clamp to the last day of shorter months. ok is false for
// frequencies that never recur.
func AdvanceByFrequency(t time.Time, f domain.Frequency) (next time.Time, ok bool) {
	return Occurrence(t, f, 1)
}

// Occurrence returns the n-th occurrence after anchor. Each occurrence is
// computed from the anchor so a month-end anchor keeps returning to month end
// after passing through a shorter month.
func Occurrence(anchor time.Time, f domain.Frequency, n int) (time.Time, bool) {
	switch f {
	case domain.FrequencyWeekly:
		return anchor.AddDate(0, 0, 7*n), true
	case domain.FrequencyBiWeekly:
		return anchor.AddDate(0, 0, 14*n), true
	case domain.FrequencyMonthly:
		return util.AddMonths(anchor, n), true
	case domain.FrequencyQuarterly:
		return util.AddMonths(anchor, 3*n), true
	case domain.FrequencyYearly:
		return util.AddMonths(anchor, 12*n), true
	default:
		return anchor, false
	}
}

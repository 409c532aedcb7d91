package loans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

const day = 24 * time.Hour

// DaysLate counts whole days elapsed past due, never negative.
func DaysLate(due, at time.Time) int {
	if !at.After(due) {
		return 0
	}
	return int(at.Sub(due) / day)
}

// FineFor prices daysLate at rate, rounded to cents.
func FineFor(daysLate int, rate decimal.Decimal) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(daysLate))).Round(2)
}

// IsOverdue reports whether an active loan is past its due date.
func IsOverdue(loan models.Loan, now time.Time) bool {
	return loan.IsActive() && now.After(loan.DueDate)
}

// DaysOverdue is zero for returned or on-time loans.
func DaysOverdue(loan models.Loan, now time.Time) int {
	if !IsOverdue(loan, now) {
		return 0
	}
	return DaysLate(loan.DueDate, now)
}

// CurrentFine is the recorded fine for returned loans, otherwise the fine
// accrued so far.
func CurrentFine(loan models.Loan, now time.Time, rate decimal.Decimal) decimal.Decimal {
	if !loan.IsActive() {
		if loan.FineAmountFinal.Valid {
			return loan.FineAmountFinal.Decimal
		}
		return decimal.Zero
	}
	return FineFor(DaysOverdue(loan, now), rate)
}

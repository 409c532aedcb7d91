package loans

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// LoanDTO is the read model returned to callers, including derived fields.
type LoanDTO struct {
	ID              uuid.UUID        `json:"id"`
	UserID          uuid.UUID        `json:"user_id"`
	BookCopyID      uuid.UUID        `json:"book_copy_id"`
	BookTitleID     *uuid.UUID       `json:"book_title_id,omitempty"`
	LoanedAt        time.Time        `json:"loaned_at"`
	DueDate         time.Time        `json:"due_date"`
	ReturnedAt      *time.Time       `json:"returned_at,omitempty"`
	FineAmountFinal *decimal.Decimal `json:"fine_amount_final,omitempty"`
	RenewalsCount   int              `json:"renewals_count"`
	IsActive        bool             `json:"is_active"`
	IsOverdue       bool             `json:"is_overdue"`
	DaysOverdue     int              `json:"days_overdue"`
	CurrentFine     decimal.Decimal  `json:"current_fine"`
}

// ReturnResult describes a completed return.
type ReturnResult struct {
	Loan        LoanDTO         `json:"loan"`
	DaysLate    int             `json:"days_late"`
	FineApplied decimal.Decimal `json:"fine_applied"`
	Message     string          `json:"message"`
}

// RenewResult describes a completed renewal.
type RenewResult struct {
	Loan            LoanDTO   `json:"loan"`
	PreviousDueDate time.Time `json:"previous_due_date"`
	NewDueDate      time.Time `json:"new_due_date"`
	Message         string    `json:"message"`
}

// NewLoanDTO computes the derived fields of loan as of now.
func NewLoanDTO(loan models.Loan, now time.Time, policy Policy) LoanDTO {
	dto := LoanDTO{
		ID:            loan.ID,
		UserID:        loan.UserID,
		BookCopyID:    loan.BookCopyID,
		LoanedAt:      loan.LoanedAt,
		DueDate:       loan.DueDate,
		ReturnedAt:    loan.ReturnedAt,
		RenewalsCount: loan.RenewalsCount,
		IsActive:      loan.IsActive(),
		IsOverdue:     IsOverdue(loan, now),
		DaysOverdue:   DaysOverdue(loan, now),
		CurrentFine:   CurrentFine(loan, now, policy.FinePerDay),
	}
	if loan.BookCopy != nil {
		titleID := loan.BookCopy.BookTitleID
		dto.BookTitleID = &titleID
	}
	if loan.FineAmountFinal.Valid {
		fine := loan.FineAmountFinal.Decimal
		dto.FineAmountFinal = &fine
	}
	return dto
}

func returnMessage(daysLate int, fine decimal.Decimal) string {
	if daysLate == 0 {
		return "Book returned on time. No fine."
	}
	return fmt.Sprintf("Book returned %d day(s) late. Fine: %s", daysLate, fine.StringFixed(2))
}

func renewMessage(due time.Time) string {
	return fmt.Sprintf("Loan renewed. New due date: %s", due.Format("2006-01-02"))
}

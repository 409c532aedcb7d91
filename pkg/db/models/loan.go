package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Loan records one lending of a copy. A loan is active while ReturnedAt is nil.
type Loan struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	BookCopyID      uuid.UUID           `gorm:"column:book_copy_id;type:uuid;not null;index"`
	LoanedAt        time.Time           `gorm:"column:loaned_at;not null"`
	DueDate         time.Time           `gorm:"column:due_date;not null"`
	ReturnedAt      *time.Time          `gorm:"column:returned_at"`
	FineAmountFinal decimal.NullDecimal `gorm:"column:fine_amount_final;type:numeric(10,2)"`
	RenewalsCount   int                 `gorm:"column:renewals_count;not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at"`
	UpdatedAt       time.Time           `gorm:"column:updated_at"`
	BookCopy        *BookCopy           `gorm:"foreignKey:BookCopyID;references:ID"`
}

func (Loan) TableName() string { return "loans" }

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the loan has not been returned.
func (l Loan) IsActive() bool {
	return l.ReturnedAt == nil
}

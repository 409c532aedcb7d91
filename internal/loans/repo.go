package loans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/repo"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

var errLoanChanged = pkgerrors.Rule(pkgerrors.CodeConflict, "LOAN_STATE_CHANGED", "loan was modified concurrently")

// Repository encapsulates loan persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a loan repository bound to the provided gorm DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// LockUser serialises loan creation for one user until the transaction ends.
// Only Postgres supports advisory locks; other dialects rely on the
// single-writer behaviour of the database.
func (r *Repository) LockUser(ctx context.Context, userID uuid.UUID) error {
	conn := r.DB(ctx)
	if !db.SupportsRowLocks(conn) {
		return nil
	}
	if err := conn.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "loans:"+userID.String()).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user loans")
	}
	return nil
}

// CountActiveByUser counts the user's unreturned loans.
func (r *Repository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND returned_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}
	return count, nil
}

func (r *Repository) Create(ctx context.Context, loan *models.Loan) error {
	if err := r.DB(ctx).Omit("BookCopy").Create(loan).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert loan")
	}
	return nil
}

// LockByID loads a loan for update.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.ForUpdate(ctx).
		Where("id = ?", id).
		Take(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loan")
	}
	return &loan, nil
}

// FindByID loads a loan together with its copy.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.DB(ctx).
		Preload("BookCopy").
		Where("id = ?", id).
		Take(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find loan")
	}
	return &loan, nil
}

// MarkReturned closes the loan and records the final fine.
func (r *Repository) MarkReturned(ctx context.Context, loan *models.Loan, at time.Time, fine decimal.Decimal) error {
	res := r.DB(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", loan.ID).
		Updates(map[string]any{
			"returned_at":       at,
			"fine_amount_final": fine,
			"updated_at":        at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark loan returned")
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReturned
	}
	loan.ReturnedAt = &at
	loan.FineAmountFinal = decimal.NewNullDecimal(fine)
	loan.UpdatedAt = at
	return nil
}

// Extend moves the due date and bumps the renewal counter, guarded by the
// renewal count the caller observed.
func (r *Repository) Extend(ctx context.Context, loan *models.Loan, due time.Time, at time.Time) error {
	res := r.DB(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND renewals_count = ? AND returned_at IS NULL", loan.ID, loan.RenewalsCount).
		Updates(map[string]any{
			"due_date":       due,
			"renewals_count": loan.RenewalsCount + 1,
			"updated_at":     at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "extend loan")
	}
	if res.RowsAffected == 0 {
		return errLoanChanged
	}
	loan.DueDate = due
	loan.RenewalsCount++
	loan.UpdatedAt = at
	return nil
}

// ListActiveByUser returns the user's open loans, soonest due first.
func (r *Repository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.DB(ctx).
		Preload("BookCopy").
		Where("user_id = ? AND returned_at IS NULL", userID).
		Order("due_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active loans")
	}
	return loans, nil
}

// ListOverdue returns open loans whose due date is before now.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.DB(ctx).
		Preload("BookCopy").
		Where("returned_at IS NULL AND due_date < ?", now).
		Order("due_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}
	return loans, nil
}

// EarliestDueDate returns the soonest due date among active loans of the
// title, or nil when no copy is out.
func (r *Repository) EarliestDueDate(ctx context.Context, titleID uuid.UUID) (*time.Time, error) {
	var dates []time.Time
	err := r.DB(ctx).
		Model(&models.Loan{}).
		Joins("JOIN book_copies ON book_copies.id = loans.book_copy_id").
		Where("book_copies.book_title_id = ? AND loans.returned_at IS NULL", titleID).
		Order("loans.due_date ASC").
		Limit(1).
		Pluck("loans.due_date", &dates).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "earliest due date")
	}
	if len(dates) == 0 {
		return nil, nil
	}
	due := dates[0].UTC()
	return &due, nil
}

// DueDates reads expected return dates on whatever connection it is handed,
// so other engines can consult it inside their own transactions.
type DueDates struct{}

func (DueDates) EarliestDueDate(ctx context.Context, conn *gorm.DB, titleID uuid.UUID) (*time.Time, error) {
	return NewRepository(conn).EarliestDueDate(ctx, titleID)
}

// Package inventory owns the status of physical book copies. Every status
// change goes through the Ledger so the hold fields stay consistent with the
// copy status.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/repo"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

var (
	// ErrCopyNotFound is returned when the targeted copy row does not exist.
	ErrCopyNotFound = pkgerrors.Rule(pkgerrors.CodeNotFound, "COPY_NOT_FOUND", "book copy not found")
	// ErrTitleNotFound is returned when a book title does not exist.
	ErrTitleNotFound = pkgerrors.Rule(pkgerrors.CodeNotFound, "TITLE_NOT_FOUND", "book title not found")
	// ErrCopyStateChanged is returned when another transaction moved the copy
	// away from the status observed by the caller.
	ErrCopyStateChanged = pkgerrors.Rule(pkgerrors.CodeConflict, "COPY_STATE_CHANGED", "book copy was modified concurrently")
	// ErrCopyNotAvailable is returned when a hold is requested on a copy that
	// is not AVAILABLE.
	ErrCopyNotAvailable = pkgerrors.Rule(pkgerrors.CodeStateConflict, "COPY_NOT_AVAILABLE", "book copy is not available")
)

// StatusCounts is the per-status breakdown of a title's copies.
type StatusCounts struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Loaned    int64 `json:"loaned"`
	OnHold    int64 `json:"on_hold"`
}

// Ledger applies copy status transitions. Bind it to a transaction with
// NewLedger(tx) when the change must commit together with other writes.
type Ledger struct {
	repo.Base
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		Base: repo.NewBase(db),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source used for updated_at.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

// MarkAvailable returns a copy to the shelf and clears any hold. It is
// idempotent for copies that are already AVAILABLE.
func (l *Ledger) MarkAvailable(ctx context.Context, bc *models.BookCopy) error {
	if bc == nil {
		return ErrCopyNotFound
	}
	res := l.DB(ctx).
		Model(&models.BookCopy{}).
		Where("id = ?", bc.ID).
		Updates(map[string]any{
			"status":              enums.CopyStatusAvailable,
			"hold_reservation_id": nil,
			"hold_expires_at":     nil,
			"updated_at":          l.now(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark copy available")
	}
	if res.RowsAffected == 0 {
		return ErrCopyNotFound
	}
	bc.Status = enums.CopyStatusAvailable
	bc.HoldReservationID = nil
	bc.HoldExpiresAt = nil
	return nil
}

// MarkLoaned lends the copy out. The update only applies if the copy still
// has the status the caller observed.
func (l *Ledger) MarkLoaned(ctx context.Context, bc *models.BookCopy) error {
	if bc == nil {
		return ErrCopyNotFound
	}
	if err := l.compareAndSet(ctx, bc, map[string]any{
		"status":              enums.CopyStatusLoaned,
		"hold_reservation_id": nil,
		"hold_expires_at":     nil,
	}); err != nil {
		return err
	}
	bc.Status = enums.CopyStatusLoaned
	bc.HoldReservationID = nil
	bc.HoldExpiresAt = nil
	return nil
}

// MarkOnHold reserves an AVAILABLE copy for reservationID until expiresAt.
func (l *Ledger) MarkOnHold(ctx context.Context, bc *models.BookCopy, reservationID uuid.UUID, expiresAt time.Time) error {
	if bc == nil {
		return ErrCopyNotFound
	}
	if bc.Status != enums.CopyStatusAvailable {
		return ErrCopyNotAvailable.WithDetails(map[string]any{"book_copy_id": bc.ID.String(), "status": bc.Status})
	}
	expiresAt = expiresAt.UTC()
	if err := l.compareAndSet(ctx, bc, map[string]any{
		"status":              enums.CopyStatusOnHold,
		"hold_reservation_id": reservationID,
		"hold_expires_at":     expiresAt,
	}); err != nil {
		return err
	}
	bc.Status = enums.CopyStatusOnHold
	bc.HoldReservationID = &reservationID
	bc.HoldExpiresAt = &expiresAt
	return nil
}

func (l *Ledger) compareAndSet(ctx context.Context, bc *models.BookCopy, updates map[string]any) error {
	updates["updated_at"] = l.now()
	res := l.DB(ctx).
		Model(&models.BookCopy{}).
		Where("id = ? AND status = ?", bc.ID, bc.Status).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update copy status")
	}
	if res.RowsAffected == 0 {
		return ErrCopyStateChanged.WithDetails(map[string]any{
			"book_copy_id":    bc.ID.String(),
			"expected_status": bc.Status,
		})
	}
	return nil
}

// CountByStatus reports how many copies of a title sit in each status.
func (l *Ledger) CountByStatus(ctx context.Context, titleID uuid.UUID) (StatusCounts, error) {
	var rows []struct {
		Status enums.CopyStatus
		Count  int64
	}
	err := l.DB(ctx).
		Model(&models.BookCopy{}).
		Select("status, COUNT(*) AS count").
		Where("book_title_id = ?", titleID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count copies by status")
	}

	var counts StatusCounts
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case enums.CopyStatusAvailable:
			counts.Available = row.Count
		case enums.CopyStatusLoaned:
			counts.Loaned = row.Count
		case enums.CopyStatusOnHold:
			counts.OnHold = row.Count
		}
	}
	return counts, nil
}

// LockAvailableCopy selects one AVAILABLE copy of the title and locks it for
// the rest of the transaction. Rows locked by concurrent transactions are
// skipped. It returns nil when no copy is available.
func (l *Ledger) LockAvailableCopy(ctx context.Context, titleID uuid.UUID) (*models.BookCopy, error) {
	var bc models.BookCopy
	err := l.ForUpdateSkipLocked(ctx).
		Where("book_title_id = ? AND status = ?", titleID, enums.CopyStatusAvailable).
		Order("created_at ASC").
		Order("id ASC").
		Take(&bc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock available copy")
	}
	return &bc, nil
}

// LockHeldCopy locks the copy currently held for reservationID, or returns
// nil when no copy references it.
func (l *Ledger) LockHeldCopy(ctx context.Context, reservationID uuid.UUID) (*models.BookCopy, error) {
	var bc models.BookCopy
	err := l.ForUpdate(ctx).
		Where("hold_reservation_id = ? AND status = ?", reservationID, enums.CopyStatusOnHold).
		Take(&bc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock held copy")
	}
	return &bc, nil
}

// TitleExists reports whether the book title is in the catalog.
func (l *Ledger) TitleExists(ctx context.Context, titleID uuid.UUID) (bool, error) {
	var count int64
	err := l.DB(ctx).Model(&models.BookTitle{}).Where("id = ?", titleID).Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup book title")
	}
	return count > 0, nil
}

// FindByID loads a copy without locking it.
func (l *Ledger) FindByID(ctx context.Context, id uuid.UUID) (*models.BookCopy, error) {
	var bc models.BookCopy
	err := l.DB(ctx).Where("id = ?", id).Take(&bc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCopyNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find copy")
	}
	return &bc, nil
}

// ListByTitle returns every copy of a title in shelf order.
func (l *Ledger) ListByTitle(ctx context.Context, titleID uuid.UUID) ([]models.BookCopy, error) {
	var copies []models.BookCopy
	err := l.DB(ctx).
		Where("book_title_id = ?", titleID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&copies).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list copies")
	}
	return copies, nil
}

// AddCopies shelves quantity new AVAILABLE copies of a title.
func (l *Ledger) AddCopies(ctx context.Context, titleID uuid.UUID, quantity int) ([]models.BookCopy, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	now := l.now()
	copies := make([]models.BookCopy, quantity)
	for i := range copies {
		copies[i] = models.BookCopy{
			ID:          uuid.New(),
			BookTitleID: titleID,
			Status:      enums.CopyStatusAvailable,
			CreatedAt:   now.Add(time.Duration(i) * time.Microsecond),
			UpdatedAt:   now,
		}
	}
	if err := l.DB(ctx).Create(&copies).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create copies")
	}
	return copies, nil
}

package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// HoldGateway is the narrow view of the queue the loan engine depends on.
// Every call runs on the caller's transaction.
type HoldGateway struct{}

// HasPendingReservation reports whether anyone is ACTIVE or ON_HOLD for the
// title.
func (HoldGateway) HasPendingReservation(ctx context.Context, tx *gorm.DB, titleID uuid.UUID) (bool, error) {
	return NewRepository(tx).HasPendingForTitle(ctx, titleID)
}

// ClaimHold fulfils the user's unexpired hold on the title and returns the
// held copy, still ON_HOLD, for the caller to lend. It returns nil when the
// user has no valid hold.
func (HoldGateway) ClaimHold(ctx context.Context, tx *gorm.DB, userID, titleID uuid.UUID, now time.Time) (*models.BookCopy, error) {
	repo := NewRepository(tx)
	reservation, err := repo.LockUserHold(ctx, userID, titleID)
	if err != nil || reservation == nil {
		return nil, err
	}
	if reservation.HoldExpiresAt == nil || !now.Before(*reservation.HoldExpiresAt) {
		return nil, nil
	}

	bookCopy, err := inventory.NewLedger(tx).LockHeldCopy(ctx, reservation.ID)
	if err != nil || bookCopy == nil {
		return nil, err
	}
	if err := repo.Transition(ctx, reservation, enums.ReservationStatusFulfilled, reservation.HoldExpiresAt, now); err != nil {
		return nil, err
	}
	return bookCopy, nil
}

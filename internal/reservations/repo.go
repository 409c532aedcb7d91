package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/repo"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

const pendingIndexName = "uq_reservations_pending_user_title"

// Repository encapsulates reservation persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a reservation repository bound to the provided gorm DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) Create(ctx context.Context, reservation *models.Reservation) error {
	err := r.DB(ctx).Create(reservation).Error
	if db.IsUniqueViolation(err, pendingIndexName) {
		return ErrDuplicateReservation
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reservation")
	}
	return nil
}

// HasPending reports whether the user already waits for the title.
func (r *Repository) HasPending(ctx context.Context, userID, titleID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Reservation{}).
		Where("user_id = ? AND book_title_id = ? AND status IN ?", userID, titleID, enums.PendingReservationStatuses).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending reservation")
	}
	return count > 0, nil
}

// HasPendingForTitle reports whether anyone is ACTIVE or ON_HOLD for the title.
func (r *Repository) HasPendingForTitle(ctx context.Context, titleID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Reservation{}).
		Where("book_title_id = ? AND status IN ?", titleID, enums.PendingReservationStatuses).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup title reservations")
	}
	return count > 0, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.DB(ctx).Where("id = ?", id).Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find reservation")
	}
	return &reservation, nil
}

// LockByID loads a reservation for update.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.ForUpdate(ctx).
		Where("id = ?", id).
		Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock reservation")
	}
	return &reservation, nil
}

// LockHeadOfQueue locks the oldest ACTIVE reservation of a title, or returns
// nil when the queue is empty. Rows locked by a concurrent pass are skipped so
// the next reader in line is served instead.
func (r *Repository) LockHeadOfQueue(ctx context.Context, titleID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.ForUpdateSkipLocked(ctx).
		Where("book_title_id = ? AND status = ?", titleID, enums.ReservationStatusActive).
		Order("created_at ASC").
		Order("id ASC").
		Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock queue head")
	}
	return &reservation, nil
}

// LockUserHold locks the user's ON_HOLD reservation for a title, if any.
func (r *Repository) LockUserHold(ctx context.Context, userID, titleID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.ForUpdate(ctx).
		Where("user_id = ? AND book_title_id = ? AND status = ?", userID, titleID, enums.ReservationStatusOnHold).
		Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user hold")
	}
	return &reservation, nil
}

// ListExpiredHolds returns ON_HOLD reservations whose deadline passed before now.
func (r *Repository) ListExpiredHolds(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.DB(ctx).
		Where("status = ? AND hold_expires_at < ?", enums.ReservationStatusOnHold, now).
		Order("hold_expires_at ASC").
		Find(&reservations).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired holds")
	}
	return reservations, nil
}

// TitlesWithActiveReservations lists every title that has someone queued.
func (r *Repository) TitlesWithActiveReservations(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.Reservation{}).
		Where("status = ?", enums.ReservationStatusActive).
		Distinct().
		Pluck("book_title_id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list queued titles")
	}
	return ids, nil
}

// Transition moves a reservation from one status to another, guarded by the
// status the caller observed.
func (r *Repository) Transition(ctx context.Context, reservation *models.Reservation, to enums.ReservationStatus, holdExpiresAt *time.Time, at time.Time) error {
	res := r.DB(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", reservation.ID, reservation.Status).
		Updates(map[string]any{
			"status":          to,
			"hold_expires_at": holdExpiresAt,
			"updated_at":      at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update reservation status")
	}
	if res.RowsAffected == 0 {
		return errReservationChanged.WithDetails(map[string]any{
			"reservation_id":  reservation.ID.String(),
			"expected_status": reservation.Status,
		})
	}
	reservation.Status = to
	reservation.HoldExpiresAt = holdExpiresAt
	reservation.UpdatedAt = at
	return nil
}

// QueuePosition ranks an ACTIVE reservation among the ACTIVE reservations of
// its title, starting at 1. Non-ACTIVE reservations have no position.
func (r *Repository) QueuePosition(ctx context.Context, reservation *models.Reservation) (int, error) {
	if reservation.Status != enums.ReservationStatusActive {
		return 0, nil
	}
	var ahead int64
	err := r.DB(ctx).
		Model(&models.Reservation{}).
		Where("book_title_id = ? AND status = ?", reservation.BookTitleID, enums.ReservationStatusActive).
		Where("created_at < ? OR (created_at = ? AND id < ?)", reservation.CreatedAt, reservation.CreatedAt, reservation.ID).
		Count(&ahead).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute queue position")
	}
	return int(ahead) + 1, nil
}

// ListByUser returns the user's reservations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&reservations).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user reservations")
	}
	return reservations, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/enums"
)

// Reservation is a user's place in the hold queue of a title. At most one
// non-terminal reservation exists per user and title.
type Reservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	BookTitleID   uuid.UUID               `gorm:"column:book_title_id;type:uuid;not null;index"`
	Status        enums.ReservationStatus `gorm:"column:status;not null;index"`
	HoldExpiresAt *time.Time              `gorm:"column:hold_expires_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;index"`
	UpdatedAt     time.Time               `gorm:"column:updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = enums.ReservationStatusActive
	}
	return nil
}

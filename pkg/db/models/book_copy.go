package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/enums"
)

// BookCopy is a lendable physical item. HoldReservationID and HoldExpiresAt
// are set exactly when Status is ON_HOLD.
type BookCopy struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BookTitleID       uuid.UUID        `gorm:"column:book_title_id;type:uuid;not null;index" json:"book_title_id"`
	Status            enums.CopyStatus `gorm:"column:status;not null;index" json:"status"`
	HoldReservationID *uuid.UUID       `gorm:"column:hold_reservation_id;type:uuid;index" json:"hold_reservation_id,omitempty"`
	HoldExpiresAt     *time.Time       `gorm:"column:hold_expires_at" json:"hold_expires_at,omitempty"`
	CreatedAt         time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (BookCopy) TableName() string { return "book_copies" }

func (c *BookCopy) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = enums.CopyStatusAvailable
	}
	return nil
}

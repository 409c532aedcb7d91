package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookTitle is a catalog work; lending happens against its copies.
type BookTitle struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title         string    `gorm:"column:title;not null"`
	AuthorID      uuid.UUID `gorm:"column:author_id;type:uuid;not null;index"`
	PublishedYear *int      `gorm:"column:published_year"`
	Pages         *int      `gorm:"column:pages"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BookTitle) TableName() string { return "book_titles" }

func (b *BookTitle) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

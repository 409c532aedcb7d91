package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-backend/pkg/db"
)

// Base provides a shared foundation for circulation repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(conn *gorm.DB) Base {
	return Base{db: conn}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// ForUpdate returns a context-bound query that row-locks whatever it reads.
// Dialects without row locks get the plain query.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	return b.locked(ctx, clause.Locking{Strength: "UPDATE"})
}

// ForUpdateSkipLocked is ForUpdate that skips rows held by other transactions.
func (b Base) ForUpdateSkipLocked(ctx context.Context) *gorm.DB {
	return b.locked(ctx, clause.Locking{
		Strength: "UPDATE",
		Options:  "SKIP LOCKED",
	})
}

func (b Base) locked(ctx context.Context, lock clause.Locking) *gorm.DB {
	tx := b.DB(ctx)
	if !db.SupportsRowLocks(tx) {
		return tx
	}
	return tx.Clauses(lock)
}

// Package dbtest opens isolated in-memory SQLite databases with the
// circulation schema for repository and service tests, plus a dry-run
// Postgres handle for asserting generated SQL.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// Open returns a fresh database. The pool is pinned to one connection so a
// transaction and its callers always share the same SQLite handle.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&models.Author{},
		&models.BookTitle{},
		&models.BookCopy{},
		&models.Reservation{},
		&models.Loan{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// OpenClient wraps Open in a db.Client.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}

// Recorder collects the SQL of every query run against a dry-run handle.
type Recorder struct {
	Statements []string
}

// Last returns the most recent statement, or "" when nothing ran.
func (r *Recorder) Last() string {
	if len(r.Statements) == 0 {
		return ""
	}
	return r.Statements[len(r.Statements)-1]
}

// OpenPostgresDryRun returns a Postgres-dialect handle that builds statements
// without a server. Queries return no rows.
func OpenPostgresDryRun(t testing.TB) (*gorm.DB, *Recorder) {
	t.Helper()
	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=library dbname=library sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open postgres dry run: %v", err)
	}
	rec := &Recorder{}
	capture := func(tx *gorm.DB) {
		rec.Statements = append(rec.Statements, tx.Statement.SQL.String())
	}
	if err := conn.Callback().Query().After("gorm:query").Register("dbtest:capture", capture); err != nil {
		t.Fatalf("register capture callback: %v", err)
	}
	return conn, rec
}

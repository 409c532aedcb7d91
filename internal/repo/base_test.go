package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ctxKey struct{}

type row struct {
	ID   uint
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&row{}))
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	require.Equal(t, ctx, withCtx.Statement.Context)

	require.Same(t, conn, base.DB(nil))
}

func TestForUpdateFallsBackWithoutRowLocks(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, conn.Create(&row{Name: "first"}).Error)
	base := NewBase(conn)

	var got row
	require.NoError(t, base.ForUpdate(context.Background()).Take(&got).Error)
	require.Equal(t, "first", got.Name)

	got = row{}
	require.NoError(t, base.ForUpdateSkipLocked(context.Background()).Where("name = ?", "first").Take(&got).Error)
	require.Equal(t, "first", got.Name)

	sql := conn.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return NewBase(tx).ForUpdate(context.Background()).Take(&row{})
	})
	require.NotContains(t, sql, "FOR UPDATE")
}

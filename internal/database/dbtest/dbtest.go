// Package dbtest opens throwaway in-memory SQLite databases migrated to the
// service schema.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/migration"
)

// Open returns connections to a freshly migrated schema. A single pooled connection
// keeps the in-memory database alive and serialises writers.
func Open(t *testing.T) *database.Connections {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	m, err := migration.NewForDB("sqlite", db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))

	return database.NewFromDB(db)
}

// Insert writes fixture rows.
func Insert(t *testing.T, conns *database.Connections, rows ...any) {
	t.Helper()
	for _, row := range rows {
		_, err := conns.Writer.NewInsert().Model(row).Exec(context.Background())
		require.NoError(t, err)
	}
}

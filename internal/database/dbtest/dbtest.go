// Package dbtest opens throwaway SQLite databases carrying the PlanetTerp schema.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/nwanne56/PlanetTerp/internal/database"
	"github.com/nwanne56/PlanetTerp/internal/logging"
	"github.com/stretchr/testify/require"
)

// NewSQLite returns a schema-initialized database backed by a file in t.TempDir().
// A file is used instead of :memory: so every pooled connection sees the same data.
func NewSQLite(t testing.TB) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pt.db")
	raw, err := sqlx.Connect("sqlite3", database.SQLiteDSN(path, 100))
	require.NoError(t, err)

	db, err := database.Wrap(raw, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.EnsureSchema(context.Background(), db))
	return db
}

// Count returns SELECT COUNT(*) for the given query
func Count(t testing.TB, db sqlx.QueryerContext, query string, args ...interface{}) int {
	t.Helper()

	var n int
	require.NoError(t, sqlx.GetContext(context.Background(), db, &n, query, args...))
	return n
}

// Exec runs a seeding statement and fails the test on error
func Exec(t testing.TB, db sqlx.ExecerContext, query string, args ...interface{}) {
	t.Helper()

	_, err := db.ExecContext(context.Background(), query, args...)
	require.NoError(t, err, query)
}

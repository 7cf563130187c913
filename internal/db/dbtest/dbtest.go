// Package dbtest hands tests a private, fully migrated in-memory SQLite database.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/AdamBeresnev/dojo-brackets/internal/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// New creates an in-memory SQLite database and applies migrations. Every call gets its own
// database, closed when the test ends.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:test-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	database, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err, "Failed to connect to in-memory DB")

	require.NoError(t, db.RunMigrations(database), "Failed to apply migrations")

	t.Cleanup(func() { database.Close() })
	return database
}

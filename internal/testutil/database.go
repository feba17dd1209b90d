package testutil

import (
	"testing"

	"plot-go/internal/database"
)

// NewTestDatabase creates an in-memory SQLite database with the schema
// applied, closed automatically when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", FixedClock())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

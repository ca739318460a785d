package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/cms-edge/internal/database"
)

// NewSQLiteDB opens a file-backed SQLite database in a temp directory that
// is removed when the test ends.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := database.Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "cms-edge.db"),
	}

	db, err := database.Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open SQLite database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

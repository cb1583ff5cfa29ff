package repository

import (
	"database/sql"
	"testing"

	"github.com/jmylchreest/leadscout-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates a migrated in-memory database that is closed when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

// SetUpdatedAt backdates a run row so stale-run recovery picks it up.
func SetUpdatedAt(t *testing.T, db *sql.DB, table, id, updatedAt string) {
	t.Helper()
	if _, err := db.Exec("UPDATE "+table+" SET updated_at = ? WHERE id = ?", updatedAt, id); err != nil {
		t.Fatalf("failed to backdate %s row: %v", table, err)
	}
}

// Package migrations applies versioned schema changes.
//
// Each change lives in its own file named YYYYMMDD-HHmmss-description.go and
// registers itself from init. Applied versions are recorded in schema_migrations
// so a change runs once per database.
package migrations

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Migration is one schema change.
type Migration struct {
	// Timestamp orders migrations and identifies them once applied ("20260301-000000").
	Timestamp   string
	Description string
	Up          []string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Timestamp   string
	Description string
	AppliedAt   time.Time
}

var registry []Migration

// Register adds m to the set applied by Run. Registering a timestamp twice panics.
func Register(m Migration) {
	for _, existing := range registry {
		if existing.Timestamp == m.Timestamp {
			panic(fmt.Sprintf("migrations: duplicate timestamp %s (%s, %s)", m.Timestamp, existing.Description, m.Description))
		}
	}
	registry = append(registry, m)
}

func sorted() []Migration {
	out := append([]Migration(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Run applies every pending migration in timestamp order.
func Run(db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	count := 0
	for _, m := range sorted() {
		if applied[m.Timestamp] {
			continue
		}
		logger.Info("applying migration", "version", m.Timestamp, "description", m.Description)
		if err := apply(db, m); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Timestamp, m.Description, err)
		}
		count++
	}
	if count > 0 {
		logger.Info("schema up to date", "applied", count)
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Up {
		if _, err := tx.Exec(stmt); err != nil {
			if ignorable(err, stmt) {
				continue
			}
			return fmt.Errorf("statement failed: %w\n%s", err, stmt)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		m.Timestamp, m.Description, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// ignorable lets re-applied ADD COLUMN and CREATE INDEX statements pass.
func ignorable(err error, stmt string) bool {
	msg := err.Error()
	if strings.Contains(msg, "duplicate column") {
		return true
	}
	return strings.Contains(msg, "already exists") && strings.Contains(stmt, "CREATE INDEX")
}

// GetAppliedMigrations returns applied migrations, oldest first.
func GetAppliedMigrations(db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.Query("SELECT version, description, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		var appliedAt string
		if err := rows.Scan(&m.Timestamp, &m.Description, &appliedAt); err != nil {
			return nil, err
		}
		m.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetPendingMigrations returns registered migrations that have not been applied.
func GetPendingMigrations(db *sql.DB) ([]Migration, error) {
	applied, err := appliedVersions(db)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range sorted() {
		if !applied[m.Timestamp] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

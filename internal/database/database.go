// Package database opens the libsql store and applies schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/leadscout-api/internal/database/migrations"
)

// Options selects how the store is opened.
type Options struct {
	// TursoURL and TursoAuthToken enable embedded replica mode when both are set.
	TursoURL       string
	TursoAuthToken string
	MaxOpenConns   int
}

// New opens a libsql database.
//
//   - Local file: dsn "file:leadscout.db"
//   - In memory: dsn ":memory:" (a single connection is kept so every query sees the same data)
//   - Embedded replica: a local file synced with Turso when both Turso options are set
func New(dsn string, opts Options) (*sql.DB, error) {
	var db *sql.DB

	if opts.TursoURL != "" && opts.TursoAuthToken != "" {
		dbPath := strings.TrimPrefix(dsn, "file:")
		dbPath = strings.Split(dbPath, "?")[0]

		connector, err := libsql.NewEmbeddedReplicaConnector(dbPath, opts.TursoURL,
			libsql.WithAuthToken(opts.TursoAuthToken),
			libsql.WithReadYourWrites(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Turso connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		var err error
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	switch {
	case dsn == ":memory:":
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Ping reports whether the store answers within ctx. Used by the readiness probe.
func Ping(ctx context.Context, db *sql.DB) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}

// Migrate applies pending migrations.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// PendingMigrations lists registered migrations not yet applied.
func PendingMigrations(db *sql.DB) ([]migrations.Migration, error) {
	return migrations.GetPendingMigrations(db)
}

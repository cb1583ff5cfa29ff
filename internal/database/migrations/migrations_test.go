package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRun_AppliesAllAndIsIdempotent(t *testing.T) {
	db := openMemory(t)

	if err := Run(db, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := Run(db, nil); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		t.Fatalf("GetAppliedMigrations() error = %v", err)
	}
	if len(applied) != len(registry) {
		t.Errorf("applied = %d, want %d", len(applied), len(registry))
	}

	pending, err := GetPendingMigrations(db)
	if err != nil {
		t.Fatalf("GetPendingMigrations() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	for _, table := range []string{"discovery_runs", "seller_runs", "site_analyses"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	saved := registry
	t.Cleanup(func() { registry = saved })

	registry = nil
	Register(Migration{Timestamp: "20990101-000000", Description: "a"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate timestamp")
		}
	}()
	Register(Migration{Timestamp: "20990101-000000", Description: "b"})
}

func TestIgnorable(t *testing.T) {
	tests := []struct {
		msg  string
		stmt string
		want bool
	}{
		{"duplicate column name: x", "ALTER TABLE t ADD COLUMN x", true},
		{"index idx already exists", "CREATE INDEX idx ON t(x)", true},
		{"table t already exists", "CREATE TABLE t (x)", false},
		{"syntax error", "CREATE INDEX idx ON t(x)", false},
	}
	for _, tt := range tests {
		if got := ignorable(errString(tt.msg), tt.stmt); got != tt.want {
			t.Errorf("ignorable(%q, %q) = %v, want %v", tt.msg, tt.stmt, got, tt.want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }

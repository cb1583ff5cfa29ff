// Package repository persists runs and the cross-run analysis cache in libsql.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/models"
)

var (
	// ErrVersionConflict is returned by Update when the stored version moved on
	// since the aggregate was loaded.
	ErrVersionConflict = errors.New("version conflict")
	// ErrNotFound is returned by Update when the row no longer exists.
	ErrNotFound = errors.New("not found")
)

// DiscoveryRunRepository stores discovery runs.
type DiscoveryRunRepository interface {
	Create(ctx context.Context, run *models.DiscoveryRun) error
	// GetByID returns nil, nil when the run does not exist.
	GetByID(ctx context.Context, id string) (*models.DiscoveryRun, error)
	// Update saves run if its version still matches and bumps run.Version.
	Update(ctx context.Context, run *models.DiscoveryRun) error
	List(ctx context.Context, filter models.RunFilter) ([]models.RunSummary, int, error)
	Delete(ctx context.Context, id string) (bool, error)
	// FindRecentCompleted returns the newest completed run for seedRef created after since.
	FindRecentCompleted(ctx context.Context, seedRef string, since time.Time) (*models.DiscoveryRun, error)
	// MarkStaleFailed fails runs still processing whose last write is before the given time.
	MarkStaleFailed(ctx context.Context, before time.Time, msg string) ([]string, error)
}

// SellerRunRepository stores Amazon seller runs.
type SellerRunRepository interface {
	Create(ctx context.Context, run *models.SellerRun) error
	GetByID(ctx context.Context, id string) (*models.SellerRun, error)
	Update(ctx context.Context, run *models.SellerRun) error
	List(ctx context.Context, filter models.RunFilter) ([]models.SellerRunSummary, int, error)
	Delete(ctx context.Context, id string) (bool, error)
	MarkStaleFailed(ctx context.Context, before time.Time, msg string) ([]string, error)
}

// SiteAnalysisRepository stores the latest traffic analysis per domain.
type SiteAnalysisRepository interface {
	// Upsert replaces any analysis with the same domain key.
	Upsert(ctx context.Context, a *models.SiteAnalysis) error
	GetByID(ctx context.Context, id string) (*models.SiteAnalysis, error)
	GetByDomain(ctx context.Context, domainKey string) (*models.SiteAnalysis, error)
	// FindMatching returns the freshest analysis whose domain key contains domainKey,
	// preferring an exact match, analyzed at or after since.
	FindMatching(ctx context.Context, domainKey string, since time.Time) (*models.SiteAnalysis, error)
}

// Repositories holds all repository implementations.
type Repositories struct {
	DiscoveryRun DiscoveryRunRepository
	SellerRun    SellerRunRepository
	SiteAnalysis SiteAnalysisRepository
}

// NewRepositories creates all repositories backed by db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		DiscoveryRun: NewSQLiteDiscoveryRunRepository(db),
		SellerRun:    NewSQLiteSellerRunRepository(db),
		SiteAnalysis: NewSQLiteSiteAnalysisRepository(db),
	}
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// listWhere builds the owner/status filter shared by the run tables.
func listWhere(f models.RunFilter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if f.Owner != "" {
		where += " AND owner = ?"
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, string(f.Status))
	}
	return where, args
}

// resolveUpdate turns a zero-row optimistic update into the right error.
func resolveUpdate(ctx context.Context, db *sql.DB, table, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

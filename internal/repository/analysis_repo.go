package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/models"
)

// SQLiteSiteAnalysisRepository implements SiteAnalysisRepository for SQLite.
type SQLiteSiteAnalysisRepository struct {
	db *sql.DB
}

// NewSQLiteSiteAnalysisRepository creates a new SQLite site analysis repository.
func NewSQLiteSiteAnalysisRepository(db *sql.DB) *SQLiteSiteAnalysisRepository {
	return &SQLiteSiteAnalysisRepository{db: db}
}

// Upsert keeps the original row id on conflict and writes it back to a.ID.
func (r *SQLiteSiteAnalysisRepository) Upsert(ctx context.Context, a *models.SiteAnalysis) error {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	query := `
		INSERT INTO site_analyses (id, domain_key, url, metrics, analyzed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain_key) DO UPDATE SET
			url = excluded.url,
			metrics = excluded.metrics,
			analyzed_at = excluded.analyzed_at
	`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.DomainKey, a.URL, string(metrics), formatTime(a.AnalyzedAt)); err != nil {
		return fmt.Errorf("failed to save site analysis: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM site_analyses WHERE domain_key = ?`, a.DomainKey).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to read site analysis id: %w", err)
	}
	return nil
}

func (r *SQLiteSiteAnalysisRepository) GetByID(ctx context.Context, id string) (*models.SiteAnalysis, error) {
	return scanSiteAnalysis(r.db.QueryRowContext(ctx,
		`SELECT id, domain_key, url, metrics, analyzed_at FROM site_analyses WHERE id = ?`, id))
}

func (r *SQLiteSiteAnalysisRepository) GetByDomain(ctx context.Context, domainKey string) (*models.SiteAnalysis, error) {
	return scanSiteAnalysis(r.db.QueryRowContext(ctx,
		`SELECT id, domain_key, url, metrics, analyzed_at FROM site_analyses WHERE domain_key = ?`, domainKey))
}

func (r *SQLiteSiteAnalysisRepository) FindMatching(ctx context.Context, domainKey string, since time.Time) (*models.SiteAnalysis, error) {
	if domainKey == "" {
		return nil, nil
	}
	query := `
		SELECT id, domain_key, url, metrics, analyzed_at FROM site_analyses
		WHERE domain_key LIKE ? ESCAPE '\' AND analyzed_at >= ?
		ORDER BY (domain_key = ?) DESC, analyzed_at DESC
		LIMIT 1
	`
	return scanSiteAnalysis(r.db.QueryRowContext(ctx, query, "%"+escapeLike(domainKey)+"%", formatTime(since), domainKey))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanSiteAnalysis(row rowScanner) (*models.SiteAnalysis, error) {
	var a models.SiteAnalysis
	var metrics, analyzedAt string
	err := row.Scan(&a.ID, &a.DomainKey, &a.URL, &metrics, &analyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan site analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	a.AnalyzedAt = parseTime(analyzedAt)
	return &a, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/models"
)

// SQLiteDiscoveryRunRepository implements DiscoveryRunRepository for SQLite.
// The aggregate is stored as a JSON document next to the columns used for filtering.
type SQLiteDiscoveryRunRepository struct {
	db *sql.DB
}

// NewSQLiteDiscoveryRunRepository creates a new SQLite discovery run repository.
func NewSQLiteDiscoveryRunRepository(db *sql.DB) *SQLiteDiscoveryRunRepository {
	return &SQLiteDiscoveryRunRepository{db: db}
}

func (r *SQLiteDiscoveryRunRepository) Create(ctx context.Context, run *models.DiscoveryRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if run.Version == 0 {
		run.Version = 1
	}
	query := `
		INSERT INTO discovery_runs (id, owner, seed_reference, search_query, status, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Owner,
		run.SeedReference,
		run.SearchQuery,
		string(run.Status),
		string(data),
		run.Version,
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create discovery run: %w", err)
	}
	return nil
}

func (r *SQLiteDiscoveryRunRepository) GetByID(ctx context.Context, id string) (*models.DiscoveryRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT data, version FROM discovery_runs WHERE id = ?`, id)
	return scanDiscoveryRun(row)
}

func (r *SQLiteDiscoveryRunRepository) Update(ctx context.Context, run *models.DiscoveryRun) error {
	run.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	query := `
		UPDATE discovery_runs
		SET search_query = ?, status = ?, data = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		run.SearchQuery,
		string(run.Status),
		string(data),
		formatTime(run.UpdatedAt),
		run.ID,
		run.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update discovery run: %w", err)
	}
	if err := resolveUpdate(ctx, r.db, "discovery_runs", run.ID, res); err != nil {
		return err
	}
	run.Version++
	return nil
}

func (r *SQLiteDiscoveryRunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.RunSummary, int, error) {
	where, args := listWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM discovery_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count discovery runs: %w", err)
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := "SELECT data, version FROM discovery_runs" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list discovery runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []models.RunSummary{}
	for rows.Next() {
		run, err := scanDiscoveryRun(rows)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, run.Summary())
	}
	return summaries, total, rows.Err()
}

func (r *SQLiteDiscoveryRunRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM discovery_runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete discovery run: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SQLiteDiscoveryRunRepository) FindRecentCompleted(ctx context.Context, seedRef string, since time.Time) (*models.DiscoveryRun, error) {
	query := `
		SELECT data, version FROM discovery_runs
		WHERE seed_reference = ? AND status = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, seedRef, string(models.RunStatusCompleted), formatTime(since))
	return scanDiscoveryRun(row)
}

func (r *SQLiteDiscoveryRunRepository) MarkStaleFailed(ctx context.Context, before time.Time, msg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data, version FROM discovery_runs WHERE status = ? AND updated_at < ?`,
		string(models.RunStatusProcessing), formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale discovery runs: %w", err)
	}
	var stale []*models.DiscoveryRun
	for rows.Next() {
		run, err := scanDiscoveryRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		stale = append(stale, run)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := []string{}
	now := time.Now().UTC()
	for _, run := range stale {
		run.Fail(msg, now)
		if err := r.Update(ctx, run); err != nil {
			if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
				continue
			}
			return ids, err
		}
		ids = append(ids, run.ID)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiscoveryRun(row rowScanner) (*models.DiscoveryRun, error) {
	var data string
	var version int
	err := row.Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan discovery run: %w", err)
	}
	var run models.DiscoveryRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to decode discovery run: %w", err)
	}
	run.Version = version
	return &run, nil
}

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

// SQLiteSellerRunRepository implements SellerRunRepository for SQLite.
type SQLiteSellerRunRepository struct {
	db *sql.DB
}

// NewSQLiteSellerRunRepository creates a new SQLite seller run repository.
func NewSQLiteSellerRunRepository(db *sql.DB) *SQLiteSellerRunRepository {
	return &SQLiteSellerRunRepository{db: db}
}

func (r *SQLiteSellerRunRepository) Create(ctx context.Context, run *models.SellerRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode seller run: %w", err)
	}
	if run.Version == 0 {
		run.Version = 1
	}
	query := `
		INSERT INTO seller_runs (id, owner, source_url, marketplace, status, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Owner,
		run.SourceURL,
		run.Marketplace,
		string(run.Status),
		string(data),
		run.Version,
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create seller run: %w", err)
	}
	return nil
}

func (r *SQLiteSellerRunRepository) GetByID(ctx context.Context, id string) (*models.SellerRun, error) {
	return scanSellerRun(r.db.QueryRowContext(ctx, `SELECT data, version FROM seller_runs WHERE id = ?`, id))
}

func (r *SQLiteSellerRunRepository) Update(ctx context.Context, run *models.SellerRun) error {
	run.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode seller run: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE seller_runs
		SET status = ?, data = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(run.Status), string(data), formatTime(run.UpdatedAt), run.ID, run.Version)
	if err != nil {
		return fmt.Errorf("failed to update seller run: %w", err)
	}
	if err := resolveUpdate(ctx, r.db, "seller_runs", run.ID, res); err != nil {
		return err
	}
	run.Version++
	return nil
}

func (r *SQLiteSellerRunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.SellerRunSummary, int, error) {
	where, args := listWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seller_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count seller runs: %w", err)
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT data, version FROM seller_runs"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list seller runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []models.SellerRunSummary{}
	for rows.Next() {
		run, err := scanSellerRun(rows)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, run.Summary())
	}
	return summaries, total, rows.Err()
}

func (r *SQLiteSellerRunRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seller_runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete seller run: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SQLiteSellerRunRepository) MarkStaleFailed(ctx context.Context, before time.Time, msg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data, version FROM seller_runs WHERE status = ? AND updated_at < ?`,
		string(models.RunStatusProcessing), formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale seller runs: %w", err)
	}
	var stale []*models.SellerRun
	for rows.Next() {
		run, err := scanSellerRun(rows)
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

func scanSellerRun(row rowScanner) (*models.SellerRun, error) {
	var data string
	var version int
	err := row.Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan seller run: %w", err)
	}
	var run models.SellerRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to decode seller run: %w", err)
	}
	run.Version = version
	return &run, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/leadscout-api/internal/logging"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/repository"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

// AmazonMarketplaces are the storefront hosts seller runs accept. Longer suffixes first.
var AmazonMarketplaces = []string{"amazon.co.uk", "amazon.it", "amazon.fr", "amazon.de", "amazon.es", "amazon.com"}

// ParseAmazonURL validates a marketplace search URL and returns its marketplace
// host and the search keywords (the k parameter).
func ParseAmazonURL(raw string) (marketplace, query string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrInvalidMarketplace
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", "", ErrInvalidMarketplace
	}
	host := strings.ToLower(u.Hostname())
	for _, m := range AmazonMarketplaces {
		if host == m || strings.HasSuffix(host, "."+m) {
			return m, strings.TrimSpace(u.Query().Get("k")), nil
		}
	}
	return "", "", ErrInvalidMarketplace
}

// SellerService is the entry point for Amazon seller runs.
type SellerService struct {
	repo     repository.SellerRunRepository
	store    *RunStore
	pipeline *SellerPipeline
	tasks    TaskSubmitter
	storage  *StorageService
	now      func() time.Time
	logger   *slog.Logger
}

// NewSellerService creates a seller service.
func NewSellerService(
	repo repository.SellerRunRepository,
	store *RunStore,
	pipeline *SellerPipeline,
	tasks TaskSubmitter,
	storage *StorageService,
	logger *slog.Logger,
) *SellerService {
	return &SellerService{
		repo:     repo,
		store:    store,
		pipeline: pipeline,
		tasks:    tasks,
		storage:  storage,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "seller-service"),
	}
}

// Create persists a processing seller run for an Amazon search URL and queues it.
func (s *SellerService) Create(ctx context.Context, actor Actor, amazonURL string) (*models.SellerRun, error) {
	marketplace, query, err := ParseAmazonURL(amazonURL)
	if err != nil {
		return nil, err
	}

	run := models.NewSellerRun(ulid.Make().String(), actor.ID, strings.TrimSpace(amazonURL), marketplace, query, s.now())
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create seller run: %w", err)
	}
	s.logger.Info("seller run created",
		"run_id", run.ID,
		"owner", actor.ID,
		"marketplace", marketplace,
		"query", query,
	)

	err = s.tasks.Submit(worker.Task{
		Name: "sellers:" + run.ID,
		Run: func(ctx context.Context) {
			s.pipeline.Run(ctx, run.ID)
		},
		OnPanic: func(ctx context.Context, recovered any) {
			s.pipeline.FailRun(logging.WithRunID(ctx, run.ID), run.ID, fmt.Sprintf("internal error: %v", recovered))
		},
	})
	if err != nil {
		s.pipeline.FailRun(context.Background(), run.ID, fmt.Sprintf("could not be scheduled: %v", err))
		return nil, fmt.Errorf("failed to schedule seller task: %w", err)
	}
	return run, nil
}

// Get returns a seller run the actor may read.
func (s *SellerService) Get(ctx context.Context, actor Actor, id string) (*models.SellerRun, error) {
	run, err := s.store.GetSeller(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(run.Owner) {
		return nil, ErrForbidden
	}
	return run, nil
}

// List returns seller run summaries, newest first. bdr actors only see their own runs.
func (s *SellerService) List(ctx context.Context, actor Actor, status models.RunStatus, page, limit int) (*ListResult[models.SellerRunSummary], error) {
	page, limit = normalizePaging(page, limit)
	runs, total, err := s.repo.List(ctx, models.RunFilter{
		Owner:  actor.listScope(),
		Status: status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list seller runs: %w", err)
	}
	return newListResult(runs, page, limit, total), nil
}

// Delete removes a seller run. Only the owner may delete.
func (s *SellerService) Delete(ctx context.Context, actor Actor, id string) error {
	run, err := s.store.GetSeller(ctx, id)
	if err != nil {
		return err
	}
	if run.Owner != actor.ID {
		return ErrForbidden
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete seller run: %w", err)
	}
	if !deleted {
		return ErrRunNotFound
	}
	if err := s.storage.DeleteArchive(ctx, ArchiveKindSeller, id); err != nil {
		s.logger.Warn("failed to delete seller run archive", "run_id", id, "error", err)
	}
	s.logger.Info("seller run deleted", "run_id", id, "owner", actor.ID)
	return nil
}

// RecoverStale fails seller runs still processing and last written before
// startedAt.
func (s *SellerService) RecoverStale(ctx context.Context, startedAt time.Time) ([]string, error) {
	ids, err := s.repo.MarkStaleFailed(ctx, startedAt, StaleRunMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to recover stale seller runs: %w", err)
	}
	if len(ids) > 0 {
		s.logger.Warn("marked stale seller runs failed", "count", len(ids), "run_ids", ids)
	}
	return ids, nil
}

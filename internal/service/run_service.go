package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/leadscout-api/internal/auth"
	"github.com/jmylchreest/leadscout-api/internal/logging"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/repository"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

// StaleRunMessage is logged on runs failed by startup recovery.
const StaleRunMessage = "terminated: server restart"

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role auth.Role
}

// CanRead reports whether the actor may see a run owned by owner.
func (a Actor) CanRead(owner string) bool {
	return a.ID == owner || a.Role.IsPrivileged()
}

// listScope returns the owner filter for list queries.
func (a Actor) listScope() string {
	if a.Role.IsPrivileged() {
		return ""
	}
	return a.ID
}

// ThresholdOverrides replace individual default thresholds on a new run.
type ThresholdOverrides struct {
	MinDomestic *int64
	MinAbroad   *int64
	MaxDomestic *int64
}

// Apply returns base with the overrides set, or ErrInvalidThresholds.
func (o *ThresholdOverrides) Apply(base models.Thresholds) (models.Thresholds, error) {
	if o != nil {
		if o.MinDomestic != nil {
			base.MinDomestic = *o.MinDomestic
		}
		if o.MinAbroad != nil {
			base.MinAbroad = *o.MinAbroad
		}
		if o.MaxDomestic != nil {
			base.MaxDomestic = *o.MaxDomestic
		}
	}
	if base.MinDomestic < 0 || base.MinAbroad < 0 || base.MaxDomestic < base.MinDomestic {
		return base, ErrInvalidThresholds
	}
	return base, nil
}

// CreateRunInput is a request for a new discovery run.
type CreateRunInput struct {
	Seed       Seed
	Thresholds *ThresholdOverrides
}

// CreateRunResult is the created (or reused) run.
type CreateRunResult struct {
	Run       *models.DiscoveryRun
	FromCache bool
}

// ListResult is one page of run summaries.
type ListResult[T any] struct {
	Runs  []T
	Page  int
	Limit int
	Total int
	Pages int
}

func newListResult[T any](runs []T, page, limit, total int) *ListResult[T] {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &ListResult[T]{Runs: runs, Page: page, Limit: limit, Total: total, Pages: pages}
}

// normalizePaging clamps page (1-based) and limit to the list bounds.
func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// RunServiceConfig holds discovery run settings.
type RunServiceConfig struct {
	Defaults        models.Thresholds
	RecentRunWindow time.Duration
}

// RunService is the entry point for discovery runs. Pipelines run in the background.
type RunService struct {
	cfg      RunServiceConfig
	repo     repository.DiscoveryRunRepository
	store    *RunStore
	resolver *SeedResolver
	pipeline *LeadPipeline
	tasks    TaskSubmitter
	storage  *StorageService
	now      func() time.Time
	logger   *slog.Logger
}

// NewRunService creates a run service.
func NewRunService(
	cfg RunServiceConfig,
	repo repository.DiscoveryRunRepository,
	store *RunStore,
	resolver *SeedResolver,
	pipeline *LeadPipeline,
	tasks TaskSubmitter,
	storage *StorageService,
	logger *slog.Logger,
) *RunService {
	if cfg.Defaults == (models.Thresholds{}) {
		cfg.Defaults = models.DefaultThresholds()
	}
	return &RunService{
		cfg:      cfg,
		repo:     repo,
		store:    store,
		resolver: resolver,
		pipeline: pipeline,
		tasks:    tasks,
		storage:  storage,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "run-service"),
	}
}

// Create resolves the seed, persists a processing run and queues the pipeline. A
// completed run for the same seed inside the recent-run window is returned instead.
func (s *RunService) Create(ctx context.Context, actor Actor, in CreateRunInput) (*CreateRunResult, error) {
	thresholds, err := in.Thresholds.Apply(s.cfg.Defaults)
	if err != nil {
		return nil, err
	}

	seed, err := s.resolver.Resolve(ctx, in.Seed)
	if err != nil {
		return nil, err
	}

	if s.cfg.RecentRunWindow > 0 {
		recent, err := s.repo.FindRecentCompleted(ctx, seed.Reference, s.now().Add(-s.cfg.RecentRunWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to look up recent runs: %w", err)
		}
		if recent != nil && actor.CanRead(recent.Owner) && recent.Thresholds == thresholds {
			s.logger.Info("reusing recent run", "run_id", recent.ID, "seed", seed.Reference)
			return &CreateRunResult{Run: recent, FromCache: true}, nil
		}
	}

	run := models.NewDiscoveryRun(ulid.Make().String(), actor.ID, seed.Reference, seed.Query, thresholds, s.now())
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Info("discovery run created",
		"run_id", run.ID,
		"owner", actor.ID,
		"query", run.SearchQuery,
		"seed", run.SeedReference,
	)

	if err := s.schedule(run.ID, "discovery", s.pipeline.Run); err != nil {
		return nil, err
	}
	return &CreateRunResult{Run: run}, nil
}

// schedule queues fn for runID. A run that cannot be queued is failed.
func (s *RunService) schedule(runID, kind string, fn func(ctx context.Context, runID string)) error {
	err := s.tasks.Submit(worker.Task{
		Name: kind + ":" + runID,
		Run: func(ctx context.Context) {
			fn(ctx, runID)
		},
		OnPanic: func(ctx context.Context, recovered any) {
			s.pipeline.FailRun(logging.WithRunID(ctx, runID), runID, fmt.Sprintf("internal error: %v", recovered))
		},
	})
	if err != nil {
		s.pipeline.FailRun(context.Background(), runID, fmt.Sprintf("could not be scheduled: %v", err))
		return fmt.Errorf("failed to schedule %s task: %w", kind, err)
	}
	return nil
}

// Get returns a run the actor may read.
func (s *RunService) Get(ctx context.Context, actor Actor, id string) (*models.DiscoveryRun, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(run.Owner) {
		return nil, ErrForbidden
	}
	return run, nil
}

// List returns run summaries, newest first. bdr actors only see their own runs.
func (s *RunService) List(ctx context.Context, actor Actor, status models.RunStatus, page, limit int) (*ListResult[models.RunSummary], error) {
	page, limit = normalizePaging(page, limit)
	runs, total, err := s.repo.List(ctx, models.RunFilter{
		Owner:  actor.listScope(),
		Status: status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return newListResult(runs, page, limit, total), nil
}

// Delete removes a run. Only the owner may delete.
func (s *RunService) Delete(ctx context.Context, actor Actor, id string) error {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Owner != actor.ID {
		return ErrForbidden
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if !deleted {
		return ErrRunNotFound
	}
	if err := s.storage.DeleteArchive(ctx, ArchiveKindDiscovery, id); err != nil {
		s.logger.Warn("failed to delete run archive", "run_id", id, "error", err)
	}
	s.logger.Info("discovery run deleted", "run_id", id, "owner", actor.ID)
	return nil
}

// Expand reopens a finished run and queues an expansion pass.
func (s *RunService) Expand(ctx context.Context, actor Actor, id string) (*models.DiscoveryRun, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	run, err := s.store.Mutate(ctx, id, func(r *models.DiscoveryRun) error {
		if r.IsProcessing() {
			return ErrRunProcessing
		}
		r.Reopen(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("expanding run", "run_id", id, "bookmark", run.Counters.SearchPageBookmark)

	if err := s.schedule(id, "expand", s.pipeline.Expand); err != nil {
		return nil, err
	}
	return run, nil
}

// Enrich queues contact extraction for one analyzed candidate. It always re-runs.
func (s *RunService) Enrich(ctx context.Context, actor Actor, id string, index int) error {
	run, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(run.Items) {
		return ErrItemNotFound
	}
	if run.Items[index].Status() != models.CandidateAnalyzed {
		return ErrNotEnrichable
	}

	err = s.tasks.Submit(worker.Task{
		Name: fmt.Sprintf("enrich:%s/%d", id, index),
		Run: func(ctx context.Context) {
			ctx = logging.WithRunID(ctx, id)
			if err := s.pipeline.Enrich(ctx, id, index); err != nil && !errors.Is(err, ErrRunNotFound) {
				s.logger.Warn("enrichment not recorded", "run_id", id, "index", index, "error", err)
			}
		},
		OnPanic: func(ctx context.Context, recovered any) {
			_ = s.pipeline.recordEnrichment(ctx, id, index, nil, 0, fmt.Errorf("panic: %v", recovered))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to schedule enrichment: %w", err)
	}
	return nil
}

// RecoverStale fails runs left processing by a previous process. Tasks only
// live in this process's pool, so every run still processing and last written
// before startedAt has nothing left to finish it.
func (s *RunService) RecoverStale(ctx context.Context, startedAt time.Time) ([]string, error) {
	ids, err := s.repo.MarkStaleFailed(ctx, startedAt, StaleRunMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to recover stale runs: %w", err)
	}
	if len(ids) > 0 {
		s.logger.Warn("marked stale discovery runs failed", "count", len(ids), "run_ids", ids)
	}
	return ids, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/repository"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

// maxConflictRetries bounds reloads after an optimistic version conflict.
const maxConflictRetries = 3

// errNoChange lets a mutation skip the save.
var errNoChange = errors.New("no change")

// RunStore serializes read-modify-save cycles on run aggregates. Writers in this
// process queue on a per-run mutex; writers elsewhere are caught by the version check.
type RunStore struct {
	runs    repository.DiscoveryRunRepository
	sellers repository.SellerRunRepository
	locks   *worker.KeyedMutex
	logger  *slog.Logger
}

// NewRunStore creates a RunStore.
func NewRunStore(runs repository.DiscoveryRunRepository, sellers repository.SellerRunRepository, logger *slog.Logger) *RunStore {
	return &RunStore{
		runs:    runs,
		sellers: sellers,
		locks:   worker.NewKeyedMutex(),
		logger:  logger.With("component", "run-store"),
	}
}

// Get loads a discovery run. Missing runs are ErrRunNotFound.
func (s *RunStore) Get(ctx context.Context, id string) (*models.DiscoveryRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// GetSeller loads a seller run. Missing runs are ErrRunNotFound.
func (s *RunStore) GetSeller(ctx context.Context, id string) (*models.SellerRun, error) {
	run, err := s.sellers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load seller run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Mutate applies fn to the latest copy of a discovery run and saves it. If fn
// returns an error nothing is saved and the error is returned. The saved run is returned.
func (s *RunStore) Mutate(ctx context.Context, id string, fn func(r *models.DiscoveryRun) error) (*models.DiscoveryRun, error) {
	return mutate(ctx, s, "discovery:"+id, func(ctx context.Context) (*models.DiscoveryRun, error) {
		return s.Get(ctx, id)
	}, s.runs.Update, fn)
}

// MutateSeller is Mutate for seller runs.
func (s *RunStore) MutateSeller(ctx context.Context, id string, fn func(r *models.SellerRun) error) (*models.SellerRun, error) {
	return mutate(ctx, s, "seller:"+id, func(ctx context.Context) (*models.SellerRun, error) {
		return s.GetSeller(ctx, id)
	}, s.sellers.Update, fn)
}

func mutate[T any](
	ctx context.Context,
	s *RunStore,
	key string,
	load func(context.Context) (*T, error),
	save func(context.Context, *T) error,
	fn func(*T) error,
) (*T, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	for attempt := 0; ; attempt++ {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := fn(v); err != nil {
			if errors.Is(err, errNoChange) {
				return v, nil
			}
			return nil, err
		}
		err = save(ctx, v)
		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRunNotFound
		case errors.Is(err, repository.ErrVersionConflict) && attempt < maxConflictRetries:
			s.logger.Debug("version conflict, reloading", "key", key, "attempt", attempt+1)
			continue
		default:
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}
}

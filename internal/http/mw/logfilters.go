package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	logfilter "github.com/jmylchreest/slog-logfilter"

	"github.com/jmylchreest/leadscout-api/internal/config"
	"github.com/jmylchreest/leadscout-api/internal/logging"
)

// LogFiltersLoader polls a filters document in object storage and applies it to
// the runtime logger. Existing filters are kept when a fetch or parse fails.
type LogFiltersLoader struct {
	source *config.S3Loader
	logger *slog.Logger

	mu          sync.RWMutex
	etag        string
	lastFetch   time.Time
	initialized bool
	filterCount int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLogFiltersLoader creates a loader over source. A nil logger uses slog.Default().
func NewLogFiltersLoader(source *config.S3Loader, logger *slog.Logger) *LogFiltersLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogFiltersLoader{
		source: source,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start fetches the filters and then refreshes them every cache TTL.
func (l *LogFiltersLoader) Start(ctx context.Context) {
	if l.source == nil || !l.source.IsEnabled() {
		l.logger.Info("log filters loader disabled (no S3 client)")
		return
	}

	l.refresh(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.source.CacheTTL())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.refresh(ctx)
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	l.logger.Info("log filters loader started", "cache_ttl", l.source.CacheTTL().String())
}

// Stop stops the periodic refresh. It is safe to call more than once.
func (l *LogFiltersLoader) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *LogFiltersLoader) refresh(ctx context.Context) {
	res, err := l.source.Fetch(ctx)
	if err != nil || res == nil || res.NotChanged {
		return
	}

	var filters []logfilter.LogFilter
	if err := json.Unmarshal(res.Data, &filters); err != nil {
		l.logger.Error("failed to parse log filters JSON", "error", err)
		return
	}

	logging.SetFilters(filters)

	active := 0
	for _, f := range filters {
		if f.IsActive() {
			active++
		}
	}

	l.mu.Lock()
	previous := l.etag
	l.etag = res.Etag
	l.lastFetch = time.Now()
	l.initialized = true
	l.filterCount = len(filters)
	l.mu.Unlock()

	l.logger.Info("log filters loaded",
		"etag", res.Etag,
		"previous_etag", previous,
		"total_filters", len(filters),
		"active_filters", active,
	)
}

// LogFiltersStats contains statistics about the log filters loader.
type LogFiltersStats struct {
	Initialized bool      `json:"initialized"`
	FilterCount int       `json:"filter_count"`
	Etag        string    `json:"etag"`
	LastFetch   time.Time `json:"last_fetch"`
}

// Stats returns current loader statistics.
func (l *LogFiltersLoader) Stats() LogFiltersStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LogFiltersStats{
		Initialized: l.initialized,
		FilterCount: l.filterCount,
		Etag:        l.etag,
		LastFetch:   l.lastFetch,
	}
}

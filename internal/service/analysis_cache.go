package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/repository"
)

// AnalysisCache is the cross-run store of completed traffic analyses. An in-memory
// LRU keyed by exact domain sits in front of the site_analyses table, which also
// answers substring matches.
type AnalysisCache struct {
	repo   repository.SiteAnalysisRepository
	mem    *lru.Cache[string, *models.SiteAnalysis]
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
	// Metrics may be nil.
	Metrics *Metrics
}

// NewAnalysisCache creates a cache holding up to size entries in memory.
// Analyses older than maxAge are ignored; zero disables the age check.
func NewAnalysisCache(repo repository.SiteAnalysisRepository, size int, maxAge time.Duration, logger *slog.Logger) (*AnalysisCache, error) {
	if size <= 0 {
		size = 1024
	}
	mem, err := lru.New[string, *models.SiteAnalysis](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis LRU: %w", err)
	}
	return &AnalysisCache{
		repo:   repo,
		mem:    mem,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With("component", "analysis-cache"),
	}, nil
}

func (c *AnalysisCache) since() time.Time {
	if c.maxAge <= 0 {
		return time.Time{}
	}
	return c.now().Add(-c.maxAge)
}

// Lookup returns a fresh analysis for domainKey, or nil. A store error is logged
// and reported as a miss so the caller falls back to a live analysis.
func (c *AnalysisCache) Lookup(ctx context.Context, domainKey string) *models.SiteAnalysis {
	if domainKey == "" {
		return nil
	}
	since := c.since()

	if a, ok := c.mem.Get(domainKey); ok {
		if !a.AnalyzedAt.Before(since) {
			c.Metrics.IncCacheLookup("memory", true)
			return a
		}
		c.mem.Remove(domainKey)
	}
	c.Metrics.IncCacheLookup("memory", false)

	a, err := c.repo.FindMatching(ctx, domainKey, since)
	if err != nil {
		c.logger.Warn("analysis lookup failed", "domain", domainKey, "error", err)
		c.Metrics.IncCacheLookup("store", false)
		return nil
	}
	c.Metrics.IncCacheLookup("store", a != nil)
	if a != nil && a.DomainKey == domainKey {
		c.mem.Add(domainKey, a)
	}
	return a
}

// Exact returns a fresh analysis stored under exactly domainKey, or nil.
func (c *AnalysisCache) Exact(ctx context.Context, domainKey string) *models.SiteAnalysis {
	since := c.since()
	if a, ok := c.mem.Get(domainKey); ok && !a.AnalyzedAt.Before(since) {
		return a
	}
	a, err := c.repo.GetByDomain(ctx, domainKey)
	if err != nil {
		c.logger.Warn("analysis lookup failed", "domain", domainKey, "error", err)
		return nil
	}
	if a == nil || a.AnalyzedAt.Before(since) {
		return nil
	}
	c.mem.Add(domainKey, a)
	return a
}

// Store records a fresh analysis. Failures are logged; the cache is best-effort.
func (c *AnalysisCache) Store(ctx context.Context, domainKey, url string, metrics models.TrafficMetrics) *models.SiteAnalysis {
	a := &models.SiteAnalysis{
		ID:         ulid.Make().String(),
		DomainKey:  domainKey,
		URL:        url,
		Metrics:    metrics,
		AnalyzedAt: c.now().UTC(),
	}
	if err := c.repo.Upsert(ctx, a); err != nil {
		c.logger.Warn("failed to store analysis", "domain", domainKey, "error", err)
		return a
	}
	c.mem.Add(domainKey, a)
	return a
}

// Get loads an analysis by id.
func (c *AnalysisCache) Get(ctx context.Context, id string) (*models.SiteAnalysis, error) {
	return c.repo.GetByID(ctx, id)
}

// Len returns the number of in-memory entries.
func (c *AnalysisCache) Len() int {
	return c.mem.Len()
}

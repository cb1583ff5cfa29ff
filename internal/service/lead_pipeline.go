package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/leadscout-api/internal/domain"
	"github.com/jmylchreest/leadscout-api/internal/logging"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/qualify"
	"github.com/jmylchreest/leadscout-api/internal/source"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

// TaskSubmitter queues background work. *worker.Pool implements it.
type TaskSubmitter interface {
	Submit(t worker.Task) error
}

// LeadPipelineConfig holds the lead pipeline settings.
type LeadPipelineConfig struct {
	SearchPages          int
	ExpandPages          int
	ExpandConcurrency    int
	PlatformCheckEnabled bool
	TrafficRetryAttempts int
	TrafficRetryDelay    time.Duration
	Derive               qualify.DeriveConfig
	ContactCrawl         source.CrawlConstraints
}

// LeadPipelineDeps are the collaborators of a LeadPipeline. Metrics and Storage may be nil.
type LeadPipelineDeps struct {
	Store     *RunStore
	Filter    *domain.Filter
	Platforms *domain.PlatformPolicy
	Searcher  source.Searcher
	Traffic   source.TrafficAnalyzer
	Tech      source.TechDetector
	Crawler   source.PageCrawler
	Extractor source.Extractor
	Cache     *AnalysisCache
	Storage   *StorageService
	Tasks     TaskSubmitter
	Metrics   *Metrics
}

// LeadPipeline discovers, analyzes and qualifies e-commerce leads for a discovery run.
type LeadPipeline struct {
	cfg LeadPipelineConfig
	LeadPipelineDeps
	now    func() time.Time
	logger *slog.Logger
}

// NewLeadPipeline creates a lead pipeline.
func NewLeadPipeline(cfg LeadPipelineConfig, deps LeadPipelineDeps, logger *slog.Logger) *LeadPipeline {
	if cfg.SearchPages <= 0 {
		cfg.SearchPages = 3
	}
	if cfg.ExpandPages <= 0 {
		cfg.ExpandPages = cfg.SearchPages
	}
	if cfg.ExpandConcurrency <= 0 {
		cfg.ExpandConcurrency = 3
	}
	if cfg.TrafficRetryAttempts <= 0 {
		cfg.TrafficRetryAttempts = 3
	}
	return &LeadPipeline{
		cfg:              cfg,
		LeadPipelineDeps: deps,
		now:              func() time.Time { return time.Now().UTC() },
		logger:           logger.With("component", "lead-pipeline"),
	}
}

// ========================================
// Run
// ========================================

// Run executes the initial discovery pass for a run. Errors end up on the run itself.
func (p *LeadPipeline) Run(ctx context.Context, runID string) {
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.FromContext(ctx, p.logger)

	run, err := p.Store.Get(ctx, runID)
	if err != nil {
		logger.Error("failed to load run", "error", err)
		return
	}
	logger.Info("starting discovery run", "query", run.SearchQuery)

	pages := source.PageRange{From: 1, To: p.cfg.SearchPages}
	results, err := p.search(ctx, run.SearchQuery, pages)
	if err != nil {
		p.FailRun(ctx, runID, fmt.Sprintf("search failed: %v", err))
		return
	}

	_, err = p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		r.Counters.Found = len(results)
		r.Counters.SearchPageBookmark = pages.To
		return nil
	})
	if err != nil {
		p.abort(ctx, runID, err)
		return
	}

	for _, res := range results {
		if ctx.Err() != nil {
			logger.Warn("run interrupted", "error", ctx.Err())
			return
		}
		if p.Filter.IsMarketplace(res.URL) {
			logger.Debug("skipping marketplace result", "url", res.URL)
			continue
		}

		var index int
		candidate := models.NewCandidate(res.URL, p.Filter.DomainKey(res.URL), res.Title, res.Snippet, res.Position)
		_, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
			index = r.AppendCandidate(candidate)
			return nil
		})
		if err != nil {
			p.abort(ctx, runID, err)
			return
		}

		if err := p.ProcessCandidate(ctx, runID, index); err != nil {
			if errors.Is(err, ErrRunNotFound) {
				logger.Info("run deleted while processing")
				return
			}
			logger.Error("candidate processing failed", "index", index, "error", err)
		}
	}

	p.finish(ctx, runID)
}

// Expand searches the pages after the run's bookmark and analyzes the new domains.
// The caller has already reopened the run.
func (p *LeadPipeline) Expand(ctx context.Context, runID string) {
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.FromContext(ctx, p.logger)

	run, err := p.Store.Get(ctx, runID)
	if err != nil {
		logger.Error("failed to load run", "error", err)
		return
	}

	pages := source.PageRange{
		From: run.Counters.SearchPageBookmark + 1,
		To:   run.Counters.SearchPageBookmark + p.cfg.ExpandPages,
	}
	logger.Info("expanding discovery run", "from_page", pages.From, "to_page", pages.To)

	results, err := p.search(ctx, run.SearchQuery, pages)
	if err != nil {
		p.FailRun(ctx, runID, fmt.Sprintf("expansion search failed: %v", err))
		return
	}

	var indexes []int
	_, err = p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		indexes = indexes[:0]
		if pages.To > r.Counters.SearchPageBookmark {
			r.Counters.SearchPageBookmark = pages.To
		}
		r.Counters.Found += len(results)

		batch := make(map[string]bool)
		for _, res := range results {
			if p.Filter.IsMarketplace(res.URL) {
				continue
			}
			key := p.Filter.DomainKey(res.URL)
			if r.HasDomain(key) || batch[key] {
				continue
			}
			batch[key] = true
			indexes = append(indexes, r.AppendCandidate(models.NewCandidate(res.URL, key, res.Title, res.Snippet, res.Position)))
		}
		return nil
	})
	if err != nil {
		p.abort(ctx, runID, err)
		return
	}
	logger.Info("expansion found new candidates", "results", len(results), "new", len(indexes))

	var g errgroup.Group
	g.SetLimit(p.cfg.ExpandConcurrency)
	for _, index := range indexes {
		g.Go(func() error {
			if err := p.ProcessCandidate(ctx, runID, index); err != nil && !errors.Is(err, ErrRunNotFound) {
				logger.Error("candidate processing failed", "index", index, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		logger.Warn("expansion interrupted", "error", ctx.Err())
		return
	}
	p.finish(ctx, runID)
}

// finish completes the run. Items left non-terminal by store errors are failed so
// the counters still reconcile.
func (p *LeadPipeline) finish(ctx context.Context, runID string) {
	run, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		now := p.now()
		for i := range r.Items {
			if r.Items[i].IsTerminal() {
				continue
			}
			if err := r.Transition(i, func(c *models.Candidate) error {
				return c.MarkFailed("analysis did not finish", now)
			}); err != nil {
				return err
			}
		}
		r.Complete(now)
		return nil
	})
	if err != nil {
		p.abort(ctx, runID, err)
		return
	}

	p.Metrics.IncRun(ArchiveKindDiscovery, string(run.Status))
	logging.FromContext(ctx, p.logger).Info("discovery run completed",
		"found", run.Counters.Found,
		"analyzed", run.Counters.Analyzed,
		"qualified", run.Counters.Qualified,
		"failed", run.Counters.Failed,
		"duration_ms", run.Timing.DurationMs,
	)
	p.archive(ctx, run)
}

// FailRun marks the run failed with msg.
func (p *LeadPipeline) FailRun(ctx context.Context, runID, msg string) {
	logger := logging.FromContext(ctx, p.logger)
	logger.Error("discovery run failed", "reason", msg)

	run, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		r.Fail(msg, p.now())
		return nil
	})
	if err != nil {
		logger.Error("failed to mark run failed", "error", err)
		return
	}
	p.Metrics.IncRun(ArchiveKindDiscovery, string(run.Status))
	p.archive(ctx, run)
}

// abort handles a store error in the middle of a run.
func (p *LeadPipeline) abort(ctx context.Context, runID string, err error) {
	if errors.Is(err, ErrRunNotFound) {
		logging.FromContext(ctx, p.logger).Info("run deleted while processing")
		return
	}
	p.FailRun(ctx, runID, fmt.Sprintf("failed to save progress: %v", err))
}

func (p *LeadPipeline) archive(ctx context.Context, run *models.DiscoveryRun) {
	if p.Storage == nil {
		return
	}
	if err := p.Storage.ArchiveDiscoveryRun(ctx, run); err != nil {
		logging.FromContext(ctx, p.logger).Warn("failed to archive run", "error", err)
	}
}

func (p *LeadPipeline) search(ctx context.Context, query string, pages source.PageRange) ([]source.SearchResult, error) {
	start := time.Now()
	results, err := p.Searcher.Search(ctx, query, pages)
	p.Metrics.ObserveAdapter("search", time.Since(start), err)
	return results, err
}

// ========================================
// Candidate
// ========================================

// outcome is the result of analyzing one candidate outside the run lock.
type outcome struct {
	status   models.CandidateStatus
	metrics  *models.TrafficMetrics
	platform *models.PlatformCheck
	reason   string
	notes    []string
}

// ProcessCandidate analyzes the item at index. An earlier terminal item with the
// same domain is copied without any adapter call. Adapter failures are recorded on
// the item; the returned error is only for store failures or a bad index.
func (p *LeadPipeline) ProcessCandidate(ctx context.Context, runID string, index int) error {
	logger := logging.FromContext(ctx, p.logger).With("index", index)

	var (
		cand       models.Candidate
		thresholds models.Thresholds
		copied     *models.Candidate
	)
	_, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		copied = nil
		if index < 0 || index >= len(r.Items) {
			return ErrItemNotFound
		}
		now := p.now()
		c := &r.Items[index]
		if c.IsTerminal() {
			return errNoChange
		}
		if prior := r.PriorTerminal(index); prior >= 0 {
			return r.Transition(index, func(c *models.Candidate) error {
				if err := c.CopyOutcome(&r.Items[prior], now); err != nil {
					return err
				}
				c.AddNote("outcome copied from item " + strconv.Itoa(prior) + " with the same domain")
				copied = c
				return nil
			})
		}
		if c.Status() == models.CandidatePending {
			if err := c.StartAnalysis(now); err != nil {
				return err
			}
		}
		cand = *c
		thresholds = r.Thresholds
		return nil
	})
	if err != nil {
		return err
	}
	if copied != nil {
		logger.Debug("reused same-run outcome", "status", copied.Status())
		p.Metrics.IncCandidate("lead", string(copied.Status()), true)
		return nil
	}
	if cand.Status() != models.CandidateAnalyzing {
		return nil
	}

	out := p.analyze(ctx, cand, thresholds)

	applied := false
	run, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		applied = false
		now := p.now()
		return r.Transition(index, func(c *models.Candidate) error {
			if c.IsTerminal() {
				return errNoChange
			}
			applied = true
			for _, n := range out.notes {
				c.AddNote(n)
			}
			switch out.status {
			case models.CandidateAnalyzed:
				return c.MarkAnalyzed(*out.metrics, out.platform, now)
			case models.CandidateRejected:
				return c.MarkRejected(out.reason, out.metrics, out.platform, now)
			default:
				return c.MarkFailed(out.reason, now)
			}
		})
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	p.Metrics.IncCandidate("lead", string(out.status), false)
	logger.Debug("candidate analyzed", "domain", cand.DomainKey, "status", out.status, "reason", out.reason)

	if run.Items[index].Status() == models.CandidateAnalyzed {
		p.submitEnrichment(ctx, runID, index)
	}
	return nil
}

// analyze runs platform check, traffic analysis (or cache reuse) and qualification.
func (p *LeadPipeline) analyze(ctx context.Context, c models.Candidate, thresholds models.Thresholds) outcome {
	logger := logging.FromContext(ctx, p.logger).With("domain", c.DomainKey)
	out := outcome{}

	if p.cfg.PlatformCheckEnabled && p.Tech != nil {
		start := time.Now()
		check, err := p.Platforms.Check(ctx, p.Tech, c.SourceURL)
		p.Metrics.ObserveAdapter("technology", time.Since(start), err)
		if err != nil {
			logger.Warn("platform detection failed, treating as supported", "error", err)
			out.notes = append(out.notes, "platform detection failed; assumed supported")
		}
		out.platform = &check
		if !check.IsSupported {
			out.status = models.CandidateRejected
			out.reason = "unsupported platform"
			return out
		}
	}

	var metrics models.TrafficMetrics
	if cached := p.lookupCache(ctx, c.DomainKey); cached != nil {
		metrics = cached.Metrics
		out.notes = append(out.notes, "metrics reused from analysis of "+cached.DomainKey)
	} else {
		m, err := p.analyzeTraffic(ctx, c.SourceURL)
		if err != nil {
			out.status = models.CandidateFailed
			out.reason = err.Error()
			return out
		}
		metrics = m
		if p.Cache != nil {
			p.Cache.Store(ctx, c.DomainKey, c.SourceURL, metrics)
		}
	}
	out.metrics = &metrics

	if qualify.Qualifies(metrics, thresholds) {
		out.status = models.CandidateAnalyzed
	} else {
		out.status = models.CandidateRejected
		out.reason = qualify.RejectionReason(metrics, thresholds)
	}
	return out
}

func (p *LeadPipeline) lookupCache(ctx context.Context, domainKey string) *models.SiteAnalysis {
	if p.Cache == nil {
		return nil
	}
	return p.Cache.Lookup(ctx, domainKey)
}

// analyzeTraffic calls the traffic analyzer with fixed-delay retries and derives
// shipment metrics from the report.
func (p *LeadPipeline) analyzeTraffic(ctx context.Context, url string) (models.TrafficMetrics, error) {
	logger := logging.FromContext(ctx, p.logger)
	var report *source.TrafficReport
	attempts := 0
	err := retryFixed(ctx, p.cfg.TrafficRetryAttempts, p.cfg.TrafficRetryDelay, func(attempt int) error {
		attempts = attempt
		start := time.Now()
		r, err := p.Traffic.AnalyzeTraffic(ctx, url)
		p.Metrics.ObserveAdapter("traffic", time.Since(start), err)
		if err != nil {
			logger.Warn("traffic analysis attempt failed", "url", url, "attempt", attempt, "error", err)
			if !source.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		report = r
		return nil
	})
	if err != nil {
		return models.TrafficMetrics{}, fmt.Errorf("traffic analysis failed after %d attempts: %w", attempts, err)
	}
	return MetricsFromReport(report, p.cfg.Derive), nil
}

// MetricsFromReport normalizes a provider report into shipment metrics.
func MetricsFromReport(r *source.TrafficReport, cfg qualify.DeriveConfig) models.TrafficMetrics {
	if r == nil {
		return models.TrafficMetrics{}
	}
	m := qualify.Derive(qualify.AverageVisits(r.MonthlyVisits), r.CountryShares, cfg)
	m.Name = r.Name
	m.Category = r.Category
	return m
}

// ========================================
// Enrichment
// ========================================

func (p *LeadPipeline) submitEnrichment(ctx context.Context, runID string, index int) {
	if p.Tasks == nil || p.Crawler == nil || p.Extractor == nil {
		return
	}
	logger := logging.FromContext(ctx, p.logger)
	task := worker.Task{
		Name: fmt.Sprintf("enrich:%s/%d", runID, index),
		Run: func(ctx context.Context) {
			ctx = logging.WithRunID(ctx, runID)
			if err := p.Enrich(ctx, runID, index); err != nil && !errors.Is(err, ErrRunNotFound) {
				logging.FromContext(ctx, p.logger).Warn("enrichment not recorded", "index", index, "error", err)
			}
		},
		OnPanic: func(ctx context.Context, recovered any) {
			p.recordEnrichment(ctx, runID, index, nil, 0, fmt.Errorf("panic: %v", recovered))
		},
	}
	if err := p.Tasks.Submit(task); err != nil {
		logger.Warn("could not queue enrichment", "index", index, "error", err)
	}
}

// Enrich crawls an analyzed candidate's site and extracts its contacts. Crawl and
// extraction failures are recorded on the enrichment; qualification never changes.
func (p *LeadPipeline) Enrich(ctx context.Context, runID string, index int) error {
	var target string
	_, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		if index < 0 || index >= len(r.Items) {
			return ErrItemNotFound
		}
		c := &r.Items[index]
		if c.Status() != models.CandidateAnalyzed {
			return ErrNotEnrichable
		}
		target = c.SourceURL
		now := p.now()
		return c.UpdateEnrichment(func(a *models.Analyzed) {
			a.Enrichment.Status = models.EnrichmentEnriching
			a.Enrichment.Error = ""
			a.Enrichment.UpdatedAt = &now
		})
	})
	if err != nil {
		return err
	}

	start := time.Now()
	pages, err := p.Crawler.Crawl(ctx, target, p.cfg.ContactCrawl)
	p.Metrics.ObserveAdapter("crawl", time.Since(start), err)
	if err != nil {
		return p.recordEnrichment(ctx, runID, index, nil, 0, err)
	}

	text := source.JoinPages(pages)
	start = time.Now()
	fields, err := p.Extractor.Extract(ctx, text, source.ContactSchema)
	p.Metrics.ObserveAdapter("extract", time.Since(start), err)
	if err != nil {
		return p.recordEnrichment(ctx, runID, index, nil, len(pages), err)
	}

	contact := &models.ContactInfo{
		Emails:      source.StringList(fields, "emails"),
		Phones:      source.StringList(fields, "phones"),
		RawText:     models.TruncateRawText(text),
		ExtractedAt: p.now(),
	}
	return p.recordEnrichment(ctx, runID, index, contact, len(pages), nil)
}

func (p *LeadPipeline) recordEnrichment(ctx context.Context, runID string, index int, contact *models.ContactInfo, pages int, failure error) error {
	status := models.EnrichmentEnriched
	if failure != nil {
		status = models.EnrichmentFailed
		logging.FromContext(ctx, p.logger).Warn("contact extraction failed", "index", index, "error", failure)
	}
	_, err := p.Store.Mutate(ctx, runID, func(r *models.DiscoveryRun) error {
		if index < 0 || index >= len(r.Items) {
			return ErrItemNotFound
		}
		now := p.now()
		apply := func(a *models.Analyzed) {
			a.Enrichment.Status = status
			a.Enrichment.PagesCrawled = pages
			a.Enrichment.UpdatedAt = &now
			if failure != nil {
				a.Enrichment.Error = failure.Error()
				return
			}
			a.Enrichment.Error = ""
			a.Enrichment.Emails = contact.Emails
			a.Enrichment.Phones = contact.Phones
			c := *contact
			a.Contact = &c
		}
		if err := r.Items[index].UpdateEnrichment(apply); err != nil {
			return err
		}
		// Duplicates copied the outcome before contacts existed.
		for _, i := range r.DuplicatesOf(index) {
			if err := r.Items[i].UpdateEnrichment(apply); err != nil {
				return err
			}
		}
		return nil
	})
	p.Metrics.IncEnrichment(string(status))
	return err
}

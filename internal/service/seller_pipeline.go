package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/logging"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/qualify"
	"github.com/jmylchreest/leadscout-api/internal/source"
)

// SellerPipelineConfig holds the seller pipeline settings.
type SellerPipelineConfig struct {
	MaxProducts  int
	Phone        qualify.PhonePolicy
	ProfileCrawl source.CrawlConstraints
}

// SellerPipelineDeps are the collaborators of a SellerPipeline. Metrics and Storage may be nil.
type SellerPipelineDeps struct {
	Store     *RunStore
	Scraper   source.ProductScraper
	Crawler   source.PageCrawler
	Extractor source.Extractor
	Storage   *StorageService
	Metrics   *Metrics
}

// SellerPipeline finds the sellers behind an Amazon search page and checks their
// compliance details.
type SellerPipeline struct {
	cfg SellerPipelineConfig
	SellerPipelineDeps
	now    func() time.Time
	logger *slog.Logger
}

// NewSellerPipeline creates a seller pipeline.
func NewSellerPipeline(cfg SellerPipelineConfig, deps SellerPipelineDeps, logger *slog.Logger) *SellerPipeline {
	if cfg.MaxProducts <= 0 {
		cfg.MaxProducts = 50
	}
	if cfg.ProfileCrawl.MaxPages <= 0 {
		cfg.ProfileCrawl.MaxPages = 1
	}
	return &SellerPipeline{
		cfg:                cfg,
		SellerPipelineDeps: deps,
		now:                func() time.Time { return time.Now().UTC() },
		logger:             logger.With("component", "seller-pipeline"),
	}
}

// UniqueSellers returns one seller per seller id in first-seen order. The first
// product a seller appears on is kept as provenance. Products without a seller are skipped.
func UniqueSellers(products []source.Product) []models.Seller {
	seen := make(map[string]bool, len(products))
	sellers := []models.Seller{}
	for _, p := range products {
		id := strings.TrimSpace(p.SellerID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sellers = append(sellers, models.Seller{
			SellerID:     id,
			SellerName:   p.SellerName,
			SellerURL:    p.SellerURL,
			ProductASIN:  p.ASIN,
			ProductTitle: p.Title,
			ProductURL:   p.URL,
			Stage:        models.SellerPendingStage{},
		})
	}
	return sellers
}

// Run executes a seller run. Errors end up on the run itself.
func (p *SellerPipeline) Run(ctx context.Context, runID string) {
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.FromContext(ctx, p.logger)

	run, err := p.Store.GetSeller(ctx, runID)
	if err != nil {
		logger.Error("failed to load seller run", "error", err)
		return
	}
	logger.Info("starting seller run", "url", run.SourceURL, "marketplace", run.Marketplace)

	start := time.Now()
	products, err := p.Scraper.ScrapeProducts(ctx, run.SourceURL, p.cfg.MaxProducts)
	p.Metrics.ObserveAdapter("products", time.Since(start), err)
	if err != nil {
		p.FailRun(ctx, runID, fmt.Sprintf("product scrape failed: %v", err))
		return
	}
	if len(products) == 0 {
		p.FailRun(ctx, runID, "no products found")
		return
	}

	sellers := UniqueSellers(products)
	withSeller := 0
	for _, prod := range products {
		if strings.TrimSpace(prod.SellerID) != "" {
			withSeller++
		}
	}

	_, err = p.Store.MutateSeller(ctx, runID, func(r *models.SellerRun) error {
		r.Counters.ProductsScraped = len(products)
		r.Counters.SellersFound = withSeller
		r.Counters.SellersUnique = len(sellers)
		r.Sellers = append(r.Sellers[:0], sellers...)
		return nil
	})
	if err != nil {
		p.abort(ctx, runID, err)
		return
	}
	logger.Info("sellers extracted", "products", len(products), "unique_sellers", len(sellers))

	for i := range sellers {
		if ctx.Err() != nil {
			logger.Warn("seller run interrupted", "error", ctx.Err())
			return
		}
		if err := p.ProcessSeller(ctx, runID, i); err != nil {
			if errors.Is(err, ErrRunNotFound) {
				logger.Info("seller run deleted while processing")
				return
			}
			logger.Error("seller processing failed", "index", i, "error", err)
		}
	}

	p.finish(ctx, runID)
}

func (p *SellerPipeline) finish(ctx context.Context, runID string) {
	run, err := p.Store.MutateSeller(ctx, runID, func(r *models.SellerRun) error {
		now := p.now()
		for i := range r.Sellers {
			if r.Sellers[i].IsTerminal() {
				continue
			}
			if err := r.Transition(i, func(s *models.Seller) error {
				return s.Fail("analysis did not finish", now)
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
	p.Metrics.IncRun(ArchiveKindSeller, string(run.Status))
	logging.FromContext(ctx, p.logger).Info("seller run completed",
		"unique_sellers", run.Counters.SellersUnique,
		"qualified", run.Counters.Qualified,
		"rejected", run.Counters.Rejected,
		"failed", run.Counters.Failed,
		"duration_ms", run.Timing.DurationMs,
	)
	p.archive(ctx, run)
}

// FailRun marks the seller run failed with msg.
func (p *SellerPipeline) FailRun(ctx context.Context, runID, msg string) {
	logger := logging.FromContext(ctx, p.logger)
	logger.Error("seller run failed", "reason", msg)

	run, err := p.Store.MutateSeller(ctx, runID, func(r *models.SellerRun) error {
		r.Fail(msg, p.now())
		return nil
	})
	if err != nil {
		logger.Error("failed to mark seller run failed", "error", err)
		return
	}
	p.Metrics.IncRun(ArchiveKindSeller, string(run.Status))
	p.archive(ctx, run)
}

func (p *SellerPipeline) abort(ctx context.Context, runID string, err error) {
	if errors.Is(err, ErrRunNotFound) {
		logging.FromContext(ctx, p.logger).Info("seller run deleted while processing")
		return
	}
	p.FailRun(ctx, runID, fmt.Sprintf("failed to save progress: %v", err))
}

func (p *SellerPipeline) archive(ctx context.Context, run *models.SellerRun) {
	if p.Storage == nil {
		return
	}
	if err := p.Storage.ArchiveSellerRun(ctx, run); err != nil {
		logging.FromContext(ctx, p.logger).Warn("failed to archive seller run", "error", err)
	}
}

// ProcessSeller analyzes the seller at index. An earlier terminal seller with the
// same id is reused without adapter calls.
func (p *SellerPipeline) ProcessSeller(ctx context.Context, runID string, index int) error {
	logger := logging.FromContext(ctx, p.logger).With("index", index)

	var (
		seller      models.Seller
		marketplace string
		reused      *models.Seller
	)
	_, err := p.Store.MutateSeller(ctx, runID, func(r *models.SellerRun) error {
		reused = nil
		if index < 0 || index >= len(r.Sellers) {
			return ErrItemNotFound
		}
		s := &r.Sellers[index]
		if s.IsTerminal() {
			return errNoChange
		}
		now := p.now()
		if prior := r.PriorTerminal(index); prior >= 0 {
			return r.Transition(index, func(s *models.Seller) error {
				if err := p.reuse(s, &r.Sellers[prior], now); err != nil {
					return err
				}
				reused = s
				return nil
			})
		}
		if s.Status() == models.SellerPending {
			if err := s.StartCrawl(now); err != nil {
				return err
			}
		}
		seller = *s
		marketplace = r.Marketplace
		return nil
	})
	if err != nil {
		return err
	}
	if reused != nil {
		logger.Debug("reused earlier seller outcome", "seller_id", reused.SellerID, "status", reused.Status())
		p.Metrics.IncCandidate("seller", string(reused.Status()), true)
		return nil
	}
	if seller.Status() != models.SellerCrawling && seller.Status() != models.SellerAnalyzing {
		return nil
	}

	info, pages, err := p.inspect(ctx, seller, marketplace, func(pages int) error {
		_, err := p.Store.MutateSeller(ctx, runID, func(r *models.SellerRun) error {
			s := &r.Sellers[index]
			if s.Status() != models.SellerCrawling {
				return errNoChange
			}
			return s.StartAnalysis(pages)
		})
		return err
	})
	if errors.Is(err, ErrRunNotFound) {
		return err
	}

	var final models.SellerStatus
	_, serr := p.Store.MutateSeller(ctx, runID, func(r *models.SellerRun) error {
		now := p.now()
		return r.Transition(index, func(s *models.Seller) error {
			if s.IsTerminal() {
				return errNoChange
			}
			if err != nil {
				final = models.SellerFailed
				return s.Fail(err.Error(), now)
			}
			if s.Status() == models.SellerCrawling {
				if err := s.StartAnalysis(pages); err != nil {
					return err
				}
			}
			if p.cfg.Phone.Matches(info.PhoneNumber) {
				final = models.SellerCompleted
				return s.Complete(*info, now)
			}
			final = models.SellerRejected
			note := qualify.RejectionNote(info.PhoneNumber)
			s.Notes = append(s.Notes, note)
			return s.Reject(note, info, now)
		})
	})
	if serr != nil {
		return serr
	}
	if final != "" {
		p.Metrics.IncCandidate("seller", string(final), false)
	}
	logger.Debug("seller analyzed", "seller_id", seller.SellerID, "status", final)
	return nil
}

// reuse copies an earlier seller's outcome. A completed seller's compliance is
// re-checked against the phone policy.
func (p *SellerPipeline) reuse(s, prior *models.Seller, now time.Time) error {
	s.IsDuplicate = true
	s.Notes = append(s.Notes, "same seller as "+provenance(prior))
	switch prior.Status() {
	case models.SellerCompleted, models.SellerRejected:
		var info *models.ComplianceInfo
		if c := prior.Compliance(); c != nil {
			copied := *c
			info = &copied
		}
		if info == nil {
			return s.Reject(priorReason(prior), nil, now)
		}
		if prior.Status() == models.SellerRejected {
			return s.Reject(priorReason(prior), info, now)
		}
		if !p.cfg.Phone.Matches(info.PhoneNumber) {
			return s.Reject(qualify.RejectionNote(info.PhoneNumber), info, now)
		}
		s.Stage = models.SellerCompletedStage{Compliance: *info, AnalyzedAt: now}
		return nil
	default:
		if f, ok := prior.Stage.(models.SellerFailedStage); ok {
			return s.Fail(f.Error, now)
		}
		return s.Fail("earlier analysis failed", now)
	}
}

func priorReason(s *models.Seller) string {
	if r, ok := s.Stage.(models.SellerRejectedStage); ok && r.Reason != "" {
		return r.Reason
	}
	return "criteria not met"
}

func provenance(s *models.Seller) string {
	if s.ProductTitle != "" {
		return s.ProductTitle
	}
	if s.ProductASIN != "" {
		return s.ProductASIN
	}
	return "seller " + strconv.Quote(s.SellerID)
}

// inspect crawls the seller profile and extracts its compliance fields. crawled is
// called between the two steps with the number of pages fetched.
func (p *SellerPipeline) inspect(ctx context.Context, s models.Seller, marketplace string, crawled func(pages int) error) (*models.ComplianceInfo, int, error) {
	if s.SellerURL == "" {
		return nil, 0, fmt.Errorf("seller has no profile url")
	}

	start := time.Now()
	pages, err := p.Crawler.Crawl(ctx, s.SellerURL, p.cfg.ProfileCrawl)
	p.Metrics.ObserveAdapter("crawl", time.Since(start), err)
	if err != nil {
		return nil, 0, err
	}
	if err := crawled(len(pages)); err != nil {
		return nil, len(pages), err
	}

	text := source.JoinPages(pages)
	start = time.Now()
	fields, err := p.Extractor.Extract(ctx, text, source.ComplianceSchema)
	p.Metrics.ObserveAdapter("extract", time.Since(start), err)
	if err != nil {
		return nil, len(pages), err
	}

	info := ComplianceFromFields(fields)
	if info.Marketplace == "" {
		info.Marketplace = marketplace
	}
	info.RawText = models.TruncateRawText(text)
	info.ExtractedAt = p.now()
	return &info, len(pages), nil
}

// ComplianceFromFields maps the extractor's keys onto ComplianceInfo.
func ComplianceFromFields(fields map[string]any) models.ComplianceInfo {
	return models.ComplianceInfo{
		SellerType:          source.StringField(fields, "Seller Type"),
		VATNumber:           source.StringField(fields, "VAT Number"),
		PhoneNumber:         source.StringField(fields, "Phone Number"),
		EmailAddress:        source.StringField(fields, "Email Address"),
		Address:             source.StringField(fields, "Address"),
		ComplianceStatement: source.StringField(fields, "Compliance Statement"),
		Marketplace:         source.StringField(fields, "marketplace"),
		LanguageDetected:    source.StringField(fields, "language_detected"),
	}
}

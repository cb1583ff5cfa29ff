package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/jmylchreest/leadscout-api/internal/config"
	"github.com/jmylchreest/leadscout-api/internal/domain"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/qualify"
	"github.com/jmylchreest/leadscout-api/internal/repository"
	"github.com/jmylchreest/leadscout-api/internal/source"
	"github.com/jmylchreest/leadscout-api/internal/version"
)

// Services holds all service instances.
type Services struct {
	Runs     *RunService
	Sellers  *SellerService
	Leads    *LeadPipeline
	Seller   *SellerPipeline
	Resolver *SeedResolver
	Cache    *AnalysisCache
	Storage  *StorageService
	Metrics  *Metrics
}

// NewServices wires the adapters and pipelines from configuration. tasks is the
// background pool; metrics may be nil.
func NewServices(cfg *config.Config, repos *repository.Repositories, tasks TaskSubmitter, metrics *Metrics, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	if cfg.ApifyToken == "" {
		logger.Warn("APIFY_TOKEN not set - search, traffic and product scraping will fail")
	}
	apify := source.NewApifyClient(source.ApifyConfig{
		BaseURL:         cfg.ApifyBaseURL,
		Token:           cfg.ApifyToken,
		SearchActor:     cfg.ApifySearchActor,
		TrafficActor:    cfg.ApifyTrafficActor,
		TechnologyActor: cfg.ApifyTechActor,
		ProductsActor:   cfg.ApifyProductActor,
		ResultsPerPage:  cfg.ApifyResultsPerPage,
		CountryCode:     cfg.SearchCountryCode,
		LanguageCode:    cfg.SearchLanguageCode,
		RatePerSecond:   cfg.ApifyRatePerSecond,
		Burst:           2,
	}, &http.Client{}, logger)

	llmClient := source.NewLLMClient(source.LLMConfig{
		URL:     cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Referer: cfg.BaseURL,
		Title:   "LeadScout",
	}, &http.Client{}, logger)

	// The query generator falls back to the template without a key; extraction
	// still goes through the client and records its auth failures.
	var completer Completer
	if cfg.LLMAPIKey != "" {
		completer = llmClient
	} else {
		logger.Warn("LLM_API_KEY not set - seed queries use the template and contact extraction will fail")
	}

	userAgent := cfg.CrawlUserAgent
	if userAgent == "" {
		userAgent = version.Get().UserAgent()
	}
	crawler := source.NewCollyCrawler(userAgent, nil, logger)

	normalizer := domain.NewNormalizer(proxyRules(cfg.ProxyHosts))
	filter := domain.NewFilter(normalizer, cfg.MarketplaceDenylist)
	platforms := domain.NewPlatformPolicy(cfg.SupportedPlatforms)

	phone, err := phonePolicy(cfg)
	if err != nil {
		return nil, err
	}

	cache, err := NewAnalysisCache(repos.SiteAnalysis, cfg.AnalysisCacheSize, cfg.AnalysisCacheMaxAge, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis cache: %w", err)
	}
	cache.Metrics = metrics

	derive := qualify.DeriveConfig{
		ConversionRate: cfg.ConversionRate,
		HomeCountry:    cfg.HomeCountry,
		HomeNameHint:   cfg.HomeCountryNameHint,
	}
	exclude := cfg.CrawlExcludePatterns
	if len(exclude) == 0 {
		exclude = source.DefaultCrawlExclude
	}

	store := NewRunStore(repos.DiscoveryRun, repos.SellerRun, logger)

	resolver := NewSeedResolver(SeedResolverConfig{
		Template:    cfg.SearchQueryTemplate,
		HomeCountry: cfg.HomeCountry,
		Language:    cfg.SearchLanguageCode,
		Derive:      derive,
	}, filter, cache, apify, completer, metrics, logger)

	leads := NewLeadPipeline(LeadPipelineConfig{
		SearchPages:          cfg.SearchPages,
		ExpandPages:          cfg.ExpandPages,
		ExpandConcurrency:    cfg.ExpandConcurrency,
		PlatformCheckEnabled: cfg.PlatformCheckEnabled,
		TrafficRetryAttempts: cfg.TrafficRetryAttempts,
		TrafficRetryDelay:    cfg.TrafficRetryDelay,
		Derive:               derive,
		ContactCrawl: source.CrawlConstraints{
			MaxPages: cfg.ContactMaxPages,
			MaxDepth: cfg.ContactMaxDepth,
			Exclude:  exclude,
		},
	}, LeadPipelineDeps{
		Store:     store,
		Filter:    filter,
		Platforms: platforms,
		Searcher:  apify,
		Traffic:   apify,
		Tech:      apify,
		Crawler:   crawler,
		Extractor: llmClient,
		Cache:     cache,
		Storage:   storageSvc,
		Tasks:     tasks,
		Metrics:   metrics,
	}, logger)

	sellers := NewSellerPipeline(SellerPipelineConfig{
		MaxProducts:  cfg.AmazonMaxProducts,
		Phone:        phone,
		ProfileCrawl: source.CrawlConstraints{MaxPages: 1, Exclude: exclude},
	}, SellerPipelineDeps{
		Store:     store,
		Scraper:   apify,
		Crawler:   crawler,
		Extractor: llmClient,
		Storage:   storageSvc,
		Metrics:   metrics,
	}, logger)

	runSvc := NewRunService(RunServiceConfig{
		Defaults: models.Thresholds{
			MinDomestic: cfg.MinDomestic,
			MinAbroad:   cfg.MinAbroad,
			MaxDomestic: cfg.MaxDomestic,
		},
		RecentRunWindow: cfg.RecentRunWindow,
	}, repos.DiscoveryRun, store, resolver, leads, tasks, storageSvc, logger)

	sellerSvc := NewSellerService(repos.SellerRun, store, sellers, tasks, storageSvc, logger)

	return &Services{
		Runs:     runSvc,
		Sellers:  sellerSvc,
		Leads:    leads,
		Seller:   sellers,
		Resolver: resolver,
		Cache:    cache,
		Storage:  storageSvc,
		Metrics:  metrics,
	}, nil
}

// proxyRules turns configured wrapper hosts into normalizer rules.
func proxyRules(hosts []string) []domain.ProxyRule {
	if len(hosts) == 0 {
		return nil
	}
	rules := make([]domain.ProxyRule, 0, len(hosts))
	for _, h := range hosts {
		rules = append(rules, domain.ProxyRule{HostContains: h, PathPrefix: "/website/"})
	}
	return rules
}

func phonePolicy(cfg *config.Config) (qualify.PhonePolicy, error) {
	p := qualify.PhonePolicy{
		Contains: cfg.PhoneContains,
		Prefixes: cfg.PhonePrefixes,
	}
	if cfg.PhonePattern != "" {
		re, err := regexp.Compile(cfg.PhonePattern)
		if err != nil {
			return p, fmt.Errorf("invalid PHONE_PATTERN: %w", err)
		}
		p.Pattern = re
	}
	return p, nil
}

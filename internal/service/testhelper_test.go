package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/leadscout-api/internal/auth"
	"github.com/jmylchreest/leadscout-api/internal/database/migrations"
	"github.com/jmylchreest/leadscout-api/internal/domain"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/qualify"
	"github.com/jmylchreest/leadscout-api/internal/repository"
	"github.com/jmylchreest/leadscout-api/internal/source"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

// ========================================
// Database
// ========================================

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewRepositories(db)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ========================================
// Fakes
// ========================================

type fakeSearcher struct {
	mu      sync.Mutex
	byPage  map[int][]source.SearchResult
	err     error
	queries []string
	ranges  []source.PageRange
}

func (f *fakeSearcher) Search(_ context.Context, query string, pages source.PageRange) ([]source.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.ranges = append(f.ranges, pages)
	if f.err != nil {
		return nil, f.err
	}
	var out []source.SearchResult
	for p := pages.From; p <= pages.To; p++ {
		out = append(out, f.byPage[p]...)
	}
	return out, nil
}

func (f *fakeSearcher) calls() []source.PageRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]source.PageRange(nil), f.ranges...)
}

func result(rawURL string, page, pos int) source.SearchResult {
	return source.SearchResult{URL: rawURL, Title: rawURL, Position: pos, Page: page}
}

// fakeTraffic returns reports keyed by domain key. failures[key] calls fail before
// a report is returned.
type fakeTraffic struct {
	mu       sync.Mutex
	reports  map[string]*source.TrafficReport
	failures map[string]int
	calls    map[string]int
}

func newFakeTraffic() *fakeTraffic {
	return &fakeTraffic{
		reports:  map[string]*source.TrafficReport{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *fakeTraffic) AnalyzeTraffic(_ context.Context, rawURL string) (*source.TrafficReport, error) {
	key := domain.Normalize(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if f.failures[key] > 0 {
		f.failures[key]--
		return nil, &source.Error{Kind: source.ErrTimeout, Capability: "traffic", Err: errors.New("actor timed out")}
	}
	r, ok := f.reports[key]
	if !ok {
		return nil, &source.Error{Kind: source.ErrNoData, Capability: "traffic", Err: errors.New("no dataset items")}
	}
	return r, nil
}

func (f *fakeTraffic) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// shipments builds a report that derives to the given shipments at a 0.01 conversion
// rate: domestic from IT, abroad from DE.
func shipments(domestic, abroad int64) *source.TrafficReport {
	total := (domestic + abroad) * 100
	r := &source.TrafficReport{MonthlyVisits: map[string]float64{"2026-08": float64(total)}}
	if total == 0 {
		return r
	}
	if domestic > 0 {
		r.CountryShares = append(r.CountryShares, qualify.CountryShare{CountryCode: "IT", CountryName: "Italy", Share: float64(domestic) / float64(domestic+abroad)})
	}
	if abroad > 0 {
		r.CountryShares = append(r.CountryShares, qualify.CountryShare{CountryCode: "DE", CountryName: "Germany", Share: float64(abroad) / float64(domestic+abroad)})
	}
	return r
}

type fakeTech struct {
	mu    sync.Mutex
	techs map[string][]source.Technology
	err   error
	calls int
}

func (f *fakeTech) DetectTechnology(_ context.Context, rawURL string) ([]source.Technology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if techs, ok := f.techs[domain.Normalize(rawURL)]; ok {
		return techs, nil
	}
	return []source.Technology{{Name: "WooCommerce", Category: "Ecommerce"}}, nil
}

type fakeCrawler struct {
	mu    sync.Mutex
	pages map[string][]source.Page
	err   error
	urls  []string
}

func (f *fakeCrawler) Crawl(_ context.Context, rawURL string, _ source.CrawlConstraints) ([]source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[rawURL]; ok {
		return p, nil
	}
	return []source.Page{{URL: rawURL, Text: "Contatti: info@" + domain.Normalize(rawURL)}}, nil
}

// fakeExtractor answers with fields chosen by a substring of the input text.
type fakeExtractor struct {
	mu     sync.Mutex
	fields map[string]map[string]any
	err    error
	hints  []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string, hint source.SchemaHint) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, hint.Name)
	if f.err != nil {
		return nil, f.err
	}
	for marker, fields := range f.fields {
		if strings.Contains(text, marker) {
			return fields, nil
		}
	}
	return map[string]any{"emails": []any{"info@example.it"}, "phones": []any{"+39 02 1234567"}}, nil
}

type fakeScraper struct {
	products []source.Product
	err      error
	calls    int
}

func (f *fakeScraper) ScrapeProducts(_ context.Context, _ string, maxItems int) ([]source.Product, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if maxItems > 0 && len(f.products) > maxItems {
		return f.products[:maxItems], nil
	}
	return f.products, nil
}

type fakeCompleter struct {
	answer string
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ bool) (string, error) {
	f.calls++
	return f.answer, f.err
}

// queuedTasks collects submitted tasks; drain runs them in order, including tasks
// submitted while draining.
type queuedTasks struct {
	mu      sync.Mutex
	tasks   []worker.Task
	names   []string
	failErr error
}

func (q *queuedTasks) Submit(t worker.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failErr != nil {
		return q.failErr
	}
	q.tasks = append(q.tasks, t)
	q.names = append(q.names, t.Name)
	return nil
}

func (q *queuedTasks) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		t.Run(ctx)
	}
}

func (q *queuedTasks) submitted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.names...)
}

// ========================================
// Environment
// ========================================

type testEnv struct {
	repos     *repository.Repositories
	store     *RunStore
	searcher  *fakeSearcher
	traffic   *fakeTraffic
	tech      *fakeTech
	crawler   *fakeCrawler
	extractor *fakeExtractor
	scraper   *fakeScraper
	tasks     *queuedTasks
	cache     *AnalysisCache
	metrics   *Metrics
	leads     *LeadPipeline
	sellers   *SellerPipeline
	runs      *RunService
	sellerSvc *SellerService
}

var testDerive = qualify.DeriveConfig{ConversionRate: 0.01, HomeCountry: "IT", HomeNameHint: "ital"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()
	repos := setupTestRepos(t)

	env := &testEnv{
		repos:     repos,
		store:     NewRunStore(repos.DiscoveryRun, repos.SellerRun, logger),
		searcher:  &fakeSearcher{byPage: map[int][]source.SearchResult{}},
		traffic:   newFakeTraffic(),
		tech:      &fakeTech{},
		crawler:   &fakeCrawler{},
		extractor: &fakeExtractor{},
		scraper:   &fakeScraper{},
		tasks:     &queuedTasks{},
		metrics:   NewMetrics(),
	}

	cache, err := NewAnalysisCache(repos.SiteAnalysis, 16, 24*time.Hour, logger)
	if err != nil {
		t.Fatalf("NewAnalysisCache() error = %v", err)
	}
	cache.Metrics = env.metrics
	env.cache = cache

	filter := domain.NewFilter(domain.NewNormalizer(nil), nil)

	env.leads = NewLeadPipeline(LeadPipelineConfig{
		SearchPages:          1,
		ExpandPages:          1,
		ExpandConcurrency:    2,
		PlatformCheckEnabled: true,
		TrafficRetryAttempts: 3,
		Derive:               testDerive,
		ContactCrawl:         source.CrawlConstraints{MaxPages: 3},
	}, LeadPipelineDeps{
		Store:     env.store,
		Filter:    filter,
		Platforms: domain.NewPlatformPolicy(nil),
		Searcher:  env.searcher,
		Traffic:   env.traffic,
		Tech:      env.tech,
		Crawler:   env.crawler,
		Extractor: env.extractor,
		Cache:     cache,
		Tasks:     env.tasks,
		Metrics:   env.metrics,
	}, logger)

	env.sellers = NewSellerPipeline(SellerPipelineConfig{
		MaxProducts: 20,
		Phone:       qualify.DefaultPhonePolicy(),
	}, SellerPipelineDeps{
		Store:     env.store,
		Scraper:   env.scraper,
		Crawler:   env.crawler,
		Extractor: env.extractor,
		Metrics:   env.metrics,
	}, logger)

	resolver := NewSeedResolver(SeedResolverConfig{Template: "%s shop online", HomeCountry: "IT", Derive: testDerive},
		filter, cache, env.traffic, nil, env.metrics, logger)

	env.runs = NewRunService(RunServiceConfig{RecentRunWindow: time.Hour},
		repos.DiscoveryRun, env.store, resolver, env.leads, env.tasks, nil, logger)
	env.sellerSvc = NewSellerService(repos.SellerRun, env.store, env.sellers, env.tasks, nil, logger)
	return env
}

var (
	bdrAlice = Actor{ID: "alice", Role: auth.RoleBDR}
	bdrBob   = Actor{ID: "bob", Role: auth.RoleBDR}
	manager  = Actor{ID: "mgr", Role: auth.RoleManager}
)

// createRun persists a processing run without scheduling it.
func (e *testEnv) createRun(t *testing.T, owner, query string) *models.DiscoveryRun {
	t.Helper()
	run := models.NewDiscoveryRun(strings.ReplaceAll(t.Name(), "/", "-")+"-"+owner+"-"+url.QueryEscape(query), owner,
		"query:"+strings.ToLower(query), query, models.DefaultThresholds(), time.Now().UTC())
	if err := e.repos.DiscoveryRun.Create(context.Background(), run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return run
}

func (e *testEnv) mustGet(t *testing.T, id string) *models.DiscoveryRun {
	t.Helper()
	run, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return run
}

// checkCounters asserts the stored counters agree with the items.
func checkCounters(t *testing.T, run *models.DiscoveryRun) {
	t.Helper()
	want := run.ReconcileCounters()
	if run.Counters != want {
		t.Errorf("Counters = %+v, reconciled %+v", run.Counters, want)
	}
}

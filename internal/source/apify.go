package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/leadscout-api/internal/qualify"
)

// DefaultApifyBaseURL is the public Apify API.
const DefaultApifyBaseURL = "https://api.apify.com/v2"

// ApifyConfig configures the Apify actor client.
type ApifyConfig struct {
	BaseURL string
	Token   string

	SearchActor     string
	TrafficActor    string
	TechnologyActor string
	ProductsActor   string

	ResultsPerPage int
	CountryCode    string
	LanguageCode   string

	// Client-side request rate shared by every actor call.
	RatePerSecond float64
	Burst         int

	SearchTimeout     time.Duration
	TrafficTimeout    time.Duration
	TechnologyTimeout time.Duration
	ProductsTimeout   time.Duration
}

// DefaultApifyConfig returns the stock actor set and timeouts.
func DefaultApifyConfig() ApifyConfig {
	return ApifyConfig{
		BaseURL:           DefaultApifyBaseURL,
		SearchActor:       "apify~google-search-scraper",
		TrafficActor:      "curious_coder~similarweb-scraper",
		TechnologyActor:   "tugkan~wappalyzer",
		ProductsActor:     "junglee~amazon-crawler",
		ResultsPerPage:    10,
		CountryCode:       "it",
		LanguageCode:      "it",
		RatePerSecond:     2,
		Burst:             2,
		SearchTimeout:     180 * time.Second,
		TrafficTimeout:    120 * time.Second,
		TechnologyTimeout: 60 * time.Second,
		ProductsTimeout:   300 * time.Second,
	}
}

// ApifyClient runs Apify actors synchronously and maps their dataset items onto
// the adapter types. It implements Searcher, TrafficAnalyzer, TechDetector and ProductScraper.
type ApifyClient struct {
	cfg        ApifyConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewApifyClient creates a client. A nil httpClient uses http.DefaultClient's transport.
func NewApifyClient(cfg ApifyConfig, httpClient *http.Client, logger *slog.Logger) *ApifyClient {
	def := DefaultApifyConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ResultsPerPage <= 0 {
		cfg.ResultsPerPage = def.ResultsPerPage
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.TrafficTimeout <= 0 {
		cfg.TrafficTimeout = def.TrafficTimeout
	}
	if cfg.TechnologyTimeout <= 0 {
		cfg.TechnologyTimeout = def.TechnologyTimeout
	}
	if cfg.ProductsTimeout <= 0 {
		cfg.ProductsTimeout = def.ProductsTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &ApifyClient{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With("component", "apify"),
	}
}

// runActor posts input to an actor's run-sync-get-dataset-items endpoint and decodes the
// dataset items into out.
func (c *ApifyClient) runActor(ctx context.Context, capability, actor string, input any, timeout time.Duration, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return Classify(capability, err, 0)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal %s input: %w", capability, err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items", strings.TrimSuffix(c.cfg.BaseURL, "/"), url.PathEscape(actor))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", capability, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	c.logger.Debug("running apify actor",
		"capability", capability,
		"actor", actor,
		"timeout", timeout,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Classify(capability, err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Classify(capability, err, 0)
	}

	// run-sync returns 201 Created on success.
	if resp.StatusCode >= http.StatusBadRequest {
		return Classify(capability, fmt.Errorf("%s", apifyErrorMessage(respBody)), resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: ErrParse, Capability: capability, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("apify actor finished",
		"capability", capability,
		"actor", actor,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func apifyErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// ========================================
// Search
// ========================================

type googleSearchItem struct {
	SearchQuery struct {
		Term string `json:"term"`
		Page int    `json:"page"`
	} `json:"searchQuery"`
	OrganicResults []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Position    int    `json:"position"`
	} `json:"organicResults"`
}

// Search runs the search actor for pages 1..pages.To and keeps results from pages.From onward.
// The actor has no start-page parameter, so earlier pages are fetched and discarded.
func (c *ApifyClient) Search(ctx context.Context, query string, pages PageRange) ([]SearchResult, error) {
	if pages.Count() == 0 {
		return []SearchResult{}, nil
	}
	input := map[string]any{
		"queries":                  query,
		"maxPagesPerQuery":         pages.To,
		"resultsPerPage":           c.cfg.ResultsPerPage,
		"countryCode":              c.cfg.CountryCode,
		"languageCode":             c.cfg.LanguageCode,
		"mobileResults":            false,
		"includeUnfilteredResults": false,
		"saveHtml":                 false,
		"saveHtmlToKeyValueStore":  false,
	}

	var items []googleSearchItem
	if err := c.runActor(ctx, "search", c.cfg.SearchActor, input, c.cfg.SearchTimeout, &items); err != nil {
		return nil, err
	}

	results := []SearchResult{}
	for i, item := range items {
		page := item.SearchQuery.Page
		if page == 0 {
			page = i + 1
		}
		if page < pages.From || page > pages.To {
			continue
		}
		for _, o := range item.OrganicResults {
			if o.URL == "" {
				continue
			}
			results = append(results, SearchResult{
				URL:      o.URL,
				Title:    o.Title,
				Snippet:  o.Description,
				Position: o.Position,
				Page:     page,
			})
		}
	}
	return results, nil
}

// ========================================
// Traffic
// ========================================

type similarwebItem struct {
	Domain                 string             `json:"domain"`
	URL                    string             `json:"url"`
	Name                   string             `json:"name"`
	Category               string             `json:"category"`
	EstimatedMonthlyVisits map[string]float64 `json:"estimatedMonthlyVisits"`
	TopCountryShares       []struct {
		CountryCode string  `json:"CountryCode"`
		CountryName string  `json:"countryName"`
		Value       float64 `json:"Value"`
	} `json:"topCountryShares"`
}

// AnalyzeTraffic runs the traffic actor for one site.
func (c *ApifyClient) AnalyzeTraffic(ctx context.Context, siteURL string) (*TrafficReport, error) {
	input := map[string]any{
		"domains":            []string{siteURL},
		"maxRequestRetries":  3,
		"requestTimeoutSecs": 30,
	}

	var items []similarwebItem
	if err := c.runActor(ctx, "traffic", c.cfg.TrafficActor, input, c.cfg.TrafficTimeout, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &Error{Kind: ErrNoData, Capability: "traffic", Err: fmt.Errorf("no traffic data for %s", siteURL)}
	}

	raw := items[0]
	report := &TrafficReport{
		Domain:        firstNonEmpty(raw.Domain, raw.URL),
		Name:          firstNonEmpty(raw.Name, raw.Domain, raw.URL),
		Category:      raw.Category,
		MonthlyVisits: raw.EstimatedMonthlyVisits,
	}
	for _, cs := range raw.TopCountryShares {
		report.CountryShares = append(report.CountryShares, qualify.CountryShare{
			CountryCode: cs.CountryCode,
			CountryName: cs.CountryName,
			Share:       cs.Value,
		})
	}
	return report, nil
}

// ========================================
// Technology
// ========================================

type technologyItem struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Technologies []struct {
		Name       string `json:"name"`
		Categories []struct {
			Name string `json:"name"`
		} `json:"categories"`
	} `json:"technologies"`
}

// DetectTechnology runs the technology detection actor for one site.
func (c *ApifyClient) DetectTechnology(ctx context.Context, siteURL string) ([]Technology, error) {
	input := map[string]any{
		"startUrls": []map[string]string{{"url": siteURL}},
	}

	var items []technologyItem
	if err := c.runActor(ctx, "technology", c.cfg.TechnologyActor, input, c.cfg.TechnologyTimeout, &items); err != nil {
		return nil, err
	}

	techs := []Technology{}
	for _, item := range items {
		if item.Name != "" {
			techs = append(techs, Technology{Name: item.Name, Category: item.Category})
		}
		for _, t := range item.Technologies {
			tech := Technology{Name: t.Name}
			if len(t.Categories) > 0 {
				tech.Category = t.Categories[0].Name
			}
			techs = append(techs, tech)
		}
	}
	return techs, nil
}

// ========================================
// Marketplace products
// ========================================

type productItem struct {
	ASIN   string `json:"asin"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Seller *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"seller"`
}

// ScrapeProducts runs the product actor for a marketplace search URL.
func (c *ApifyClient) ScrapeProducts(ctx context.Context, searchURL string, maxItems int) ([]Product, error) {
	input := map[string]any{
		"categoryOrProductUrls": []map[string]string{{"url": searchURL}},
		"maxItemsPerStartUrl":   maxItems,
		"scrapeSellers":         true,
	}

	var items []productItem
	if err := c.runActor(ctx, "products", c.cfg.ProductsActor, input, c.cfg.ProductsTimeout, &items); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(items))
	for _, item := range items {
		if maxItems > 0 && len(products) >= maxItems {
			break
		}
		p := Product{ASIN: item.ASIN, Title: item.Title, URL: item.URL}
		if item.Seller != nil {
			p.SellerID = item.Seller.ID
			p.SellerName = item.Seller.Name
			p.SellerURL = item.Seller.URL
		}
		products = append(products, p)
	}
	return products, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

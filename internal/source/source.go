// Package source contains the external data source adapters used by the discovery pipelines.
//
// Each capability is an interface so the orchestrators can be exercised with fakes:
//   - Searcher: paged search engine results
//   - TrafficAnalyzer: monthly visits and country shares for a site
//   - TechDetector: technologies a site is built on
//   - PageCrawler: bounded same-site crawl returning page text
//   - Extractor: LLM extraction of a JSON object from free text
//   - ProductScraper: marketplace search page products with their sellers
//
// All adapter failures are returned as *Error values with one of the sentinel kinds.
package source

import (
	"context"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/domain"
	"github.com/jmylchreest/leadscout-api/internal/qualify"
)

// ========================================
// Search
// ========================================

// PageRange is an inclusive, 1-based range of result pages.
type PageRange struct {
	From int
	To   int
}

// Count returns the number of pages in the range.
func (r PageRange) Count() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// SearchResult is one organic search hit.
type SearchResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
	Page     int    `json:"page"`
}

// Searcher returns ordered organic results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, pages PageRange) ([]SearchResult, error)
}

// ========================================
// Traffic
// ========================================

// TrafficReport is a provider's raw traffic figures for one site.
type TrafficReport struct {
	Domain        string
	Name          string
	Category      string
	MonthlyVisits map[string]float64 // month -> visits
	CountryShares []qualify.CountryShare
}

// TrafficAnalyzer returns traffic figures for a site.
type TrafficAnalyzer interface {
	AnalyzeTraffic(ctx context.Context, url string) (*TrafficReport, error)
}

// TechDetector is re-exported so callers only need this package.
type TechDetector = domain.TechDetector

// Technology is re-exported for the same reason.
type Technology = domain.Technology

// ========================================
// Crawl
// ========================================

// CrawlConstraints bound a crawl.
type CrawlConstraints struct {
	MaxPages    int
	MaxDepth    int
	Exclude     []string // substrings; matching URLs are not visited
	Parallelism int
	Timeout     time.Duration
}

// Page is the extracted text of one crawled page.
type Page struct {
	URL  string
	Text string
}

// PageCrawler fetches text from a site within the given constraints.
type PageCrawler interface {
	Crawl(ctx context.Context, url string, c CrawlConstraints) ([]Page, error)
}

// ========================================
// Extraction
// ========================================

// SchemaHint tells the extractor what JSON object to produce.
type SchemaHint struct {
	Name         string
	Instructions string
	Fields       []string
}

// Extractor turns free text into a JSON object matching the hint.
type Extractor interface {
	Extract(ctx context.Context, text string, hint SchemaHint) (map[string]any, error)
}

// ========================================
// Marketplace products
// ========================================

// Product is one product listing with its embedded seller reference.
type Product struct {
	ASIN       string
	Title      string
	URL        string
	SellerID   string
	SellerName string
	SellerURL  string
}

// ProductScraper scrapes product listings from a marketplace search page.
type ProductScraper interface {
	ScrapeProducts(ctx context.Context, url string, maxItems int) ([]Product, error)
}

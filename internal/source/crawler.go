package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/leadscout-api/internal/protection"
)

// DefaultCrawlExclude skips pages that never carry contact details.
var DefaultCrawlExclude = []string{
	"/cart", "/carrello", "/checkout", "/login", "/account", "/register",
	"/wishlist", "/blog", "/news", "/search", "/tag/", "/category/",
	".pdf", ".jpg", ".png", ".zip",
}

// contactHints are path fragments visited ahead of other links.
var contactHints = []string{
	"contact", "contatt", "chi-siamo", "about", "impressum", "legal", "note-legali", "privacy", "azienda",
}

// CollyCrawler crawls a single site with colly and returns the visible text of each page.
type CollyCrawler struct {
	userAgent string
	transport http.RoundTripper
	detector  *protection.Detector
	logger    *slog.Logger
}

// NewCollyCrawler creates a crawler. transport may be nil.
func NewCollyCrawler(userAgent string, transport http.RoundTripper, logger *slog.Logger) *CollyCrawler {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; LeadScout/1.0)"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CollyCrawler{
		userAgent: userAgent,
		transport: transport,
		detector:  protection.NewDetector(),
		logger:    logger.With("component", "crawler"),
	}
}

// Crawl visits the seed URL and same-site links up to the page and depth caps.
// Depth 0 fetches only the seed.
func (c *CollyCrawler) Crawl(ctx context.Context, rawURL string, cons CrawlConstraints) ([]Page, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	seed, err := url.Parse(rawURL)
	if err != nil || seed.Hostname() == "" {
		return nil, &Error{Kind: ErrBadRequest, Capability: "crawl", Err: fmt.Errorf("invalid url %q", rawURL)}
	}
	if cons.MaxPages <= 0 {
		cons.MaxPages = 5
	}
	if cons.Parallelism <= 0 {
		cons.Parallelism = 2
	}
	if cons.Timeout <= 0 {
		cons.Timeout = 30 * time.Second
	}

	host := strings.TrimPrefix(seed.Hostname(), "www.")
	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.MaxDepth(cons.MaxDepth + 1),
		colly.AllowedDomains(host, "www."+host),
		colly.UserAgent(c.userAgent),
	}
	if filters := excludeFilters(cons.Exclude); len(filters) > 0 {
		opts = append(opts, colly.DisallowedURLFilters(filters...))
	}
	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(cons.Timeout)
	if c.transport != nil {
		collector.WithTransport(c.transport)
	}
	if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: cons.Parallelism}); err != nil {
		return nil, fmt.Errorf("configure crawl limits: %w", err)
	}

	var (
		mu        sync.Mutex
		requested int
		pages     []Page
		firstErr  error
		blocked   protection.Signal
	)

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil || requested >= cons.MaxPages {
			r.Abort()
			return
		}
		requested++
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		var headers http.Header
		if e.Response.Headers != nil {
			headers = *e.Response.Headers
		}
		// Challenge pages carry no shop content and must not reach extraction.
		if signal := c.detector.Detect(headers, e.Response.Body); signal != protection.SignalNone {
			mu.Lock()
			blocked = signal
			mu.Unlock()
			c.logger.Debug("skipping protected page", "url", e.Request.URL.String(), "signal", signal)
			return
		}

		text := pageText(e.DOM)
		mu.Lock()
		pages = append(pages, Page{URL: e.Request.URL.String(), Text: text})
		mu.Unlock()

		for _, link := range prioritizedLinks(e) {
			_ = e.Request.Visit(link)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		target := ""
		if r != nil {
			status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = Classify("crawl", err, status)
		}
		mu.Unlock()
		c.logger.Debug("crawl request failed", "url", target, "status", status, "error", err)
	})

	if err := collector.Visit(seed.String()); err != nil {
		return nil, Classify("crawl", err, 0)
	}
	collector.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(pages) == 0 {
		if blocked != protection.SignalNone {
			return nil, &Error{Kind: ErrBlocked, Capability: "crawl", Err: fmt.Errorf("%s challenge on %s", blocked, seed.Host)}
		}
		if firstErr != nil {
			return nil, firstErr
		}
		if ctx.Err() != nil {
			return nil, Classify("crawl", ctx.Err(), 0)
		}
		return nil, &Error{Kind: ErrNoData, Capability: "crawl", Err: fmt.Errorf("no pages fetched from %s", seed.Host)}
	}

	seedURL := seed.String()
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].URL == seedURL || pages[j].URL == seedURL {
			return pages[i].URL == seedURL
		}
		return pages[i].URL < pages[j].URL
	})
	return pages, nil
}

// JoinPages concatenates page text with URL headers.
func JoinPages(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString("=== ")
		b.WriteString(p.URL)
		b.WriteString(" ===\n")
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func pageText(doc *goquery.Selection) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc
	}
	body = body.Clone()
	body.Find("script, style, noscript, svg, iframe").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

func prioritizedLinks(e *colly.HTMLElement) []string {
	var first, rest []string
	seen := map[string]bool{}
	e.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := e.Request.AbsoluteURL(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		lower := strings.ToLower(abs)
		for _, h := range contactHints {
			if strings.Contains(lower, h) {
				first = append(first, abs)
				return
			}
		}
		rest = append(rest, abs)
	})
	return append(first, rest...)
}

func excludeFilters(patterns []string) []*regexp.Regexp {
	filters := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		filters = append(filters, regexp.MustCompile("(?i)"+regexp.QuoteMeta(p)))
	}
	return filters
}

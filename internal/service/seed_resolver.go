package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/domain"
	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/qualify"
	"github.com/jmylchreest/leadscout-api/internal/source"
)

// Completer is a free-text LLM call. *source.LLMClient implements it.
type Completer interface {
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Seed is the origin of a discovery run. Exactly one field is normally set; Query wins.
type Seed struct {
	Query      string
	URL        string
	AnalysisID string
}

// ResolvedSeed is the search query derived from a seed.
type ResolvedSeed struct {
	Query     string
	Reference string
	Analysis  *models.SiteAnalysis
}

// SeedResolverConfig holds the query generation settings.
type SeedResolverConfig struct {
	Template    string // must contain %s
	HomeCountry string
	Language    string
	Derive      qualify.DeriveConfig
}

// SeedResolver turns a seed into a search query.
type SeedResolver struct {
	cfg     SeedResolverConfig
	filter  *domain.Filter
	cache   *AnalysisCache
	traffic source.TrafficAnalyzer
	llm     Completer
	metrics *Metrics
	logger  *slog.Logger
}

// NewSeedResolver creates a resolver. llm may be nil, in which case the template is always used.
func NewSeedResolver(cfg SeedResolverConfig, filter *domain.Filter, cache *AnalysisCache, traffic source.TrafficAnalyzer, llm Completer, metrics *Metrics, logger *slog.Logger) *SeedResolver {
	if !strings.Contains(cfg.Template, "%s") {
		cfg.Template = "%s shop online"
	}
	return &SeedResolver{
		cfg:     cfg,
		filter:  filter,
		cache:   cache,
		traffic: traffic,
		llm:     llm,
		metrics: metrics,
		logger:  logger.With("component", "seed-resolver"),
	}
}

// Resolve returns the search query and seed reference for seed.
func (r *SeedResolver) Resolve(ctx context.Context, seed Seed) (*ResolvedSeed, error) {
	if q := CleanQuery(seed.Query); q != "" {
		return &ResolvedSeed{Query: q, Reference: "query:" + strings.ToLower(q)}, nil
	}

	var (
		analysis *models.SiteAnalysis
		err      error
	)
	switch {
	case strings.TrimSpace(seed.AnalysisID) != "":
		analysis, err = r.cache.Get(ctx, strings.TrimSpace(seed.AnalysisID))
		if err != nil {
			return nil, fmt.Errorf("failed to load seed analysis: %w", err)
		}
		if analysis == nil {
			return nil, ErrAnalysisNotFound
		}
	case strings.TrimSpace(seed.URL) != "":
		analysis, err = r.analyzeSeedURL(ctx, strings.TrimSpace(seed.URL))
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidSeed
	}

	return &ResolvedSeed{
		Query:     r.BuildQuery(ctx, analysis),
		Reference: "analysis:" + analysis.DomainKey,
		Analysis:  analysis,
	}, nil
}

// analyzeSeedURL returns the stored analysis for the URL's domain, analyzing it on a miss.
func (r *SeedResolver) analyzeSeedURL(ctx context.Context, rawURL string) (*models.SiteAnalysis, error) {
	key := r.filter.DomainKey(rawURL)
	if key == "" || !strings.Contains(key, ".") {
		return nil, ErrInvalidSeed
	}
	if a := r.cache.Exact(ctx, key); a != nil {
		return a, nil
	}
	if r.traffic == nil {
		return nil, fmt.Errorf("no traffic analyzer configured")
	}

	start := time.Now()
	report, err := r.traffic.AnalyzeTraffic(ctx, rawURL)
	r.metrics.ObserveAdapter("traffic", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze seed site: %w", err)
	}
	return r.cache.Store(ctx, key, rawURL, MetricsFromReport(report, r.cfg.Derive)), nil
}

// BuildQuery asks the LLM for a query finding shops similar to the analyzed site and
// falls back to the template when no model is configured or the call fails.
func (r *SeedResolver) BuildQuery(ctx context.Context, a *models.SiteAnalysis) string {
	if r.llm != nil {
		answer, err := r.llm.Complete(ctx, r.queryPrompt(a), false)
		if err == nil {
			if q := CleanQuery(firstLine(answer)); q != "" {
				return q
			}
		} else if !errors.Is(err, context.Canceled) {
			r.logger.Warn("query generation failed, using template", "domain", a.DomainKey, "error", err)
		}
	}
	return CleanQuery(fmt.Sprintf(r.cfg.Template, templateTerm(a)))
}

func (r *SeedResolver) queryPrompt(a *models.SiteAnalysis) string {
	name := a.Metrics.Name
	if name == "" {
		name = a.DomainKey
	}
	category := a.Metrics.Category
	if category == "" {
		category = "unknown"
	}
	lang := r.cfg.Language
	if lang == "" {
		lang = "it"
	}
	return fmt.Sprintf(
		"Write one Google search query, at most 8 words, in language %q, that finds independent online shops "+
			"similar to %s (%s, category %s) selling to customers in %s. "+
			"Do not mention marketplaces or the site itself. Reply with the query only.",
		lang, name, a.DomainKey, category, r.cfg.HomeCountry,
	)
}

// templateTerm picks the most specific category segment, else the domain's first label.
func templateTerm(a *models.SiteAnalysis) string {
	if cat := strings.TrimSpace(a.Metrics.Category); cat != "" {
		parts := strings.Split(cat, "/")
		term := strings.TrimSpace(parts[len(parts)-1])
		term = strings.NewReplacer("_", " ", "-", " ").Replace(term)
		if term != "" {
			return strings.ToLower(term)
		}
	}
	label, _, _ := strings.Cut(a.DomainKey, ".")
	return label
}

// CleanQuery trims whitespace and surrounding quotes from a search query.
func CleanQuery(q string) string {
	q = strings.TrimSpace(q)
	for len(q) > 0 {
		trimmed := strings.TrimSpace(strings.Trim(q, "\"'`“”«»"))
		if trimmed == q {
			break
		}
		q = trimmed
	}
	return strings.Join(strings.Fields(q), " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	line, _, _ := strings.Cut(s, "\n")
	return line
}

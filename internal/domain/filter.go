package domain

import (
	"context"
	"strings"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/models"
)

// DefaultMarketplaces is the stock marketplace denylist.
var DefaultMarketplaces = []string{
	"amazon.", "ebay.", "etsy.", "aliexpress.", "alibaba.", "zalando.",
	"wish.com", "temu.com", "shein.com", "manomano.",
	"subito.it", "idealo.", "trovaprezzi.it", "kelkoo.",
	"facebook.com", "instagram.com", "youtube.com", "wikipedia.org",
}

// DefaultSupportedPlatforms is the stock commerce platform allow-list.
var DefaultSupportedPlatforms = []string{
	"shopify", "woocommerce", "magento", "prestashop",
	"bigcommerce", "wix", "squarespace", "shopware",
}

// Filter decides whether a URL belongs to a known marketplace.
type Filter struct {
	normalizer   *Normalizer
	marketplaces []string
}

// NewFilter creates a marketplace filter. Empty marketplaces means DefaultMarketplaces.
func NewFilter(normalizer *Normalizer, marketplaces []string) *Filter {
	if normalizer == nil {
		normalizer = defaultNormalizer
	}
	if len(marketplaces) == 0 {
		marketplaces = DefaultMarketplaces
	}
	lowered := make([]string, 0, len(marketplaces))
	for _, m := range marketplaces {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &Filter{normalizer: normalizer, marketplaces: lowered}
}

// DomainKey normalizes raw with the filter's normalizer.
func (f *Filter) DomainKey(raw string) string {
	return f.normalizer.Normalize(raw)
}

// IsMarketplace reports whether the normalized domain contains a denylisted substring.
func (f *Filter) IsMarketplace(raw string) bool {
	key := f.normalizer.Normalize(raw)
	if key == "" {
		return false
	}
	for _, m := range f.marketplaces {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}

// ========================================
// Platform check
// ========================================

// Technology is a single technology reported by a detector.
type Technology struct {
	Name     string
	Category string
}

// TechDetector is the technology detection capability the platform check relies on.
type TechDetector interface {
	DetectTechnology(ctx context.Context, url string) ([]Technology, error)
}

// PlatformPolicy matches detected technologies against the supported platforms.
type PlatformPolicy struct {
	supported []string
	now       func() time.Time
}

// NewPlatformPolicy creates a policy. Empty supported means DefaultSupportedPlatforms.
func NewPlatformPolicy(supported []string) *PlatformPolicy {
	if len(supported) == 0 {
		supported = DefaultSupportedPlatforms
	}
	lowered := make([]string, 0, len(supported))
	for _, s := range supported {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}
	return &PlatformPolicy{supported: lowered, now: time.Now}
}

// Match returns the first supported platform among techs.
func (p *PlatformPolicy) Match(techs []Technology) (string, bool) {
	for _, t := range techs {
		name := strings.ToLower(t.Name)
		for _, s := range p.supported {
			if strings.Contains(name, s) {
				return t.Name, true
			}
		}
	}
	return "", false
}

// Check runs detection for url. A detector error yields a supported result with
// DetectionFailed set; the error is returned alongside for logging only.
func (p *PlatformPolicy) Check(ctx context.Context, detector TechDetector, url string) (models.PlatformCheck, error) {
	check := models.PlatformCheck{CheckedAt: p.now()}
	techs, err := detector.DetectTechnology(ctx, url)
	if err != nil {
		check.IsSupported = true
		check.DetectionFailed = true
		return check, err
	}
	check.Platform, check.IsSupported = p.Match(techs)
	return check, nil
}

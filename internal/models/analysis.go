package models

import "time"

// MaxRawTextLength bounds the provenance text retained on contact and compliance records.
const MaxRawTextLength = 10000

// ========================================
// Traffic Metrics
// ========================================

// CountryTraffic is one country's slice of a site's monthly traffic.
type CountryTraffic struct {
	CountryCode        string  `json:"country_code"`
	CountryName        string  `json:"country_name,omitempty"`
	VisitsShare        float64 `json:"visits_share"`        // 0..1
	EstimatedVisits    int64   `json:"estimated_visits"`    // average monthly visits * share
	EstimatedShipments int64   `json:"estimated_shipments"` // estimated visits * conversion rate
	IsDomestic         bool    `json:"is_domestic"`
}

// TrafficMetrics holds the normalized figures the qualification step works on.
type TrafficMetrics struct {
	Name                 string           `json:"name,omitempty"`
	Category             string           `json:"category,omitempty"`
	AverageMonthlyVisits int64            `json:"average_monthly_visits"`
	Countries            []CountryTraffic `json:"countries,omitempty"`
	TopCountry           string           `json:"top_country,omitempty"`
	DomesticShipments    int64            `json:"domestic_shipments"`
	AbroadShipments      int64            `json:"abroad_shipments"`
	TotalShipments       int64            `json:"total_shipments"`
}

// ========================================
// Platform Check
// ========================================

// PlatformCheck records the commerce platform detected for a site.
type PlatformCheck struct {
	Platform        string    `json:"platform,omitempty"`
	IsSupported     bool      `json:"is_supported"`
	DetectionFailed bool      `json:"detection_failed,omitempty"` // true when the supported flag came from the fail-open default
	CheckedAt       time.Time `json:"checked_at"`
}

// ========================================
// Contact + Enrichment
// ========================================

// ContactInfo is the contact data extracted from a qualified lead's site.
type ContactInfo struct {
	Emails      []string  `json:"emails"`
	Phones      []string  `json:"phones"`
	RawText     string    `json:"raw_text,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// EnrichmentStatus tracks the contact extraction pass on a qualified lead.
type EnrichmentStatus string

const (
	EnrichmentNotEnriched EnrichmentStatus = "not_enriched"
	EnrichmentEnriching   EnrichmentStatus = "enriching"
	EnrichmentEnriched    EnrichmentStatus = "enriched"
	EnrichmentFailed      EnrichmentStatus = "failed"
)

// Enrichment is the state of the optional second pass over a qualified lead.
type Enrichment struct {
	Status       EnrichmentStatus `json:"status"`
	Emails       []string         `json:"emails,omitempty"`
	Phones       []string         `json:"phones,omitempty"`
	PagesCrawled int              `json:"pages_crawled"`
	Error        string           `json:"error,omitempty"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
}

// ========================================
// Site Analysis (cross-run cache)
// ========================================

// SiteAnalysis is a completed traffic analysis for one domain, shared across runs.
type SiteAnalysis struct {
	ID         string         `json:"id"`
	DomainKey  string         `json:"domain_key"`
	URL        string         `json:"url"`
	Metrics    TrafficMetrics `json:"metrics"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}

// TruncateRawText caps s at MaxRawTextLength runes.
func TruncateRawText(s string) string {
	if len(s) <= MaxRawTextLength {
		return s
	}
	r := []rune(s)
	if len(r) <= MaxRawTextLength {
		return s
	}
	return string(r[:MaxRawTextLength])
}

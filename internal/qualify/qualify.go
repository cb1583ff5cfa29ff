// Package qualify holds the lead and seller qualification rules.
//
// Lead qualification works on shipment estimates:
//   - Derive turns a traffic report into per-country shipment figures
//   - Qualifies applies the run's thresholds to those figures
//
// Seller qualification is a phone-locale check (PhonePolicy).
package qualify

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jmylchreest/leadscout-api/internal/models"
)

// DefaultConversionRate is the share of visits assumed to turn into a shipment.
const DefaultConversionRate = 0.02

// Qualifies reports whether the metrics meet the thresholds.
func Qualifies(m models.TrafficMetrics, t models.Thresholds) bool {
	return (m.DomesticShipments >= t.MinDomestic || m.AbroadShipments >= t.MinAbroad) &&
		m.DomesticShipments <= t.MaxDomestic
}

// RejectionReason describes why m failed t. Empty if it qualifies.
func RejectionReason(m models.TrafficMetrics, t models.Thresholds) string {
	switch {
	case Qualifies(m, t):
		return ""
	case m.DomesticShipments > t.MaxDomestic:
		return "above domestic shipment cap"
	default:
		return "below shipment thresholds"
	}
}

// ========================================
// Shipment derivation
// ========================================

// CountryShare is one country's raw share from a traffic report.
type CountryShare struct {
	CountryCode string
	CountryName string
	Share       float64
}

// DeriveConfig controls how raw traffic becomes shipment estimates.
type DeriveConfig struct {
	ConversionRate float64
	HomeCountry    string // ISO code, e.g. IT
	HomeNameHint   string // lower-case substring matched against country names, e.g. ital
}

// DefaultDeriveConfig returns the Italian deployment defaults.
func DefaultDeriveConfig() DeriveConfig {
	return DeriveConfig{ConversionRate: DefaultConversionRate, HomeCountry: "IT", HomeNameHint: "ital"}
}

// IsDomestic reports whether a country is the home country.
func (c DeriveConfig) IsDomestic(code, name string) bool {
	if c.HomeCountry != "" && strings.EqualFold(code, c.HomeCountry) {
		return true
	}
	return c.HomeNameHint != "" && strings.Contains(strings.ToLower(name), strings.ToLower(c.HomeNameHint))
}

// AverageVisits returns the rounded mean of the monthly visit figures.
func AverageVisits(monthly map[string]float64) int64 {
	if len(monthly) == 0 {
		return 0
	}
	var sum float64
	for _, v := range monthly {
		sum += v
	}
	return int64(math.Round(sum / float64(len(monthly))))
}

// Derive builds traffic metrics from average visits and country shares.
// Each country's shipments are round(avgVisits * share * conversionRate).
func Derive(avgVisits int64, shares []CountryShare, cfg DeriveConfig) models.TrafficMetrics {
	if cfg.ConversionRate <= 0 {
		cfg.ConversionRate = DefaultConversionRate
	}
	m := models.TrafficMetrics{AverageMonthlyVisits: avgVisits}

	sorted := make([]CountryShare, len(shares))
	copy(sorted, shares)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Share > sorted[j].Share })

	for _, s := range sorted {
		visits := float64(avgVisits) * s.Share
		ct := models.CountryTraffic{
			CountryCode:        strings.ToUpper(s.CountryCode),
			CountryName:        s.CountryName,
			VisitsShare:        s.Share,
			EstimatedVisits:    int64(math.Round(visits)),
			EstimatedShipments: int64(math.Round(visits * cfg.ConversionRate)),
			IsDomestic:         cfg.IsDomestic(s.CountryCode, s.CountryName),
		}
		if ct.IsDomestic {
			m.DomesticShipments += ct.EstimatedShipments
		} else {
			m.AbroadShipments += ct.EstimatedShipments
		}
		m.Countries = append(m.Countries, ct)
	}
	m.TotalShipments = m.DomesticShipments + m.AbroadShipments
	if len(m.Countries) > 0 {
		m.TopCountry = m.Countries[0].CountryCode
	}
	return m
}

// ========================================
// Seller phone policy
// ========================================

// PhonePolicy accepts sellers whose phone matches the home country format.
type PhonePolicy struct {
	Contains []string
	Prefixes []string
	Pattern  *regexp.Regexp
}

// DefaultPhonePolicy returns the Italian phone rules.
func DefaultPhonePolicy() PhonePolicy {
	return PhonePolicy{
		Contains: []string{"+39"},
		Prefixes: []string{"39"},
		Pattern:  regexp.MustCompile(`^0\d{1,3}\s?\d+`),
	}
}

// Matches reports whether phone looks like a home country number.
func (p PhonePolicy) Matches(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}
	for _, c := range p.Contains {
		if strings.Contains(phone, c) {
			return true
		}
	}
	for _, pre := range p.Prefixes {
		if strings.HasPrefix(phone, pre) {
			return true
		}
	}
	return p.Pattern != nil && p.Pattern.MatchString(phone)
}

// RejectionNote is the note recorded on a seller whose phone did not match.
func RejectionNote(phone string) string {
	if strings.TrimSpace(phone) == "" {
		phone = "not found"
	}
	return "non-matching phone: " + phone
}

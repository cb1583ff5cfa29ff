package qualify

import (
	"testing"

	"github.com/jmylchreest/leadscout-api/internal/models"
)

// ========================================
// Qualifies
// ========================================

func TestQualifies_Boundaries(t *testing.T) {
	th := models.DefaultThresholds()
	tests := []struct {
		name     string
		domestic int64
		abroad   int64
		want     bool
	}{
		{"domestic at min", 100, 0, true},
		{"domestic below min", 99, 0, false},
		{"abroad at min", 0, 30, true},
		{"abroad below min", 0, 29, false},
		{"domestic at cap", 10000, 0, true},
		{"domestic above cap", 10001, 0, false},
		{"above cap with abroad", 10001, 5000, false},
		{"scenario qualifying", 150, 0, true},
		{"scenario rejected", 50, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := models.TrafficMetrics{DomesticShipments: tt.domestic, AbroadShipments: tt.abroad}
			if got := Qualifies(m, th); got != tt.want {
				t.Errorf("Qualifies(%d, %d) = %v, want %v", tt.domestic, tt.abroad, got, tt.want)
			}
		})
	}
}

func TestQualifies_MatchesFormula(t *testing.T) {
	th := models.Thresholds{MinDomestic: 7, MinAbroad: 5, MaxDomestic: 20}
	for dom := int64(0); dom <= 25; dom++ {
		for ab := int64(0); ab <= 10; ab++ {
			m := models.TrafficMetrics{DomesticShipments: dom, AbroadShipments: ab}
			want := (dom >= th.MinDomestic || ab >= th.MinAbroad) && dom <= th.MaxDomestic
			if got := Qualifies(m, th); got != want {
				t.Fatalf("Qualifies(%d, %d) = %v, want %v", dom, ab, got, want)
			}
		}
	}
}

func TestRejectionReason(t *testing.T) {
	th := models.DefaultThresholds()
	if got := RejectionReason(models.TrafficMetrics{DomesticShipments: 150}, th); got != "" {
		t.Errorf("RejectionReason() = %q, want empty", got)
	}
	if got := RejectionReason(models.TrafficMetrics{DomesticShipments: 20000}, th); got != "above domestic shipment cap" {
		t.Errorf("RejectionReason() = %q", got)
	}
	if got := RejectionReason(models.TrafficMetrics{DomesticShipments: 1}, th); got != "below shipment thresholds" {
		t.Errorf("RejectionReason() = %q", got)
	}
}

// ========================================
// Derive
// ========================================

func TestAverageVisits(t *testing.T) {
	got := AverageVisits(map[string]float64{"2025-01-01": 100000, "2025-02-01": 150000, "2025-03-01": 125001})
	if got != 125000 {
		t.Errorf("AverageVisits() = %d, want 125000", got)
	}
	if got := AverageVisits(nil); got != 0 {
		t.Errorf("AverageVisits(nil) = %d, want 0", got)
	}
}

func TestDerive(t *testing.T) {
	shares := []CountryShare{
		{CountryCode: "de", CountryName: "Germany", Share: 0.1},
		{CountryCode: "IT", CountryName: "Italy", Share: 0.75},
		{CountryCode: "", CountryName: "Repubblica Italiana", Share: 0.05},
	}
	m := Derive(100000, shares, DefaultDeriveConfig())

	// IT: 100000*0.75*0.02 = 1500; name hint: 100000*0.05*0.02 = 100; DE: 200
	if m.DomesticShipments != 1600 {
		t.Errorf("DomesticShipments = %d, want 1600", m.DomesticShipments)
	}
	if m.AbroadShipments != 200 {
		t.Errorf("AbroadShipments = %d, want 200", m.AbroadShipments)
	}
	if m.TotalShipments != 1800 {
		t.Errorf("TotalShipments = %d, want 1800", m.TotalShipments)
	}
	if m.TopCountry != "IT" {
		t.Errorf("TopCountry = %s, want IT", m.TopCountry)
	}
	if m.Countries[1].CountryCode != "DE" || m.Countries[1].EstimatedVisits != 10000 {
		t.Errorf("Countries[1] = %+v", m.Countries[1])
	}
}

func TestDerive_Rounding(t *testing.T) {
	// 1234 * 0.5 * 0.02 = 12.34 -> 12; 1275 * 1.0 * 0.02 = 25.5 -> 26
	m := Derive(1234, []CountryShare{{CountryCode: "IT", Share: 0.5}}, DefaultDeriveConfig())
	if m.DomesticShipments != 12 {
		t.Errorf("DomesticShipments = %d, want 12", m.DomesticShipments)
	}
	m = Derive(1275, []CountryShare{{CountryCode: "FR", Share: 1}}, DefaultDeriveConfig())
	if m.AbroadShipments != 26 {
		t.Errorf("AbroadShipments = %d, want 26", m.AbroadShipments)
	}
}

// ========================================
// Phone policy
// ========================================

func TestPhonePolicy_Matches(t *testing.T) {
	p := DefaultPhonePolicy()
	tests := []struct {
		phone string
		want  bool
	}{
		{"+39 02 1234567", true},
		{"0039 +39 06 555", true},
		{"393401234567", true},
		{"02 12345678", true},
		{"0612345678", true},
		{"+33 1 23 45 67 89", false},
		{"+49 30 123456", false},
		{"3401234567", false},
		{"", false},
		{"not found", false},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			if got := p.Matches(tt.phone); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.phone, got, tt.want)
			}
		})
	}
}

func TestRejectionNote(t *testing.T) {
	if got := RejectionNote(""); got != "non-matching phone: not found" {
		t.Errorf("RejectionNote(\"\") = %q", got)
	}
	if got := RejectionNote("+33 1"); got != "non-matching phone: +33 1" {
		t.Errorf("RejectionNote() = %q", got)
	}
}

package domain

import (
	"context"
	"errors"
	"testing"
)

// ========================================
// Normalize
// ========================================

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"full url", "https://www.Shop.it/prodotti?id=1", "shop.it"},
		{"no scheme", "www.negozio.com/path", "negozio.com"},
		{"bare host", "Example.IT", "example.it"},
		{"with port", "http://shop.it:8080/", "shop.it"},
		{"subdomain kept", "https://store.brand.it", "store.brand.it"},
		{"similarweb wrapper", "https://www.similarweb.com/website/www.shop.it/#overview", "shop.it"},
		{"similarweb wrapper no www", "similarweb.com/website/brand.de", "brand.de"},
		{"unparseable host", "https://www.bad host.it/x", "bad host.it"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizer_CustomRule(t *testing.T) {
	n := NewNormalizer([]ProxyRule{{HostContains: "semrush.com", PathPrefix: "/analytics/overview/"}})
	got := n.Normalize("https://www.semrush.com/analytics/overview/www.bottega.it?db=it")
	if got != "bottega.it" {
		t.Errorf("Normalize() = %q, want bottega.it", got)
	}
	// Default similarweb rule no longer applies.
	got = n.Normalize("https://www.similarweb.com/website/shop.it")
	if got != "similarweb.com" {
		t.Errorf("Normalize() = %q, want similarweb.com", got)
	}
}

// ========================================
// Marketplace filter
// ========================================

func TestFilter_IsMarketplace(t *testing.T) {
	f := NewFilter(nil, nil)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.amazon.it/dp/B01", true},
		{"https://WWW.EBAY.COM/itm/1", true},
		{"https://it.aliexpress.com/item", true},
		{"https://www.similarweb.com/website/www.zalando.it/", true},
		{"https://www.bottegaverde.it", false},
		{"https://shop.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := f.IsMarketplace(tt.url); got != tt.want {
				t.Errorf("IsMarketplace(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestFilter_CustomDenylist(t *testing.T) {
	f := NewFilter(nil, []string{" Vinted. "})
	if !f.IsMarketplace("https://www.vinted.it/items/1") {
		t.Error("expected vinted to be a marketplace")
	}
	if f.IsMarketplace("https://www.amazon.it") {
		t.Error("custom denylist should replace the defaults")
	}
}

// ========================================
// Platform policy
// ========================================

type stubDetector struct {
	techs []Technology
	err   error
	calls int
}

func (s *stubDetector) DetectTechnology(ctx context.Context, url string) ([]Technology, error) {
	s.calls++
	return s.techs, s.err
}

func TestPlatformPolicy_Check(t *testing.T) {
	p := NewPlatformPolicy(nil)

	t.Run("supported", func(t *testing.T) {
		d := &stubDetector{techs: []Technology{{Name: "Google Analytics"}, {Name: "Shopify", Category: "Ecommerce"}}}
		check, err := p.Check(context.Background(), d, "https://a.it")
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !check.IsSupported || check.Platform != "Shopify" {
			t.Errorf("check = %+v, want supported Shopify", check)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		d := &stubDetector{techs: []Technology{{Name: "Salesforce Commerce Cloud"}}}
		check, _ := p.Check(context.Background(), d, "https://a.it")
		if check.IsSupported {
			t.Errorf("IsSupported = true, want false")
		}
	})

	t.Run("detector failure is fail-open", func(t *testing.T) {
		d := &stubDetector{err: errors.New("actor timed out")}
		check, err := p.Check(context.Background(), d, "https://a.it")
		if err == nil {
			t.Error("expected the detector error to be returned")
		}
		if !check.IsSupported || !check.DetectionFailed {
			t.Errorf("check = %+v, want supported with detection_failed", check)
		}
	})
}

package service

import (
	"strings"
	"testing"

	"github.com/jmylchreest/leadscout-api/internal/config"
)

func TestNewServices(t *testing.T) {
	repos := setupTestRepos(t)
	cfg := &config.Config{
		BaseURL:     "http://localhost:8080",
		MinDomestic: 100,
		MinAbroad:   30,
		MaxDomestic: 10000,
		ProxyHosts:  []string{"semrush"},
	}

	svcs, err := NewServices(cfg, repos, &queuedTasks{}, NewMetrics(), testLogger())
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	if svcs.Runs == nil || svcs.Sellers == nil || svcs.Leads == nil || svcs.Seller == nil || svcs.Resolver == nil {
		t.Fatal("expected all services to be wired")
	}
	if svcs.Storage.IsEnabled() {
		t.Error("storage should be disabled without a bucket")
	}
	if svcs.Cache.Metrics != svcs.Metrics {
		t.Error("analysis cache should report to the shared metrics")
	}
}

func TestNewServices_InvalidPhonePattern(t *testing.T) {
	repos := setupTestRepos(t)
	cfg := &config.Config{PhonePattern: "(unclosed"}

	_, err := NewServices(cfg, repos, &queuedTasks{}, nil, testLogger())
	if err == nil || !strings.Contains(err.Error(), "PHONE_PATTERN") {
		t.Errorf("NewServices() error = %v, want PHONE_PATTERN error", err)
	}
}

func TestProxyRules(t *testing.T) {
	if got := proxyRules(nil); got != nil {
		t.Errorf("proxyRules(nil) = %v, want nil", got)
	}
	got := proxyRules([]string{"semrush", "similarweb"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].HostContains != "similarweb" || got[1].PathPrefix != "/website/" {
		t.Errorf("rule = %+v", got[1])
	}
}

func TestPhonePolicy(t *testing.T) {
	p, err := phonePolicy(&config.Config{PhonePattern: `^\+39`, PhonePrefixes: []string{"+39"}})
	if err != nil {
		t.Fatalf("phonePolicy() error = %v", err)
	}
	if p.Pattern == nil || !p.Pattern.MatchString("+39 02 1234") {
		t.Error("expected compiled pattern")
	}
	if len(p.Prefixes) != 1 {
		t.Errorf("Prefixes = %v", p.Prefixes)
	}
}

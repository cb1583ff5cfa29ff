package shutdown

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// ========================================
// IdleMonitor Tests
// ========================================

func TestNewIdleMonitor_CheckInterval(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{time.Second, 5 * time.Second},
		{time.Minute, 10 * time.Second},
		{time.Hour, 30 * time.Second},
	}
	for _, tt := range tests {
		m := NewIdleMonitor(Config{Timeout: tt.timeout})
		if m.cfg.CheckInterval != tt.want {
			t.Errorf("timeout %v: CheckInterval = %v, want %v", tt.timeout, m.cfg.CheckInterval, tt.want)
		}
	}
}

func TestIdleMonitor_Disabled(t *testing.T) {
	m := NewIdleMonitor(Config{})
	if m.Enabled() {
		t.Fatal("zero timeout should disable the monitor")
	}
	m.Start()
	m.Stop()
	m.Stop()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if m.inFlight.Load() != 0 {
		t.Error("disabled monitor should not track requests")
	}
}

func TestIdleMonitor_Check(t *testing.T) {
	var busy atomic.Bool
	m := NewIdleMonitor(Config{Timeout: time.Minute, Busy: busy.Load})

	if m.check() {
		t.Fatal("fresh monitor should not be idle")
	}

	// Pretend the last activity was long ago.
	m.lastSeen.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	busy.Store(true)
	if m.check() {
		t.Fatal("busy pool should hold off shutdown")
	}
	if m.idleFor() > time.Second {
		t.Error("busy check should restart the quiet period")
	}

	busy.Store(false)
	m.inFlight.Add(1)
	m.lastSeen.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	if m.check() {
		t.Fatal("in-flight request should hold off shutdown")
	}

	m.inFlight.Add(-1)
	m.lastSeen.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	if !m.check() {
		t.Fatal("quiet monitor should signal shutdown")
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestIdleMonitor_MiddlewareExcludes(t *testing.T) {
	m := NewIdleMonitor(Config{Timeout: time.Minute, ExcludePaths: []string{"/healthz", "/metrics"}})

	var seen int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = m.inFlight.Load()
	})
	handler := m.Middleware(next)

	tests := []struct {
		path string
		want int64
	}{
		{"/healthz", 0},
		{"/metrics", 0},
		{"/api/v1/discovery-runs", 1},
	}
	for _, tt := range tests {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		if seen != tt.want {
			t.Errorf("%s: in-flight during request = %d, want %d", tt.path, seen, tt.want)
		}
	}
	if m.inFlight.Load() != 0 {
		t.Errorf("in-flight after requests = %d, want 0", m.inFlight.Load())
	}
}

func TestIdleMonitor_RunSignals(t *testing.T) {
	m := NewIdleMonitor(Config{Timeout: time.Millisecond, CheckInterval: 5 * time.Millisecond})
	m.Start()
	defer m.Stop()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not signal shutdown")
	}
}

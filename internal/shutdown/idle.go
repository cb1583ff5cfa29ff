// Package shutdown stops an idle server so the platform can scale it to zero.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether background work is still in progress. Runs keep
// processing after their create request returns, so the monitor must not stop
// the machine while the worker pool has tasks.
type BusyFunc func() bool

// Config holds idle monitor settings.
type Config struct {
	// Timeout is the quiet period before shutdown. 0 disables the monitor.
	Timeout time.Duration
	// ExcludePaths are path prefixes that do not count as activity (probes, metrics).
	ExcludePaths []string
	// Busy, if set, holds the monitor off while it returns true.
	Busy   BusyFunc
	Logger *slog.Logger
	// CheckInterval overrides the polling interval. Default: Timeout/6, clamped to [5s, 30s].
	CheckInterval time.Duration
}

// IdleMonitor closes Done once no request has been seen and no background work
// has run for Timeout.
type IdleMonitor struct {
	cfg      Config
	logger   *slog.Logger
	inFlight atomic.Int64
	lastSeen atomic.Int64 // unix nanos
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewIdleMonitor creates a monitor. Call Start to begin polling.
func NewIdleMonitor(cfg Config) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = min(max(cfg.Timeout/6, 5*time.Second), 30*time.Second)
	}
	m := &IdleMonitor{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "idle"),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	m.touch()
	return m
}

// Enabled reports whether a timeout is configured.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Start begins polling. It does nothing when the monitor is disabled.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.cfg.Timeout, "exclude_paths", m.cfg.ExcludePaths)
	go m.run()
}

// Stop ends polling without signalling Done.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when the idle timeout is reached.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware records request activity outside the excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.inFlight.Add(1)
		m.touch()
		defer func() {
			m.inFlight.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, prefix := range m.cfg.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.lastSeen.Store(time.Now().UnixNano())
}

func (m *IdleMonitor) idleFor() time.Duration {
	return time.Since(time.Unix(0, m.lastSeen.Load()))
}

func (m *IdleMonitor) run() {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.check() {
				return
			}
		}
	}
}

// check returns true once it has closed Done.
func (m *IdleMonitor) check() bool {
	active := m.inFlight.Load()
	busy := m.cfg.Busy != nil && m.cfg.Busy()

	// Background work restarts the quiet period so it is measured from when the last task finished.
	if active > 0 || busy {
		m.touch()
		m.logger.Debug("idle check", "active_requests", active, "background_busy", busy)
		return false
	}

	idle := m.idleFor()
	if idle < m.cfg.Timeout {
		m.logger.Debug("idle check", "idle_time", idle, "timeout", m.cfg.Timeout)
		return false
	}

	m.logger.Info("idle timeout reached, signaling graceful shutdown", "idle_time", idle, "timeout", m.cfg.Timeout)
	close(m.done)
	return true
}

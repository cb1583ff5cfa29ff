package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmylchreest/leadscout-api/internal/source"
)

// Metrics bundles the pipeline's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Registry         *prometheus.Registry
	RunsTotal        *prometheus.CounterVec
	CandidatesTotal  *prometheus.CounterVec
	AdapterCalls     *prometheus.CounterVec
	AdapterDuration  *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	EnrichmentsTotal *prometheus.CounterVec
	TasksTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_runs_total",
			Help: "Runs that reached a final status, by kind and status.",
		},
		[]string{"kind", "status"},
	)
	candidates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_candidates_total",
			Help: "Candidates and sellers that reached a terminal stage.",
		},
		[]string{"kind", "status", "duplicate"},
	)
	adapterCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_adapter_calls_total",
			Help: "External data source calls by capability and error kind.",
		},
		[]string{"capability", "result"},
	)
	adapterDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadscout_adapter_call_duration_seconds",
			Help:    "External data source call latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"capability"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_analysis_cache_lookups_total",
			Help: "Cross-run analysis cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
	enrichments := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_enrichments_total",
			Help: "Contact extraction passes by outcome.",
		},
		[]string{"status"},
	)
	tasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_worker_tasks_total",
			Help: "Background tasks finished, by whether they panicked.",
		},
		[]string{"panicked"},
	)

	registry.MustRegister(runs, candidates, adapterCalls, adapterDuration, cacheLookups, enrichments, tasks)

	return &Metrics{
		Registry:         registry,
		RunsTotal:        runs,
		CandidatesTotal:  candidates,
		AdapterCalls:     adapterCalls,
		AdapterDuration:  adapterDuration,
		CacheLookups:     cacheLookups,
		EnrichmentsTotal: enrichments,
		TasksTotal:       tasks,
	}
}

// IncRun counts a run reaching a final status.
func (m *Metrics) IncRun(kind, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(kind, status).Inc()
}

// IncCandidate counts a candidate or seller reaching a terminal stage.
func (m *Metrics) IncCandidate(kind, status string, duplicate bool) {
	if m == nil {
		return
	}
	dup := "false"
	if duplicate {
		dup = "true"
	}
	m.CandidatesTotal.WithLabelValues(kind, status, dup).Inc()
}

// ObserveAdapter records one adapter call.
func (m *Metrics) ObserveAdapter(capability string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AdapterCalls.WithLabelValues(capability, source.KindLabel(err)).Inc()
	m.AdapterDuration.WithLabelValues(capability).Observe(d.Seconds())
}

// IncCacheLookup counts a cache lookup at the given tier (memory, store).
func (m *Metrics) IncCacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// IncEnrichment counts a finished enrichment pass.
func (m *Metrics) IncEnrichment(status string) {
	if m == nil {
		return
	}
	m.EnrichmentsTotal.WithLabelValues(status).Inc()
}

// TaskDone is suitable for worker.Pool.OnTaskDone.
func (m *Metrics) TaskDone(_ string, panicked bool) {
	if m == nil {
		return
	}
	label := "false"
	if panicked {
		label = "true"
	}
	m.TasksTotal.WithLabelValues(label).Inc()
}

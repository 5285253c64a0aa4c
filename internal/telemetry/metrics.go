package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "strata"

// Metrics holds the Prometheus collectors of a run. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	reg *prometheus.Registry

	editions        *prometheus.CounterVec
	replayed        *prometheus.CounterVec
	collisions      *prometheus.CounterVec
	retryRemaining  prometheus.Gauge
	maxCombinations *prometheus.GaugeVec
	remaining       *prometheus.GaugeVec
	reconcileTime   *prometheus.HistogramVec
	runs            *prometheus.CounterVec
}

// NewMetrics registers the run collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		editions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "editions_total",
			Help: "Editions accepted, by configuration.",
		}, []string{"configuration"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "editions_replayed_total",
			Help: "Editions restored from the ledger, by configuration.",
		}, []string{"configuration"}),
		collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dna_collisions_total",
			Help: "Selections discarded as duplicates, by configuration.",
		}, []string{"configuration"}),
		retryRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "retry_budget_remaining",
			Help: "Uniqueness retries left in the run.",
		}),
		maxCombinations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "max_combinations",
			Help: "Lower bound on distinct combinations, by configuration.",
		}, []string{"configuration"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "remaining_combinations",
			Help: "Distinct combinations still available, by configuration.",
		}, []string{"configuration"}),
		reconcileTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "reconcile_duration_seconds",
			Help:    "Count reconciliation latency, by configuration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"configuration"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Finished runs, by outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(m.editions, m.replayed, m.collisions, m.retryRemaining, m.maxCombinations, m.remaining, m.reconcileTime, m.runs)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func label(config int) string { return strconv.Itoa(config) }

func (m *Metrics) EditionAccepted(config int) {
	if m == nil {
		return
	}
	m.editions.WithLabelValues(label(config)).Inc()
}

func (m *Metrics) EditionReplayed(config int) {
	if m == nil {
		return
	}
	m.replayed.WithLabelValues(label(config)).Inc()
}

// Collisions adds n discarded selections.
func (m *Metrics) Collisions(config, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.collisions.WithLabelValues(label(config)).Add(float64(n))
}

func (m *Metrics) RetryBudget(remaining int) {
	if m == nil {
		return
	}
	m.retryRemaining.Set(float64(remaining))
}

func (m *Metrics) MaxCombinations(config, n int) {
	if m == nil {
		return
	}
	m.maxCombinations.WithLabelValues(label(config)).Set(float64(n))
}

// RemainingCombinations records the combinations a configuration has left
// after its latest accepted edition.
func (m *Metrics) RemainingCombinations(config, n int) {
	if m == nil {
		return
	}
	m.remaining.WithLabelValues(label(config)).Set(float64(n))
}

func (m *Metrics) ReconcileDuration(config int, d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileTime.WithLabelValues(label(config)).Observe(d.Seconds())
}

// RunFinished counts a run under outcome "ok" or the error kind.
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

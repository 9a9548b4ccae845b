package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the authorization engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Permission cache metrics
	CacheLookupsTotal  *prometheus.CounterVec
	CacheFetchesTotal  *prometheus.CounterVec
	CacheEntries       prometheus.Gauge
	CacheInvalidations prometheus.Counter

	// Decision metrics
	DecisionsTotal *prometheus.CounterVec

	// Permission matrix metrics
	MatrixWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_permission_cache_lookups_total",
				Help: "Permission cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
		CacheFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_permission_cache_fetches_total",
				Help: "Permission store fetches by outcome (success, failure)",
			},
			[]string{"outcome"},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "opsboard_permission_cache_entries",
				Help: "Number of identities held in the permission cache",
			},
		),
		CacheInvalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "opsboard_permission_cache_invalidations_total",
				Help: "Number of permission cache invalidations",
			},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_authz_decisions_total",
				Help: "Authorization decisions by action and outcome (allow, deny, bypass)",
			},
			[]string{"action", "outcome"},
		),
		MatrixWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsboard_permission_matrix_writes_total",
				Help: "Permission matrix writes by kind and outcome (success, rollback)",
			},
			[]string{"kind", "outcome"},
		),
	}

	registry.MustRegister(
		m.CacheLookupsTotal,
		m.CacheFetchesTotal,
		m.CacheEntries,
		m.CacheInvalidations,
		m.DecisionsTotal,
		m.MatrixWritesTotal,
	)

	return m
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheFetch(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.CacheFetchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) CacheInvalidated() {
	if m == nil {
		return
	}
	m.CacheInvalidations.Inc()
}

func (m *Metrics) Decision(action, outcome string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) MatrixWrite(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "rollback"
	}
	m.MatrixWritesTotal.WithLabelValues(kind, outcome).Inc()
}

// MetricsHandler returns the /metrics handler for registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

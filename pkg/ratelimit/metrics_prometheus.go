package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// All metrics use a custom registry for better testability and isolation.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// grantsTotal tracks slot grants and deferrals per domain.
	// Labels:
	//   - domain: target domain being paced
	//   - outcome: "granted" or "deferred"
	grantsTotal *prometheus.CounterVec

	// waitDuration tracks how long callers were blocked before their
	// slot was granted.
	//
	// Buckets cover both sub-second gap waits and multi-minute
	// sliding-window waits.
	waitDuration *prometheus.HistogramVec

	// storeErrorsTotal tracks pacing-store failures per domain.
	storeErrorsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with a custom registry.
//
// The registry can be passed to promhttp.HandlerFor() to expose metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	grantsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_rate_limit_slots_total",
			Help: "Request slot decisions by domain and outcome",
		},
		[]string{"domain", "outcome"},
	)

	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_rate_limit_wait_seconds",
			Help:    "Time callers spent blocked waiting for a request slot",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 240, 600, 1800, 3600},
		},
		[]string{"domain"},
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_rate_limit_store_errors_total",
			Help: "Pacing store failures by domain",
		},
		[]string{"domain"},
	)

	registry.MustRegister(
		grantsTotal,
		waitDuration,
		storeErrorsTotal,
	)

	return &PrometheusMetrics{
		registry:         registry,
		grantsTotal:      grantsTotal,
		waitDuration:     waitDuration,
		storeErrorsTotal: storeErrorsTotal,
	}
}

// Registry returns the Prometheus registry containing all pacing metrics.
//
// This can be used with promhttp.HandlerFor() to expose metrics:
//
//	metrics := NewPrometheusMetrics()
//	http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordGrant records that a request slot was granted for the domain.
func (m *PrometheusMetrics) RecordGrant(domain string) {
	m.grantsTotal.WithLabelValues(domain, "granted").Inc()
}

// RecordDeferred records that a caller was told to wait for the domain.
func (m *PrometheusMetrics) RecordDeferred(domain string) {
	m.grantsTotal.WithLabelValues(domain, "deferred").Inc()
}

// RecordWaitDuration records the total blocked time before a grant.
func (m *PrometheusMetrics) RecordWaitDuration(domain string, duration time.Duration) {
	m.waitDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordStoreError records a pacing-store failure for the domain.
func (m *PrometheusMetrics) RecordStoreError(domain string) {
	m.storeErrorsTotal.WithLabelValues(domain).Inc()
}

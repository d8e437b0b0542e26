// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Business metrics track the scraping pipeline
var (
	// ProductsTotal tracks total number of tracked products in the database
	ProductsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "products_total",
			Help: "Total number of tracked products in the database",
		},
	)

	// ProductsMissingData tracks products flagged as missing data per source
	ProductsMissingData = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "products_missing_data",
			Help: "Number of products with missing or stale data per source",
		},
		[]string{"source"},
	)

	// PageFetchesTotal counts outbound page fetches by mode and status.
	// Status is the HTTP status code, or "error" when no response arrived.
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_fetches_total",
			Help: "Total number of outbound page fetches",
		},
		[]string{"mode", "status"},
	)

	// PageFetchDuration measures time to fetch a page
	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "page_fetch_duration_seconds",
			Help:    "Time taken to fetch a page",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6, 51.2},
		},
		[]string{"mode"},
	)

	// PageFetchSize measures fetched page size in bytes
	PageFetchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "page_fetch_size_bytes",
			Help: "Fetched page size in bytes",
			Buckets: []float64{
				1024, 4096, 16384, 65536, 262144,
				1048576, 2097152, 4194304, 10485760, // up to 10MB
			},
		},
	)

	// ScrapeJobsTotal counts completed scrape jobs by source and result
	ScrapeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_total",
			Help: "Total number of completed scrape jobs",
		},
		[]string{"source", "result"}, // result: success, not_found, failed, skipped
	)

	// ScrapeJobDuration measures end-to-end scrape job duration per source
	ScrapeJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_job_duration_seconds",
			Help:    "End-to-end scrape job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"source"},
	)

	// ScrapeRetriesTotal counts retried scrape attempts per source
	ScrapeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_retries_total",
			Help: "Total number of retried scrape attempts",
		},
		[]string{"source"},
	)

	// CircuitOpenedTotal counts circuit breaker trips per source
	CircuitOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_opened_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"source"},
	)

	// QueueJobsEnqueuedTotal counts jobs added to a queue by priority
	QueueJobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs added to the queue",
		},
		[]string{"queue", "priority"},
	)

	// QueueJobsDeduplicatedTotal counts enqueues skipped by deduplication
	QueueJobsDeduplicatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_deduplicated_total",
			Help: "Total number of enqueues skipped because an equivalent job was pending",
		},
		[]string{"queue"},
	)

	// QueueDepth tracks the number of jobs per queue and state
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of jobs per queue and state",
		},
		[]string{"queue", "state"}, // state: waiting, delayed, active
	)

	// ImageDownloadsTotal counts product image downloads by result
	ImageDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_downloads_total",
			Help: "Total number of product image downloads",
		},
		[]string{"result"},
	)

	// RawPayloadBytes measures compressed raw payload size written to storage
	RawPayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "raw_payload_bytes",
			Help: "Compressed raw payload size in bytes",
			Buckets: []float64{
				1024, 4096, 16384, 65536, 262144,
				1048576, 2097152, 4194304,
			},
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - HTTP request metrics (duration, count, size)
//   - Business metrics (fetches, scrape jobs, queue depth, images)
//   - Database query metrics
//   - Application performance metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "brickwatch/internal/observability/metrics"
//
//	func scrapeSet(source string, setNumber string) {
//	    start := time.Now()
//	    // ... run the scrape ...
//
//	    metrics.RecordScrapeJob(source, "success", time.Since(start))
//	    metrics.RecordOperationDuration("upsert_listing", time.Since(start))
//	}
package metrics

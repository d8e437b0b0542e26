package metrics

import (
	"fmt"
	"time"
)

// RecordFetch records a completed page fetch with its HTTP status.
// Mode should be "simple" or "browser".
//
// Parameters:
//   - mode: Fetch mode used for the request
//   - statusCode: HTTP status code of the response
//   - duration: Time taken to fetch the page
//   - size: Size of the fetched body in bytes
//
// Example:
//
//	start := time.Now()
//	result, err := fetcher.Fetch(ctx, req)
//	if err == nil {
//	    RecordFetch("simple", result.StatusCode, time.Since(start), len(result.Body))
//	}
func RecordFetch(mode string, statusCode int, duration time.Duration, size int) {
	PageFetchesTotal.WithLabelValues(
		mode,
		fmt.Sprintf("%d", statusCode),
	).Inc()
	PageFetchDuration.WithLabelValues(mode).Observe(duration.Seconds())

	if size > 0 {
		PageFetchSize.Observe(float64(size))
	}
}

// RecordFetchError records a page fetch that failed before an HTTP response
// arrived, such as a timeout or connection error.
//
// Parameters:
//   - mode: Fetch mode used for the request
//   - duration: Time taken before the fetch failed
//
// Example:
//
//	start := time.Now()
//	_, err := fetcher.Fetch(ctx, req)
//	if err != nil {
//	    RecordFetchError("simple", time.Since(start))
//	}
func RecordFetchError(mode string, duration time.Duration) {
	PageFetchesTotal.WithLabelValues(mode, "error").Inc()
	PageFetchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordScrapeJob records the outcome of a scrape job.
// Result should be "success", "not_found", "failed", or "skipped".
func RecordScrapeJob(source, result string, duration time.Duration) {
	ScrapeJobsTotal.WithLabelValues(source, result).Inc()
	ScrapeJobDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordScrapeRetry records a retried scrape attempt for a source.
func RecordScrapeRetry(source string) {
	ScrapeRetriesTotal.WithLabelValues(source).Inc()
}

// RecordCircuitOpened records a circuit breaker trip for a source.
func RecordCircuitOpened(source string) {
	CircuitOpenedTotal.WithLabelValues(source).Inc()
}

// RecordJobEnqueued records a job added to a queue at the given priority.
func RecordJobEnqueued(queue string, priority int) {
	QueueJobsEnqueuedTotal.WithLabelValues(
		queue,
		fmt.Sprintf("%d", priority),
	).Inc()
}

// RecordJobDeduplicated records an enqueue skipped because an equivalent job
// was already waiting, delayed, or active.
func RecordJobDeduplicated(queue string) {
	QueueJobsDeduplicatedTotal.WithLabelValues(queue).Inc()
}

// UpdateQueueDepth updates the per-state depth gauges for a queue.
// These gauges should be refreshed periodically to reflect the current state.
func UpdateQueueDepth(queue string, waiting, delayed, active int64) {
	QueueDepth.WithLabelValues(queue, "waiting").Set(float64(waiting))
	QueueDepth.WithLabelValues(queue, "delayed").Set(float64(delayed))
	QueueDepth.WithLabelValues(queue, "active").Set(float64(active))
}

// RecordImageDownload records the result of a product image download.
func RecordImageDownload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	ImageDownloadsTotal.WithLabelValues(result).Inc()
}

// RecordRawPayload records the compressed size of a stored raw payload.
func RecordRawPayload(compressedSize int) {
	RawPayloadBytes.Observe(float64(compressedSize))
}

// UpdateProductsTotal updates the total count of products in the database.
// This gauge should be updated periodically to reflect the current state.
func UpdateProductsTotal(count int) {
	ProductsTotal.Set(float64(count))
}

// UpdateProductsMissingData updates the count of products flagged as missing
// data for a source.
func UpdateProductsMissingData(source string, count int) {
	ProductsMissingData.WithLabelValues(source).Set(float64(count))
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_products", "upsert_listing").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// Package resilience provides reliability and fault tolerance patterns for the pipeline.
// It includes circuit breakers and retry logic so scrape failures degrade the
// system gracefully instead of cascading.
//
// The package supports:
//   - A Redis-shared circuit breaker per scrape source, so every worker
//     process backs off together when a target starts blocking
//   - In-process circuit breakers for the database and image CDN calls
//   - Retry logic with exponential backoff and jitter
//
// Usage Example:
//
//	breaker := circuitbreaker.NewSourceBreaker(redisClient, circuitbreaker.DefaultSourceConfig())
//	open, err := breaker.IsOpen(ctx, "marketplace")
//
//	retryConfig := retry.DefaultConfig()
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience

// Package images downloads product images referenced by scraped records.
//
// Image downloads ride along with scrapes but never decide their outcome: a
// record upserts fine with ImageStatusFailed, and a later scrape retries the
// download. Storage is pluggable; the pipeline only needs the bytes put
// somewhere addressable by the record's natural key.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/observability/metrics"
	"brickwatch/internal/resilience/circuitbreaker"
	"brickwatch/internal/resilience/retry"
)

// Store persists downloaded image bytes under a record's natural key.
type Store interface {
	Put(ctx context.Context, key string, contentType string, body []byte) error
}

// Config holds downloader tuning.
type Config struct {
	// Timeout bounds one download.
	Timeout time.Duration

	// MaxBytes caps how large an image may be.
	MaxBytes int64

	// PerSecond throttles downloads across all sources; images share the
	// product CDNs, not the scrape targets, so they get their own budget.
	PerSecond float64

	// Burst is the throttle's burst allowance.
	Burst int
}

// DefaultConfig returns the production downloader configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   15 * time.Second,
		MaxBytes:  5 * 1024 * 1024,
		PerSecond: 2,
		Burst:     4,
	}
}

// Downloader fetches product images and hands them to a Store.
type Downloader struct {
	client  *http.Client
	store   Store
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	config  Config
}

// NewDownloader creates a throttled image downloader.
func NewDownloader(store Store, config Config) *Downloader {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultConfig().MaxBytes
	}
	if config.PerSecond <= 0 {
		config.PerSecond = DefaultConfig().PerSecond
	}
	if config.Burst <= 0 {
		config.Burst = DefaultConfig().Burst
	}
	return &Downloader{
		client:  &http.Client{},
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(config.PerSecond), config.Burst),
		breaker: circuitbreaker.New(circuitbreaker.ImageFetchConfig()),
		config:  config,
	}
}

// Download fetches imageURL and stores it under key. Returns the image
// status to record on the owning row; an empty imageURL is skipped, and any
// failure is reported as a status rather than surfaced to the scrape.
func (d *Downloader) Download(ctx context.Context, key, imageURL string) entity.ImageStatus {
	if imageURL == "" {
		return entity.ImageStatusSkipped
	}

	// a tripped CDN breaker skips instead of failing; a later scrape retries
	// once the cooldown elapses
	if d.breaker.IsOpen() {
		return entity.ImageStatusSkipped
	}

	err := retry.WithBackoff(ctx, retry.ImageConfig(), func() error {
		_, execErr := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.fetchOnce(ctx, key, imageURL)
		})
		return execErr
	})
	if err != nil {
		metrics.RecordImageDownload(false)
		return entity.ImageStatusFailed
	}
	metrics.RecordImageDownload(true)
	return entity.ImageStatusSuccess
}

func (d *Downloader) fetchOnce(ctx context.Context, key, imageURL string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("fetchOnce: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("fetchOnce: create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &retry.TimeoutError{URL: imageURL}
		}
		return &retry.NetworkError{URL: imageURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("image fetch: %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.config.MaxBytes))
	if err != nil {
		return &retry.NetworkError{URL: imageURL, Err: err}
	}

	if err := d.store.Put(ctx, key, resp.Header.Get("Content-Type"), body); err != nil {
		return fmt.Errorf("fetchOnce: store: %w", err)
	}
	return nil
}

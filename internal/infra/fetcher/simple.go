package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"brickwatch/internal/observability/metrics"
	"brickwatch/internal/resilience/retry"
)

// SimpleFetcher fetches pages with a plain HTTP client.
//
// Headers are rotated per request from the configured pools so consecutive
// fetches against one target do not share an obvious fingerprint.
type SimpleFetcher struct {
	client *http.Client
	config Config
}

// NewSimpleFetcher creates a plain HTTP fetcher.
func NewSimpleFetcher(config Config) *SimpleFetcher {
	return &SimpleFetcher{
		client: &http.Client{
			// Per-fetch deadlines come from the request context; the
			// client itself only bounds redirect chains.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		config: config,
	}
}

// Fetch retrieves the page at req.URL.
//
// Non-2xx responses come back as *retry.HTTPError so the retry loop can
// classify them; timeouts and transport failures come back as
// *retry.TimeoutError and *retry.NetworkError.
func (f *SimpleFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("Fetch: create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", pick(f.config.UserAgents))
	httpReq.Header.Set("Accept-Language", pick(f.config.AcceptLanguages))
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		metrics.RecordFetchError("simple", time.Since(start))
		return nil, classifyTransportError(req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limitedReader := io.LimitReader(resp.Body, f.config.MaxBodySize)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		metrics.RecordFetchError("simple", time.Since(start))
		return nil, classifyTransportError(req.URL, err)
	}

	metrics.RecordFetch("simple", resp.StatusCode, time.Since(start), len(bodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status: %s", resp.Status),
		}
	}

	return &Result{
		Body:        string(bodyBytes),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// classifyTransportError maps low-level fetch failures onto the retry
// taxonomy. Context cancellation passes through untouched so callers can
// distinguish shutdown from target trouble.
func classifyTransportError(url string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("Fetch: %w", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &retry.TimeoutError{URL: url}
	}

	return &retry.NetworkError{URL: url, Err: err}
}

// pick returns a uniformly random element of pool, or "" for an empty pool.
func pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))]
}

// Package scraper implements the per-source scrape workers.
//
// Every worker runs the same pipeline: rate-limit wait, circuit check,
// fetch, raw-payload persist, parse, repository upsert, breaker record. The
// shared engine owns that skeleton along with the retry loop; each source
// contributes its URL shape, fetch mode, parse step and repository calls.
//
// Error classification happens once, here. Downstream (the worker pool, the
// queue, the control plane) only ever sees a Result.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/resilience/retry"
)

// Request identifies one item to scrape and how to treat the run.
type Request struct {
	// ItemID is the marketplace identifier, when the source uses one.
	ItemID   string
	ItemType entity.ItemType

	// SetNumber keys the retirement tracker, metadata site and community
	// board.
	SetNumber string

	// URL overrides the URL the worker would build from the identifier.
	URL string

	// SaveToDB controls session recording and repository writes. Ad-hoc
	// diagnostic scrapes turn it off.
	SaveToDB bool

	// SkipRateLimit bypasses the domain pacing gate. Ad-hoc diagnostic
	// scrapes set it.
	SkipRateLimit bool

	// Force marks an operator-requested run: it skips the pacing gate and
	// proceeds even when the source's circuit is open. The force-scrape
	// surface sets it; sweeps never do.
	Force bool
}

// Result is the single outcome shape every scrape reports.
type Result struct {
	Success  bool
	NotFound bool

	// Retries is how many extra attempts ran beyond the first.
	Retries int

	ProductsFound  int
	ProductsStored int

	SessionID string
	Err       error
}

// Scraper is the capability set shared by every source worker.
type Scraper interface {
	// Source identifies which external site this worker scrapes.
	Source() entity.Source

	// Scrape runs one full scrape for the requested item.
	Scrape(ctx context.Context, req Request) Result
}

// InvalidInputError reports a malformed identifier or URL. Never retried.
type InvalidInputError struct {
	Source entity.Source
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for %s scrape: %s", e.Source, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

// Retryable marks invalid input as terminal for the retry loop.
func (e *InvalidInputError) Retryable() bool {
	return false
}

// RateLimiter paces outbound requests per domain.
type RateLimiter interface {
	WaitForNextRequest(ctx context.Context, domain string) error
}

// Breaker is the shared per-source circuit breaker.
type Breaker interface {
	IsOpen(ctx context.Context, source string) (bool, error)
	RecordSuccess(ctx context.Context, source string) error
	RecordFailure(ctx context.Context, source string) error
}

// ImageDownloader fetches a record's product image and reports the status to
// store on the row. Implementations must never fail the scrape.
type ImageDownloader interface {
	Download(ctx context.Context, key, imageURL string) entity.ImageStatus
}

// errHTTPNotFound reports whether err is an HTTP 404, which direct-fetch
// sources treat as the item not existing rather than as a failure.
func errHTTPNotFound(err error) bool {
	var httpErr *retry.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

package scraper

import (
	"context"
	"log/slog"
	"time"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/fetcher"
	"brickwatch/internal/infra/parser"
	"brickwatch/internal/observability/metrics"
	"brickwatch/internal/repository"
	"brickwatch/internal/resilience/circuitbreaker"
	"brickwatch/internal/resilience/retry"
)

// Engine carries the dependencies and skeleton shared by every source
// worker. Workers embed it and contribute only their source-specific attempt.
type Engine struct {
	Limiter  RateLimiter
	Breaker  Breaker
	Fetcher  fetcher.Fetcher
	Sessions repository.ScrapeSessionRepository
	Payloads repository.RawPayloadRepository

	// Images may be nil, in which case records keep ImageStatusSkipped.
	Images ImageDownloader

	// RetryConfig defaults to retry.ScrapeConfig.
	RetryConfig retry.Config
}

func (e *Engine) retryConfig() retry.Config {
	if e.RetryConfig.MaxAttempts > 0 {
		return e.RetryConfig
	}
	return retry.ScrapeConfig()
}

// runSpec describes one scrape run to the engine.
type runSpec struct {
	source    entity.Source
	domain    string
	mode      entity.FetchMode
	sourceURL string

	saveToDB      bool
	skipRateLimit bool
	force         bool

	// notFoundOn404 treats an HTTP 404 on a direct item fetch as the source
	// saying the item does not exist.
	notFoundOn404 bool

	// attempt runs the source-specific fetch-parse-upsert once. The engine
	// retries it per the retry taxonomy; one call is one attempt even when
	// it performs several sub-fetches.
	attempt func(ctx context.Context, run *Run) error

	// markNotFound parks the identifier when the source confirms absence.
	// Nil for sources without a not-found outcome.
	markNotFound func(ctx context.Context, nextScrapeAt time.Time) error

	// markFailed flags the record after attempts are exhausted. Nil when the
	// item has no row to flag.
	markFailed func(ctx context.Context) error
}

// Run is the per-scrape state handed to a source's attempt: the open session
// plus the paced fetch helper. Attempts report their counters through it.
type Run struct {
	engine *Engine
	spec   *runSpec

	SessionID string

	// Found and Stored are set by the attempt and end up on the session row.
	Found  int
	Stored int
}

// FetchPage performs one paced fetch of url and persists the raw response.
// Multi-step sources call it several times inside one attempt; every call is
// its own rate-limit wait and raw-payload row.
func (r *Run) FetchPage(ctx context.Context, url string) (*fetcher.Result, error) {
	return r.fetch(ctx, url, "")
}

// FetchPageWait is FetchPage with a browser-mode readiness selector.
func (r *Run) FetchPageWait(ctx context.Context, url, waitForSelector string) (*fetcher.Result, error) {
	return r.fetch(ctx, url, waitForSelector)
}

func (r *Run) fetch(ctx context.Context, url, waitForSelector string) (*fetcher.Result, error) {
	if !r.spec.skipRateLimit && !r.spec.force {
		if err := r.engine.Limiter.WaitForNextRequest(ctx, r.spec.domain); err != nil {
			return nil, err
		}
	}

	result, err := r.engine.Fetcher.Fetch(ctx, fetcher.Request{
		URL:             url,
		Mode:            r.spec.mode,
		WaitForSelector: waitForSelector,
	})
	if err != nil {
		return nil, err
	}

	if r.spec.saveToDB && r.SessionID != "" {
		if err := r.engine.Payloads.Save(ctx, r.SessionID, r.spec.source, url,
			[]byte(result.Body), result.ContentType, result.StatusCode); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Image downloads a record's product image and returns the status to store.
func (r *Run) Image(ctx context.Context, key, imageURL string) entity.ImageStatus {
	if r.engine.Images == nil {
		return entity.ImageStatusSkipped
	}
	return r.engine.Images.Download(ctx, key, imageURL)
}

// run executes one scrape under the shared skeleton: session open, breaker
// check, retry loop, breaker record, session close. It is the only place
// scrape errors are classified.
func (e *Engine) run(ctx context.Context, spec runSpec) Result {
	start := time.Now()
	sourceKey := string(spec.source)

	result := Result{}
	if spec.saveToDB {
		sessionID, err := e.Sessions.Open(ctx, spec.source, spec.sourceURL)
		if err != nil {
			result.Err = err
			metrics.RecordScrapeJob(sourceKey, "failed", time.Since(start))
			return result
		}
		result.SessionID = sessionID
	}

	// Forced runs never consult the breaker: an operator asking for this
	// exact item outranks the cooldown. The outcome is still recorded, so a
	// forced success closes the circuit early.
	open := false
	if !spec.force {
		var err error
		open, err = e.Breaker.IsOpen(ctx, sourceKey)
		if err != nil {
			// Breaker store down reads as "not open": refusing every scrape
			// because Redis blinked would stall the whole pipeline.
			slog.Error("breaker state unavailable, proceeding",
				slog.String("source", sourceKey),
				slog.Any("error", err))
		}
	}
	if open {
		result.Err = circuitbreaker.ErrCircuitOpen
		e.closeSession(ctx, &result, spec, entity.SessionStatusFailed)
		metrics.RecordScrapeJob(sourceKey, "skipped", time.Since(start))
		return result
	}

	run := &Run{engine: e, spec: &spec, SessionID: result.SessionID}

	attempts := 0
	runErr := retry.WithBackoff(ctx, e.retryConfig(), func() error {
		attempts++
		if attempts > 1 {
			metrics.RecordScrapeRetry(sourceKey)
		}
		return spec.attempt(ctx, run)
	})
	result.Retries = attempts - 1
	result.ProductsFound = run.Found
	result.ProductsStored = run.Stored

	switch {
	case runErr == nil:
		result.Success = true
		e.recordBreaker(ctx, sourceKey, true)
		status := entity.SessionStatusSuccess
		if run.Stored < run.Found {
			status = entity.SessionStatusPartial
		}
		e.closeSession(ctx, &result, spec, status)
		metrics.RecordScrapeJob(sourceKey, "success", time.Since(start))

	case parser.IsSetNotFound(runErr) || (spec.notFoundOn404 && errHTTPNotFound(runErr)):
		// The source answered; the item just is not there. Terminal, parked
		// on a long horizon, and a success as far as the breaker cares.
		result.Success = true
		result.NotFound = true
		if spec.markNotFound != nil {
			horizon := time.Now().UTC().AddDate(0, 0, entity.NotFoundRetryDays)
			if err := spec.markNotFound(ctx, horizon); err != nil {
				slog.Error("recording not-found failed",
					slog.String("source", sourceKey),
					slog.Any("error", err))
			}
		}
		e.recordBreaker(ctx, sourceKey, true)
		e.closeSession(ctx, &result, spec, entity.SessionStatusSuccess)
		metrics.RecordScrapeJob(sourceKey, "not_found", time.Since(start))

	default:
		result.Err = runErr
		e.recordBreaker(ctx, sourceKey, false)
		if spec.markFailed != nil {
			if err := spec.markFailed(ctx); err != nil {
				slog.Error("marking record failed errored",
					slog.String("source", sourceKey),
					slog.Any("error", err))
			}
		}
		e.closeSession(ctx, &result, spec, entity.SessionStatusFailed)
		metrics.RecordScrapeJob(sourceKey, "failed", time.Since(start))
	}

	return result
}

func (e *Engine) closeSession(ctx context.Context, result *Result, spec runSpec, status entity.SessionStatus) {
	if !spec.saveToDB || result.SessionID == "" {
		return
	}
	if err := e.Sessions.Close(ctx, result.SessionID, status, result.ProductsFound, result.ProductsStored); err != nil {
		slog.Error("closing scrape session failed",
			slog.String("session_id", result.SessionID),
			slog.Any("error", err))
	}
}

// recordBreaker reports the job outcome to the shared breaker. One exhausted
// job counts as one failure regardless of how many attempts it burned.
func (e *Engine) recordBreaker(ctx context.Context, sourceKey string, success bool) {
	var err error
	if success {
		err = e.Breaker.RecordSuccess(ctx, sourceKey)
	} else {
		err = e.Breaker.RecordFailure(ctx, sourceKey)
	}
	if err != nil {
		slog.Error("breaker update failed",
			slog.String("source", sourceKey),
			slog.Bool("success", success),
			slog.Any("error", err))
	}
}

// logIdentifierMismatch notes that a source returned a differently-normalized
// identifier than requested. The parsed record still wins.
func logIdentifierMismatch(source entity.Source, requested, parsed string) {
	if requested != "" && parsed != "" && requested != parsed {
		slog.Warn("source normalized the requested identifier",
			slog.String("source", string(source)),
			slog.String("requested", requested),
			slog.String("parsed", parsed))
	}
}

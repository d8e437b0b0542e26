// Package worker runs the consumer pool that drains the scrape-job queue.
//
// The pool is deliberately small: scraping is paced by per-domain rate
// limits, not by CPU, so a handful of consumers keeps every domain busy
// without ever bursting one. Each consumer claims, dispatches to the source
// worker registered for the job name, then acks or fails. Panics inside a
// scrape are recovered and reported as a failed attempt; the consumer loop
// itself never dies.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/queue"
	"brickwatch/internal/infra/scraper"
	"brickwatch/internal/resilience/circuitbreaker"
)

// Dispatcher resolves a job name to its source worker and runs the scrape.
// *scraper.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobName string, req scraper.Request) (scraper.Result, error)
}

// Pool consumes the job queue with a fixed number of goroutines.
type Pool struct {
	queue    *queue.Queue
	dispatch Dispatcher
	config   WorkerConfig
	logger   *slog.Logger
	metrics  *WorkerMetrics

	workerID string
	inFlight atomic.Int64
}

// NewPool creates a consumer pool. The pool does not start until Run.
func NewPool(q *queue.Queue, dispatcher Dispatcher, config WorkerConfig, logger *slog.Logger, metrics *WorkerMetrics) *Pool {
	return &Pool{
		queue:    q,
		dispatch: dispatcher,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		workerID: uuid.NewString(),
	}
}

// WorkerID returns the heartbeat identity of this process.
func (p *Pool) WorkerID() string {
	return p.workerID
}

// Run starts the consumers, the delayed-job promoter and the heartbeat loop,
// and blocks until ctx is cancelled. In-flight jobs finish their attempt
// before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID),
		slog.Int("concurrency", p.config.Concurrency))

	// first beat before any consumer claims, so the status endpoint sees
	// the pool as soon as it exists
	if err := p.queue.Heartbeat(ctx, p.workerID, false, false); err != nil {
		p.logger.Warn("initial heartbeat failed", slog.Any("error", err))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.promoteLoop(ctx) })
	g.Go(func() error { return p.heartbeatLoop(ctx) })
	for i := 0; i < p.config.Concurrency; i++ {
		i := i
		g.Go(func() error { return p.consumeLoop(ctx, i) })
	}

	err := g.Wait()
	p.logger.Info("worker pool stopped", slog.String("worker_id", p.workerID))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// promoteLoop moves delayed jobs whose backoff elapsed back to waiting.
func (p *Pool) promoteLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.config.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			promoted, err := p.queue.PromoteDelayed(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("promote delayed jobs failed", slog.Any("error", err))
				}
				continue
			}
			if promoted > 0 {
				p.logger.Debug("promoted delayed jobs", slog.Int64("count", promoted))
			}
		}
	}
}

// heartbeatLoop refreshes the worker-status key so the control plane can
// tell a live pool from a dead one.
func (p *Pool) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			running := p.inFlight.Load() > 0
			if err := p.queue.Heartbeat(ctx, p.workerID, false, running); err != nil && ctx.Err() == nil {
				p.logger.Warn("heartbeat failed", slog.Any("error", err))
			}
		}
	}
}

// consumeLoop claims and processes jobs until the context ends. Claim errors
// and empty polls both back off by the claim interval; a successful job is
// followed immediately by the next claim.
func (p *Pool) consumeLoop(ctx context.Context, consumer int) error {
	logger := p.logger.With(slog.Int("consumer", consumer))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := p.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("claim failed", slog.Any("error", err))
			}
			if !sleepCtx(ctx, p.config.ClaimInterval) {
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, p.config.ClaimInterval) {
				return ctx.Err()
			}
			continue
		}

		p.processJob(ctx, logger, job)
	}
}

// processJob runs one claimed job through its source worker and settles it
// with the queue. A panic counts as a failed attempt.
func (p *Pool) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	p.inFlight.Add(1)
	start := time.Now()

	defer func() {
		p.inFlight.Add(-1)
		if r := recover(); r != nil {
			logger.Error("scrape job panicked",
				slog.String("job_id", job.ID),
				slog.String("job_name", job.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			p.metrics.RecordJob(job.Name, "panic", time.Since(start).Seconds())
			p.settleFail(ctx, logger, job, fmt.Sprintf("panic: %v", r), false)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	result, err := p.dispatch.Dispatch(jobCtx, job.Name, scraper.Request{
		ItemID:    job.Data.ItemID,
		ItemType:  entity.ItemType(job.Data.ItemType),
		SetNumber: job.Data.SetNumber,
		URL:       job.Data.URL,
		SaveToDB:  true,
		Force:     job.Data.Force,
	})
	elapsed := time.Since(start)

	switch {
	case err != nil:
		// no worker registered for this name; retrying cannot help
		logger.Error("job dispatch failed",
			slog.String("job_id", job.ID),
			slog.String("job_name", job.Name),
			slog.Any("error", err))
		p.metrics.RecordJob(job.Name, "failed", elapsed.Seconds())
		p.settleFail(ctx, logger, job, err.Error(), true)

	case result.Err == nil:
		logger.Info("scrape job completed",
			slog.String("job_id", job.ID),
			slog.String("job_name", job.Name),
			slog.String("identifier", job.Data.Identifier()),
			slog.Bool("not_found", result.NotFound),
			slog.Int("retries", result.Retries),
			slog.Duration("duration", elapsed))
		p.metrics.RecordJob(job.Name, "completed", elapsed.Seconds())
		if err := p.queue.Ack(ctx, job.ID, returnValue(result)); err != nil && !errors.Is(err, queue.ErrJobGone) {
			logger.Warn("ack failed", slog.String("job_id", job.ID), slog.Any("error", err))
		}

	default:
		terminal := isTerminal(result.Err)
		outcome := "retried"
		if terminal || job.AttemptsMade >= job.MaxAttempts {
			outcome = "failed"
		}
		logger.Warn("scrape job failed",
			slog.String("job_id", job.ID),
			slog.String("job_name", job.Name),
			slog.String("identifier", job.Data.Identifier()),
			slog.Int("attempts_made", job.AttemptsMade),
			slog.Bool("terminal", terminal),
			slog.Any("error", result.Err))
		p.metrics.RecordJob(job.Name, outcome, elapsed.Seconds())
		p.settleFail(ctx, logger, job, result.Err.Error(), terminal)
	}
}

// settleFail reports a failed attempt to the queue. Jobs obliterated while
// in flight come back as ErrJobGone and are dropped silently.
func (p *Pool) settleFail(ctx context.Context, logger *slog.Logger, job *queue.Job, reason string, terminal bool) {
	var err error
	if terminal {
		err = p.queue.FailTerminal(ctx, job, reason)
	} else {
		err = p.queue.Fail(ctx, job, reason)
	}
	if err != nil && !errors.Is(err, queue.ErrJobGone) {
		logger.Warn("fail settle failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// isTerminal reports whether the scrape error can never succeed on a
// re-queue: an open circuit refuses the whole source until its cooldown, and
// invalid input stays invalid.
func isTerminal(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return true
	}
	var invalid *scraper.InvalidInputError
	return errors.As(err, &invalid)
}

// returnValue renders the scrape outcome as the job's stored return value.
func returnValue(result scraper.Result) string {
	b, err := json.Marshal(map[string]any{
		"success":        result.Success,
		"notFound":       result.NotFound,
		"retries":        result.Retries,
		"productsFound":  result.ProductsFound,
		"productsStored": result.ProductsStored,
		"sessionId":      result.SessionID,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

var (
	// ErrStoreUnavailable indicates the pacing store could not be reached.
	// Callers should treat the request as not sent and retry later rather
	// than proceed unpaced.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrWaitTooLong indicates the projected wait exceeds the configured cap.
	// This typically means a sliding window is exhausted and the caller
	// should give the slot back instead of blocking for the remainder.
	ErrWaitTooLong = errors.New("ratelimit: projected wait exceeds cap")
)

// Limiter blocks callers until their target domain is ready for the next
// request.
//
// Cross-process coordination happens through the Store; within one process a
// per-domain mutex additionally serializes waiters so at most one goroutine
// polls the store per domain at a time.
type Limiter struct {
	store   Store
	config  Config
	clock   Clock
	metrics Metrics

	mu    sync.Mutex
	gates map[string]*sync.Mutex
}

// Options configures optional limiter dependencies.
type Options struct {
	// Clock provides time operations. Default: SystemClock.
	Clock Clock

	// Metrics receives pacing observations. Default: no-op.
	Metrics Metrics
}

// NewLimiter creates a limiter with default options.
func NewLimiter(store Store, config Config) *Limiter {
	return NewLimiterWith(store, config, Options{})
}

// NewLimiterWith creates a limiter with explicit options.
func NewLimiterWith(store Store, config Config, opts Options) *Limiter {
	if opts.Clock == nil {
		opts.Clock = &SystemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = &NoopMetrics{}
	}
	return &Limiter{
		store:   store,
		config:  config,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		gates:   make(map[string]*sync.Mutex),
	}
}

// WaitForNextRequest blocks until the caller is allowed to issue a request
// to domain, then records the grant so the next caller is paced off it.
//
// It returns nil exactly when a slot was claimed. It returns an error
// wrapping ErrStoreUnavailable when the store cannot be reached,
// ErrWaitTooLong when the remaining wait would exceed Config.MaxWait, or the
// context error when ctx ends the wait early. No request slot is consumed
// on any error return.
func (l *Limiter) WaitForNextRequest(ctx context.Context, domain string) error {
	rule := l.config.RuleFor(domain)

	gate := l.gate(domain)
	gate.Lock()
	defer gate.Unlock()

	start := l.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("WaitForNextRequest: %w", err)
		}

		wait, err := l.store.ReserveSlot(ctx, domain, rule)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("WaitForNextRequest: %w", err)
			}
			l.metrics.RecordStoreError(domain)
			return fmt.Errorf("WaitForNextRequest: %w: %v", ErrStoreUnavailable, err)
		}
		if wait <= 0 {
			l.metrics.RecordGrant(domain)
			l.metrics.RecordWaitDuration(domain, l.clock.Now().Sub(start))
			return nil
		}

		if rule.Jitter > 0 {
			wait += rand.N(rule.Jitter)
		}
		if l.config.MaxWait > 0 {
			elapsed := l.clock.Now().Sub(start)
			if elapsed+wait > l.config.MaxWait {
				l.metrics.RecordDeferred(domain)
				return fmt.Errorf("WaitForNextRequest: %w: %v needed for %s", ErrWaitTooLong, wait, domain)
			}
		}

		l.metrics.RecordDeferred(domain)
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("WaitForNextRequest: %w", err)
		}
	}
}

// gate returns the in-process serialization mutex for domain.
func (l *Limiter) gate(domain string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.gates[domain]
	if !ok {
		g = &sync.Mutex{}
		l.gates[domain] = g
	}
	return g
}

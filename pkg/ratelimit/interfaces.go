// Package ratelimit paces outbound requests per target domain.
//
// Scrape targets tolerate very different request rates, so each domain gets
// its own pacing rule: a mandatory minimum gap between consecutive requests,
// optionally combined with a sliding-window ceiling (e.g. at most 15 requests
// per hour). State lives in a pluggable store so that several worker
// processes sharing one Redis pace against the same budget.
package ratelimit

import (
	"context"
	"time"
)

// Store holds per-domain pacing state and arbitrates slot grants.
//
// Implementations must make ReserveSlot atomic: the decision to grant and the
// recording of the grant happen as one operation, so concurrent callers
// (including callers in other processes) can never both claim the same slot.
type Store interface {
	// ReserveSlot attempts to claim the next request slot for key under rule.
	//
	// A zero return means the slot was claimed and the caller may issue its
	// request immediately. A positive duration means the slot is not yet
	// available; the caller should sleep that long and try again. No state
	// is recorded on a non-zero return.
	ReserveSlot(ctx context.Context, key string, rule Rule) (time.Duration, error)
}

// Metrics defines the interface for recording pacing metrics.
//
// Implementations can use Prometheus or custom metrics systems.
type Metrics interface {
	// RecordGrant records that a request slot was granted for the domain.
	RecordGrant(domain string)

	// RecordDeferred records that a caller was told to wait for the domain.
	RecordDeferred(domain string)

	// RecordWaitDuration records the total time a caller spent blocked in
	// WaitForNextRequest before its slot was granted.
	RecordWaitDuration(domain string, duration time.Duration)

	// RecordStoreError records a pacing-store failure for the domain.
	RecordStoreError(domain string)
}

// Clock provides an abstraction for time operations to enable testing.
//
// Fake clocks let tests advance time instantly instead of sleeping for
// real-world request gaps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() when the context ended the sleep early.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is cancelled.
func (c *SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

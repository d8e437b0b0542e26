// Package notify dispatches pipeline alerts across multiple delivery
// channels (Discord, Slack) with a bounded worker pool, per-channel circuit
// breakers, and metrics. Alert delivery never blocks the pipeline.
package notify

import (
	"context"

	"brickwatch/internal/infra/notifier"
)

// Channel represents an alert delivery channel (Discord, Slack, etc.).
// Each implementation handles its own rate limiting, retries, and error
// handling.
//
// Retry policy contract:
//   - Transient failures (5xx, network errors): retry with exponential backoff (max 2 attempts)
//   - Rate limits (429): sleep for retry_after duration, then retry
//   - Client errors (4xx except 429): no retry
//   - Context timeout: no retry
//
// All methods must be safe for concurrent use.
type Channel interface {
	// Name returns the channel identifier used for logging, metrics labels,
	// and health reporting (lowercase, alphanumeric).
	Name() string

	// IsEnabled reports whether this channel is enabled via configuration.
	// Disabled channels are skipped during dispatch.
	IsEnabled() bool

	// Send delivers one alert to this channel. Implementations must respect
	// context cancellation, apply rate limiting, and retry transient
	// failures per the retry policy.
	//
	// Returns ErrChannelDisabled when called on a disabled channel,
	// ErrInvalidAlert when the alert is nil or missing a title, or a
	// wrapped network/API error after all retries.
	Send(ctx context.Context, alert *notifier.Alert) error
}

// Package notifier delivers pipeline alerts to external webhook services
// (Discord, Slack). Each implementation handles its own rate limiting and
// retry policy so callers can fire-and-forget.
package notifier

import (
	"context"
	"time"
)

// Severity classifies an alert for routing and rendering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operational event worth telling a human about: a circuit
// breaker tripping, a sweep failing, a worker going quiet.
type Alert struct {
	// Title is a short one-line summary, e.g. "circuit breaker open: marketplace".
	Title string

	// Body is the longer explanation. May be empty.
	Body string

	// Severity drives rendering (colors, emoji) in the delivery channels.
	Severity Severity

	// Source names the pipeline component that raised the alert,
	// e.g. "circuit_breaker", "scheduler", "worker".
	Source string

	// Fields carries extra structured details rendered as key/value lines.
	Fields map[string]string

	// At is when the alerted condition occurred. Zero means "now".
	At time.Time
}

// Timestamp returns At, defaulting to the current time when unset.
func (a *Alert) Timestamp() time.Time {
	if a.At.IsZero() {
		return time.Now().UTC()
	}
	return a.At
}

// Notifier sends alerts to a single delivery channel.
//
// Implementations must be safe for concurrent use, respect context
// cancellation, and apply their own rate limiting and retries. A non-nil
// error means the alert was not delivered after all attempts.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *Alert) error
}

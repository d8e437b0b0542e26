package notify

import (
	"context"

	"brickwatch/internal/infra/notifier"
)

// SlackChannel implements the Channel interface for Slack alerts.
// It wraps the SlackNotifier from the infrastructure layer to provide
// the Channel abstraction for the alert dispatch use case.
type SlackChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel creates a Slack channel with the given configuration.
//
// If Slack alerts are disabled (config.Enabled = false), a NoOpNotifier
// is used instead so the Channel interface contract is always satisfied
// without nil checks.
func NewSlackChannel(config notifier.SlackConfig) *SlackChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewSlackNotifier(config)
	} else {
		n = notifier.NewNoOpNotifier()
	}

	return &SlackChannel{
		notifier: n,
		enabled:  config.Enabled,
	}
}

// Name returns the channel identifier "slack".
func (c *SlackChannel) Name() string {
	return "slack"
}

// IsEnabled returns whether Slack alerts are enabled via configuration.
func (c *SlackChannel) IsEnabled() bool {
	return c.enabled
}

// Send validates the alert and delegates to the underlying SlackNotifier,
// which handles rate limiting (1 req/s, burst 1), retries, and request ID
// logging.
func (c *SlackChannel) Send(ctx context.Context, alert *notifier.Alert) error {
	if !c.enabled {
		return ErrChannelDisabled
	}

	if alert == nil || alert.Title == "" {
		return ErrInvalidAlert
	}

	return c.notifier.NotifyAlert(ctx, alert)
}

package notify

import (
	"context"

	"brickwatch/internal/infra/notifier"
)

// DiscordChannel implements the Channel interface for Discord alerts.
// It wraps the DiscordNotifier from the infrastructure layer to provide
// the Channel abstraction for the alert dispatch use case.
type DiscordChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewDiscordChannel creates a Discord channel with the given configuration.
//
// If Discord alerts are disabled (config.Enabled = false), a NoOpNotifier
// is used instead so the Channel interface contract is always satisfied
// without nil checks.
func NewDiscordChannel(config notifier.DiscordConfig) *DiscordChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewDiscordNotifier(config)
	} else {
		n = notifier.NewNoOpNotifier()
	}

	return &DiscordChannel{
		notifier: n,
		enabled:  config.Enabled,
	}
}

// Name returns the channel identifier "discord".
func (c *DiscordChannel) Name() string {
	return "discord"
}

// IsEnabled returns whether Discord alerts are enabled via configuration.
func (c *DiscordChannel) IsEnabled() bool {
	return c.enabled
}

// Send validates the alert and delegates to the underlying DiscordNotifier,
// which handles rate limiting (0.5 req/s, burst 3), retries, and request ID
// logging.
func (c *DiscordChannel) Send(ctx context.Context, alert *notifier.Alert) error {
	if !c.enabled {
		return ErrChannelDisabled
	}

	if alert == nil || alert.Title == "" {
		return ErrInvalidAlert
	}

	return c.notifier.NotifyAlert(ctx, alert)
}

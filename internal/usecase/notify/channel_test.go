package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"brickwatch/internal/infra/notifier"
)

func TestDiscordChannel(t *testing.T) {
	t.Run("disabled channel rejects sends", func(t *testing.T) {
		ch := NewDiscordChannel(notifier.DiscordConfig{Enabled: false})

		if ch.IsEnabled() {
			t.Error("expected channel to be disabled")
		}
		err := ch.Send(context.Background(), &notifier.Alert{Title: "x"})
		if !errors.Is(err, ErrChannelDisabled) {
			t.Errorf("expected ErrChannelDisabled, got %v", err)
		}
	})

	t.Run("rejects invalid alerts before any network call", func(t *testing.T) {
		// bogus webhook URL: validation must fail first
		ch := NewDiscordChannel(notifier.DiscordConfig{
			Enabled:    true,
			WebhookURL: "https://discord.example/api/webhooks/1/x",
			Timeout:    time.Second,
		})

		if err := ch.Send(context.Background(), nil); !errors.Is(err, ErrInvalidAlert) {
			t.Errorf("expected ErrInvalidAlert for nil alert, got %v", err)
		}
		if err := ch.Send(context.Background(), &notifier.Alert{}); !errors.Is(err, ErrInvalidAlert) {
			t.Errorf("expected ErrInvalidAlert for empty title, got %v", err)
		}
	})

	t.Run("name is stable", func(t *testing.T) {
		ch := NewDiscordChannel(notifier.DiscordConfig{})
		if ch.Name() != "discord" {
			t.Errorf("unexpected name %q", ch.Name())
		}
	})
}

func TestSlackChannel(t *testing.T) {
	t.Run("disabled channel rejects sends", func(t *testing.T) {
		ch := NewSlackChannel(notifier.SlackConfig{Enabled: false})

		if ch.IsEnabled() {
			t.Error("expected channel to be disabled")
		}
		err := ch.Send(context.Background(), &notifier.Alert{Title: "x"})
		if !errors.Is(err, ErrChannelDisabled) {
			t.Errorf("expected ErrChannelDisabled, got %v", err)
		}
	})

	t.Run("rejects invalid alerts before any network call", func(t *testing.T) {
		ch := NewSlackChannel(notifier.SlackConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.example/services/T/B/x",
			Timeout:    time.Second,
		})

		if err := ch.Send(context.Background(), nil); !errors.Is(err, ErrInvalidAlert) {
			t.Errorf("expected ErrInvalidAlert for nil alert, got %v", err)
		}
	})

	t.Run("name is stable", func(t *testing.T) {
		ch := NewSlackChannel(notifier.SlackConfig{})
		if ch.Name() != "slack" {
			t.Errorf("unexpected name %q", ch.Name())
		}
	})
}

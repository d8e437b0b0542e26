package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiscordConfig contains configuration for Discord webhook alerts.
type DiscordConfig struct {
	// Enabled indicates whether Discord alerts are enabled
	Enabled bool

	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Discord API calls
	Timeout time.Duration
}

// DiscordNotifier sends pipeline alerts to Discord via webhook.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewDiscordNotifier creates a DiscordNotifier with the given configuration.
// The rate limiter is set to 0.5 requests/second with a burst of 3
// (Discord webhook limit: 30 requests per minute).
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(0.5, 3),
	}
}

// DiscordWebhookPayload represents the JSON payload sent to a Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents a Discord embed message.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter represents the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordErrorResponse represents the error response from the Discord API.
type DiscordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // in seconds
}

const (
	// Discord limits
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."

	// Embed colors per severity
	discordGreenColor = 3066993  // #2ECC71
	discordAmberColor = 16763904 // #FFC300
	discordRedColor   = 15548997 // #ED4245
)

func discordColor(severity Severity) int {
	switch severity {
	case SeverityCritical:
		return discordRedColor
	case SeverityWarning:
		return discordAmberColor
	default:
		return discordGreenColor
	}
}

// buildEmbedPayload renders an alert as a single Discord embed: title,
// body plus field lines as the description, color by severity, the raising
// component in the footer.
func (d *DiscordNotifier) buildEmbedPayload(alert *Alert) DiscordWebhookPayload {
	title := alert.Title
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	var sb strings.Builder
	sb.WriteString(alert.Body)
	for _, key := range sortedFieldKeys(alert.Fields) {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "**%s:** %s", key, alert.Fields[key])
	}
	description := truncateText(sb.String(), maxDescriptionLength, truncationSuffix)

	embed := DiscordEmbed{
		Title:       title,
		Description: description,
		Color:       discordColor(alert.Severity),
		Footer: DiscordEmbedFooter{
			Text: "brickwatch • " + alert.Source,
		},
		Timestamp: alert.Timestamp().Format(time.RFC3339),
	}

	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{embed},
	}
}

// sendWebhookRequest sends a Discord webhook request for the given alert.
//
// Error types:
//   - 429: rate limit error (retryable, carries retry_after duration)
//   - 4xx (non-429): client error (non-retryable)
//   - 5xx: server error (retryable)
//   - network error: connection/timeout error (retryable)
func (d *DiscordNotifier) sendWebhookRequest(ctx context.Context, alert *Alert) error {
	payload := d.buildEmbedPayload(alert)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := extractRetryAfter(resp, body)
		return &RateLimitError{
			Message:    "Discord rate limit exceeded",
			RetryAfter: retryAfter,
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Discord API client error: %s", string(body)),
		}
	}

	if resp.StatusCode >= 500 {
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Discord API server error: %s", string(body)),
		}
	}

	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// extractRetryAfter extracts the retry_after duration from a Discord error
// response. It tries the JSON body first, then the Retry-After header, then
// defaults to 5s.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr DiscordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}

	if retryAfterHeader := resp.Header.Get("Retry-After"); retryAfterHeader != "" {
		if seconds, err := strconv.Atoi(retryAfterHeader); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 5 * time.Second
}

// sendWebhookRequestWithRetry sends a Discord webhook request with retry logic.
//
// Retry strategy:
//   - Max attempts: 2
//   - 429 errors: sleep for retry_after from the Discord response
//   - Server errors (5xx): exponential backoff (5s, 10s)
//   - Client errors (4xx): no retry, fail immediately
func (d *DiscordNotifier) sendWebhookRequestWithRetry(ctx context.Context, alert *Alert) error {
	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.sendWebhookRequest(ctx, alert)

		if err == nil {
			slog.Info("Discord alert delivered",
				slog.String("request_id", requestID),
				slog.String("title", alert.Title),
				slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("Discord rate limit hit, backing off",
				slog.String("request_id", requestID),
				slog.String("title", alert.Title),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))

			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			slog.Error("Discord alert failed with non-retryable error",
				slog.String("request_id", requestID),
				slog.String("title", alert.Title),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			slog.Warn("Discord API request failed, retrying",
				slog.String("request_id", requestID),
				slog.String("title", alert.Title),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error("Discord alert failed after all retries",
		slog.String("request_id", requestID),
		slog.String("title", alert.Title),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", maxAttempts))

	return fmt.Errorf("discord alert failed after %d attempts: %w", maxAttempts, lastErr)
}

// NotifyAlert sends a pipeline alert to Discord. It generates a request_id
// for tracing, applies rate limiting, then sends with retries.
func (d *DiscordNotifier) NotifyAlert(ctx context.Context, alert *Alert) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("sending Discord alert",
		slog.String("request_id", requestID),
		slog.String("title", alert.Title),
		slog.String("severity", string(alert.Severity)),
		slog.String("source", alert.Source))

	if err := d.rateLimiter.Allow(ctx); err != nil {
		slog.Error("rate limiter error",
			slog.String("request_id", requestID),
			slog.String("title", alert.Title),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return d.sendWebhookRequestWithRetry(ctx, alert)
}

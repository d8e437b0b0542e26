package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SlackConfig contains configuration for Slack webhook alerts.
type SlackConfig struct {
	// Enabled indicates whether Slack alerts are enabled
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration
}

// SlackNotifier sends pipeline alerts to Slack via Incoming Webhook.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewSlackNotifier creates a SlackNotifier with the given configuration.
// The rate limiter is set to 1 request/second with a burst of 1
// (Slack webhook limit: 1 message per second).
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

// SlackWebhookPayload represents the JSON payload sent to a Slack webhook
// using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "section", "context", "divider"
	Text     *SlackTextObject  `json:"text,omitempty"`     // text content (for section)
	Elements []SlackTextObject `json:"elements,omitempty"` // elements (for context)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

const (
	// Slack Block Kit limits
	maxSectionTextLength = 3000
	maxFallbackLength    = 150

	slackTruncationSuffix = "..."
)

func slackSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityWarning:
		return ":large_yellow_circle:"
	default:
		return ":large_green_circle:"
	}
}

// buildBlockKitPayload renders an alert as a section block (bold title,
// body, field lines) plus a context block (source and timestamp).
func (s *SlackNotifier) buildBlockKitPayload(alert *Alert) SlackWebhookPayload {
	fallbackText := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	if len(fallbackText) > maxFallbackLength {
		fallbackText = fallbackText[:maxFallbackLength-len(slackTruncationSuffix)] + slackTruncationSuffix
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s*", slackSeverityEmoji(alert.Severity), alert.Title)
	if alert.Body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(alert.Body)
	}
	for _, key := range sortedFieldKeys(alert.Fields) {
		fmt.Fprintf(&sb, "\n*%s:* %s", key, alert.Fields[key])
	}
	sectionText := truncateText(sb.String(), maxSectionTextLength, slackTruncationSuffix)

	contextText := fmt.Sprintf("brickwatch %s • %s", alert.Source, alert.Timestamp().Format(time.RFC3339))

	sectionBlock := SlackBlock{
		Type: "section",
		Text: &SlackTextObject{
			Type: "mrkdwn",
			Text: sectionText,
		},
	}

	contextBlock := SlackBlock{
		Type: "context",
		Elements: []SlackTextObject{
			{
				Type: "mrkdwn",
				Text: contextText,
			},
		},
	}

	return SlackWebhookPayload{
		Text:   fallbackText,
		Blocks: []SlackBlock{sectionBlock, contextBlock},
	}
}

// sendWebhookRequest sends a Slack webhook request for the given alert.
//
// Error types:
//   - 429: rate limit error (retryable, carries retry_after duration)
//   - 4xx (non-429): client error (non-retryable)
//   - 5xx: server error (retryable)
//   - network error: connection/timeout error (retryable)
func (s *SlackNotifier) sendWebhookRequest(ctx context.Context, alert *Alert) error {
	payload := s.buildBlockKitPayload(alert)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	// Slack returns "ok" as plain text on success
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := extractRetryAfter(resp, body)
		return &RateLimitError{
			Message:    "Slack rate limit exceeded",
			RetryAfter: retryAfter,
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Slack API client error: %s", string(body)),
		}
	}

	if resp.StatusCode >= 500 {
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Slack API server error: %s", string(body)),
		}
	}

	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// sendWebhookRequestWithRetry sends a Slack webhook request with retry logic.
//
// Retry strategy:
//   - Max attempts: 2
//   - 429 errors: sleep for retry_after from the response (or Retry-After header)
//   - Server errors (5xx): exponential backoff (5s, 10s)
//   - Client errors (4xx): no retry, fail immediately
func (s *SlackNotifier) sendWebhookRequestWithRetry(ctx context.Context, alert *Alert) error {
	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.sendWebhookRequest(ctx, alert)

		if err == nil {
			slog.Info("Slack alert delivered",
				slog.String("request_id", requestID),
				slog.String("title", alert.Title),
				slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("Slack rate limit hit, backing off",
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
			slog.Error("Slack alert failed with non-retryable error",
				slog.String("request_id", requestID),
				slog.String("title", alert.Title),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			slog.Warn("Slack API request failed, retrying",
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

	slog.Error("Slack alert failed after all retries",
		slog.String("request_id", requestID),
		slog.String("title", alert.Title),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", maxAttempts))

	return fmt.Errorf("slack alert failed after %d attempts: %w", maxAttempts, lastErr)
}

// NotifyAlert sends a pipeline alert to Slack. It generates a request_id
// for tracing, applies rate limiting, then sends with retries.
func (s *SlackNotifier) NotifyAlert(ctx context.Context, alert *Alert) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("sending Slack alert",
		slog.String("request_id", requestID),
		slog.String("title", alert.Title),
		slog.String("severity", string(alert.Severity)),
		slog.String("source", alert.Source))

	if err := s.rateLimiter.Allow(ctx); err != nil {
		slog.Error("rate limiter error",
			slog.String("request_id", requestID),
			slog.String("title", alert.Title),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return s.sendWebhookRequestWithRetry(ctx, alert)
}

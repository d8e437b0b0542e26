package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"brickwatch/internal/infra/notifier"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// Circuit breaker constants
const (
	circuitBreakerThreshold = 5                // consecutive failures before opening
	circuitBreakerTimeout   = 5 * time.Minute  // duration to keep the breaker open
	workerPoolTimeout       = 5 * time.Second  // timeout for acquiring a worker slot
	deliveryTimeout         = 30 * time.Second // timeout for one delivery attempt chain
)

// Service dispatches pipeline alerts to all enabled channels without
// blocking the caller. A breaker trip or sweep failure should never slow
// the pipeline down, so deliveries run in background goroutines and
// failures are logged, not propagated.
type Service interface {
	// NotifyAlert dispatches an alert to all enabled channels. It is
	// non-blocking and always returns nil; delivery failures are handled
	// internally (logged, counted, and fed into per-channel circuit
	// breakers).
	NotifyAlert(ctx context.Context, alert *notifier.Alert) error

	// GetChannelHealth returns the health status of all channels,
	// including circuit breaker state, for health endpoints.
	GetChannelHealth() []ChannelHealthStatus

	// Shutdown gracefully stops the service, waiting for in-flight
	// deliveries to complete or the context to expire.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus represents the health status of one delivery channel.
type ChannelHealthStatus struct {
	Name               string     // channel name ("discord", "slack")
	Enabled            bool       // whether the channel is enabled
	CircuitBreakerOpen bool       // whether the circuit breaker is currently open
	DisabledUntil      *time.Time // when the breaker closes again (nil if closed)
}

// service is the concrete implementation of the Service interface.
type service struct {
	channels       []Channel                 // delivery channels
	workerPool     chan struct{}             // semaphore bounding concurrent deliveries
	channelHealth  map[string]*channelHealth // circuit breaker state per channel
	healthMu       sync.RWMutex              // protects channelHealth map
	wg             sync.WaitGroup            // tracks in-flight deliveries
	shutdownCtx    context.Context           // canceled on Shutdown
	shutdownCancel context.CancelFunc
}

// channelHealth tracks circuit breaker state for a channel
type channelHealth struct {
	consecutiveFailures int
	disabledUntil       time.Time
	mu                  sync.Mutex
}

// NewService creates an alert dispatch service over the given channels.
// maxConcurrent bounds the number of in-flight deliveries across all
// channels (recommended: 10-20).
func NewService(channels []Channel, maxConcurrent int) Service {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:       channels,
		workerPool:     make(chan struct{}, maxConcurrent),
		channelHealth:  make(map[string]*channelHealth),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	for _, ch := range channels {
		svc.channelHealth[ch.Name()] = &channelHealth{}
	}

	return svc
}

// NotifyAlert implements Service.NotifyAlert.
func (s *service) NotifyAlert(ctx context.Context, alert *notifier.Alert) error {
	// Validate before spawning goroutines
	if alert == nil || alert.Title == "" {
		slog.Warn("invalid alert input",
			slog.Bool("nil_alert", alert == nil))
		return nil
	}

	// Inherit request_id from the caller when present
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		requestID = uuid.New().String()
	}

	enabledCount := 0
	for _, ch := range s.channels {
		if ch.IsEnabled() {
			enabledCount++
		}
	}
	SetChannelsEnabled(float64(enabledCount))

	if enabledCount == 0 {
		slog.Debug("no alert channels enabled",
			slog.String("request_id", requestID),
			slog.String("title", alert.Title))
		return nil
	}

	slog.Info("dispatching alert",
		slog.String("request_id", requestID),
		slog.String("title", alert.Title),
		slog.String("severity", string(alert.Severity)),
		slog.String("source", alert.Source),
		slog.Int("enabled_channels", enabledCount))

	for _, ch := range s.channels {
		if ch.IsEnabled() {
			channel := ch
			s.wg.Add(1)
			go s.notifyChannel(requestID, channel, alert)
		}
	}

	return nil
}

// notifyChannel delivers one alert to one channel in a goroutine.
func (s *service) notifyChannel(requestID string, channel Channel, alert *notifier.Alert) {
	defer s.wg.Done()

	IncrementActiveGoroutines()
	defer DecrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in alert channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	// Acquire worker slot (with timeout to prevent blocking)
	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(workerPoolTimeout):
		slog.Warn("alert dropped: worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "pool_full")
		return
	}

	// Check circuit breaker
	health := s.getChannelHealth(channel.Name())
	health.mu.Lock()
	if time.Now().Before(health.disabledUntil) {
		slog.Warn("channel temporarily disabled by circuit breaker",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Time("disabled_until", health.disabledUntil))
		health.mu.Unlock()
		RecordDropped(channel.Name(), "circuit_open")
		return
	}
	health.mu.Unlock()

	// Shutdown context so in-flight deliveries stop on Shutdown
	ctx, cancel := context.WithTimeout(s.shutdownCtx, deliveryTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	startTime := time.Now()
	RecordDispatch(channel.Name())

	err := channel.Send(ctx, alert)
	duration := time.Since(startTime)

	// Update circuit breaker state
	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= circuitBreakerThreshold {
			health.disabledUntil = time.Now().Add(circuitBreakerTimeout)
			slog.Error("circuit breaker opened for channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Int("consecutive_failures", health.consecutiveFailures))
			RecordCircuitBreakerOpen(channel.Name())
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	if err != nil {
		RecordFailure(channel.Name(), duration)
		slog.Warn("alert delivery failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.String("title", alert.Title),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
	} else {
		RecordSuccess(channel.Name(), duration)
		slog.Info("alert delivered",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.String("title", alert.Title),
			slog.Duration("send_duration", duration))
	}
}

// getChannelHealth returns circuit breaker state for a channel
func (s *service) getChannelHealth(channelName string) *channelHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.channelHealth[channelName]
}

// GetChannelHealth implements Service.GetChannelHealth.
func (s *service) GetChannelHealth() []ChannelHealthStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	statuses := make([]ChannelHealthStatus, 0, len(s.channels))

	for _, ch := range s.channels {
		health := s.channelHealth[ch.Name()]

		health.mu.Lock()
		var disabledUntil *time.Time
		circuitBreakerOpen := false
		if time.Now().Before(health.disabledUntil) {
			circuitBreakerOpen = true
			until := health.disabledUntil
			disabledUntil = &until
		}
		health.mu.Unlock()

		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: circuitBreakerOpen,
			DisabledUntil:      disabledUntil,
		})
	}

	return statuses
}

// Shutdown implements Service.Shutdown.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("shutting down alert service")

	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("alert service shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("alert service shutdown timeout")
		return ctx.Err()
	}
}

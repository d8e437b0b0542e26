package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"brickwatch/internal/observability/metrics"
)

// ErrCircuitOpen is returned by the scrape path when the breaker for a
// source is open. It is not retryable; the job fails immediately and the
// scheduler re-enqueues the item on its normal cadence.
var ErrCircuitOpen = errors.New("circuitbreaker: circuit open")

// Breaker states as stored in Redis.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// SourceConfig holds the configuration for the shared per-source breaker.
type SourceConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before allowing a probe.
	Cooldown time.Duration

	// KeyPrefix namespaces the breaker keys. Default: "bw:breaker:"
	KeyPrefix string
}

// DefaultSourceConfig returns the production defaults:
// open after 5 consecutive failed scrapes, probe again after 5 minutes.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		FailureThreshold: 5,
		Cooldown:         5 * time.Minute,
		KeyPrefix:        "bw:breaker:",
	}
}

// SourceState is a snapshot of one source's breaker for status endpoints.
type SourceState struct {
	State         string
	FailureCount  int
	LastFailureAt time.Time
}

// SourceBreaker is a circuit breaker whose state lives in a Redis hash per
// source. Every worker process sharing the Redis observes the same state,
// so five failures spread across three workers still open the circuit.
//
// Transitions:
//   - closed: failures increment a counter; reaching the threshold opens
//     the circuit
//   - open: scrapes are refused until the cooldown since the last failure
//     has elapsed, at which point the circuit moves to half-open
//   - half-open: the next outcome decides; success closes the circuit and
//     resets the counter, failure reopens it for a full cooldown
//
// All transitions run as Lua scripts so concurrent processes cannot observe
// or write partial state.
type SourceBreaker struct {
	client *redis.Client
	config SourceConfig
	onOpen func(source string, failureCount int64)
}

// isOpenScript reports whether the circuit blocks requests, performing the
// open -> half-open transition when the cooldown has elapsed.
//
// KEYS[1] = breaker hash
// ARGV[1] = cooldown ms
// Returns 1 when the circuit is open, 0 otherwise.
var isOpenScript = redis.NewScript(`
local t = redis.call('TIME')
local now = t[1] * 1000 + math.floor(t[2] / 1000)
local state = redis.call('HGET', KEYS[1], 'state')
if not state or state == 'closed' or state == 'half_open' then
  return 0
end
local lastFailure = tonumber(redis.call('HGET', KEYS[1], 'last_failure_at')) or 0
if now - lastFailure >= tonumber(ARGV[1]) then
  redis.call('HSET', KEYS[1], 'state', 'half_open')
  return 0
end
return 1
`)

// recordFailureScript increments the failure counter and opens the circuit
// when the threshold is reached or a half-open probe fails.
//
// KEYS[1] = breaker hash
// ARGV[1] = failure threshold
// Returns {count, opened} where opened is 1 when this call opened the circuit.
var recordFailureScript = redis.NewScript(`
local t = redis.call('TIME')
local now = t[1] * 1000 + math.floor(t[2] / 1000)
local state = redis.call('HGET', KEYS[1], 'state')
local count = redis.call('HINCRBY', KEYS[1], 'failure_count', 1)
redis.call('HSET', KEYS[1], 'last_failure_at', now)
if state == 'half_open' then
  redis.call('HSET', KEYS[1], 'state', 'open')
  return {count, 1}
end
if state ~= 'open' and count >= tonumber(ARGV[1]) then
  redis.call('HSET', KEYS[1], 'state', 'open')
  return {count, 1}
end
if not state then
  redis.call('HSET', KEYS[1], 'state', 'closed')
end
return {count, 0}
`)

// recordSuccessScript resets the failure counter and closes the circuit.
//
// KEYS[1] = breaker hash
// Returns 1 when the call closed a non-closed circuit.
var recordSuccessScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
redis.call('HSET', KEYS[1], 'state', 'closed', 'failure_count', 0)
if state and state ~= 'closed' then
  return 1
end
return 0
`)

// NewSourceBreaker creates a Redis-shared breaker.
func NewSourceBreaker(client *redis.Client, config SourceConfig) *SourceBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Minute
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "bw:breaker:"
	}
	return &SourceBreaker{
		client: client,
		config: config,
	}
}

// OnOpen registers a callback invoked whenever a circuit opens, e.g. to
// raise an operator alert. The callback runs on the caller's goroutine and
// must not block. Set it before the breaker is shared across goroutines.
func (b *SourceBreaker) OnOpen(fn func(source string, failureCount int64)) {
	b.onOpen = fn
}

// IsOpen reports whether scrapes for source are currently refused.
// When the cooldown has elapsed it moves the circuit to half-open and
// returns false so the caller can run the probe scrape.
func (b *SourceBreaker) IsOpen(ctx context.Context, source string) (bool, error) {
	open, err := isOpenScript.Run(ctx, b.client,
		[]string{b.key(source)},
		b.config.Cooldown.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("IsOpen: %w", err)
	}
	return open == 1, nil
}

// RecordFailure counts one failed scrape against source.
// Call this once per exhausted job, not once per attempt, so a single item
// retrying three times cannot open the circuit on its own.
func (b *SourceBreaker) RecordFailure(ctx context.Context, source string) error {
	res, err := recordFailureScript.Run(ctx, b.client,
		[]string{b.key(source)},
		b.config.FailureThreshold,
	).Int64Slice()
	if err != nil {
		return fmt.Errorf("RecordFailure: %w", err)
	}

	if len(res) == 2 && res[1] == 1 {
		metrics.RecordCircuitOpened(source)
		slog.Warn("circuit opened for source",
			slog.String("source", source),
			slog.Int64("failure_count", res[0]),
			slog.Duration("cooldown", b.config.Cooldown))
		if b.onOpen != nil {
			b.onOpen(source, res[0])
		}
	}
	return nil
}

// RecordSuccess resets the failure counter and closes the circuit.
// Not-found outcomes count as successes: the target responded, the item
// just does not exist there.
func (b *SourceBreaker) RecordSuccess(ctx context.Context, source string) error {
	closed, err := recordSuccessScript.Run(ctx, b.client, []string{b.key(source)}).Int64()
	if err != nil {
		return fmt.Errorf("RecordSuccess: %w", err)
	}

	if closed == 1 {
		slog.Info("circuit closed for source", slog.String("source", source))
	}
	return nil
}

// State returns a snapshot of the breaker for source.
func (b *SourceBreaker) State(ctx context.Context, source string) (SourceState, error) {
	fields, err := b.client.HGetAll(ctx, b.key(source)).Result()
	if err != nil {
		return SourceState{}, fmt.Errorf("State: %w", err)
	}

	state := SourceState{State: StateClosed}
	if s, ok := fields["state"]; ok && s != "" {
		state.State = s
	}
	if c, ok := fields["failure_count"]; ok {
		fmt.Sscanf(c, "%d", &state.FailureCount)
	}
	if ms, ok := fields["last_failure_at"]; ok {
		var unixMs int64
		fmt.Sscanf(ms, "%d", &unixMs)
		if unixMs > 0 {
			state.LastFailureAt = time.UnixMilli(unixMs).UTC()
		}
	}
	return state, nil
}

// Reset forces the breaker for source back to closed. Used by the queue
// reset endpoint so an operator can clear a stuck circuit.
func (b *SourceBreaker) Reset(ctx context.Context, source string) error {
	if err := b.client.Del(ctx, b.key(source)).Err(); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}

func (b *SourceBreaker) key(source string) string {
	return b.config.KeyPrefix + source
}

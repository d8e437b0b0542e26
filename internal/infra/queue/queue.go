package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"brickwatch/internal/observability/metrics"
)

// ErrJobGone is returned by Ack and Fail when the queue no longer knows the
// job id, which happens when an obliterate ran while the job was executing.
// Callers treat it as a silent no-op.
var ErrJobGone = errors.New("queue: job no longer exists")

// Config holds queue tuning. Zero values fall back to production defaults.
type Config struct {
	// KeyPrefix namespaces every queue key. Default "bw:q:".
	KeyPrefix string

	// MaxAttempts is the default per-job attempt budget.
	MaxAttempts int

	// BackoffBase seeds the exponential re-queue delay after a failure:
	// base * 2^(attemptsMade-1), capped at BackoffCap, plus jitter.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// CompletedRetention and FailedRetention bound how many terminal jobs
	// are kept for diagnostics.
	CompletedRetention int
	FailedRetention    int

	// HeartbeatTTL is how long a worker heartbeat key lives without renewal.
	HeartbeatTTL time.Duration
}

// DefaultConfig returns the production queue configuration.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:          "bw:q:",
		MaxAttempts:        3,
		BackoffBase:        2 * time.Second,
		BackoffCap:         60 * time.Second,
		CompletedRetention: 1000,
		FailedRetention:    1000,
		HeartbeatTTL:       15 * time.Second,
	}
}

// Queue is a durable priority job queue on Redis. All state transitions run
// as Lua scripts, so independent worker processes share one consistent view.
//
// The waiting set is a ZSET whose score packs (priority, queuedAt): strict
// priority across bands, FIFO within one. A delayed job keeps its original
// queuedAt, so a retried job does not lose its place in line when promoted.
type Queue struct {
	client *redis.Client
	config Config
}

// NewQueue creates a queue over the given Redis client.
func NewQueue(client *redis.Client, config Config) *Queue {
	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = defaults.BackoffCap
	}
	if config.CompletedRetention <= 0 {
		config.CompletedRetention = defaults.CompletedRetention
	}
	if config.FailedRetention <= 0 {
		config.FailedRetention = defaults.FailedRetention
	}
	if config.HeartbeatTTL <= 0 {
		config.HeartbeatTTL = defaults.HeartbeatTTL
	}
	return &Queue{client: client, config: config}
}

func (q *Queue) key(name string) string        { return q.config.KeyPrefix + name }
func (q *Queue) jobKey(id string) string       { return q.config.KeyPrefix + "job:" + id }
func (q *Queue) jobKeyPrefix() string          { return q.config.KeyPrefix + "job:" }
func (q *Queue) heartbeatPrefix() string       { return q.config.KeyPrefix + "hb:" }
func (q *Queue) heartbeatKey(id string) string { return q.heartbeatPrefix() + id }

// enqueueScript creates a job unless an identical (name, identifier) job is
// already pending.
//
// KEYS[1]=seq KEYS[2]=waiting KEYS[3]=delayed KEYS[4]=dedup
// ARGV[1]=name ARGV[2]=dataJSON ARGV[3]=priority ARGV[4]=maxAttempts
// ARGV[5]=nowMs ARGV[6]=delayMs ARGV[7]=dedupMember ARGV[8]=jobKeyPrefix
// Returns {0, ''} when de-duplicated, {1, id} when enqueued.
var enqueueScript = redis.NewScript(`
if ARGV[7] ~= '' and redis.call('SISMEMBER', KEYS[4], ARGV[7]) == 1 then
  return {0, ''}
end
local id = tostring(redis.call('INCR', KEYS[1]))
local jobKey = ARGV[8] .. id
local now = tonumber(ARGV[5])
local delay = tonumber(ARGV[6])
redis.call('HSET', jobKey,
  'name', ARGV[1], 'data', ARGV[2], 'priority', ARGV[3],
  'max_attempts', ARGV[4], 'attempts_made', 0, 'queued_at', ARGV[5])
if ARGV[7] ~= '' then
  redis.call('HSET', jobKey, 'dedup_key', ARGV[7])
  redis.call('SADD', KEYS[4], ARGV[7])
end
if delay > 0 then
  redis.call('HSET', jobKey, 'state', 'delayed', 'delayed_until', now + delay)
  redis.call('ZADD', KEYS[3], now + delay, id)
else
  redis.call('HSET', jobKey, 'state', 'waiting')
  redis.call('ZADD', KEYS[2], tonumber(ARGV[3]) * 1e13 + now, id)
end
return {1, id}
`)

// Enqueue adds a job. Returns the job id and whether the job was actually
// added; deduped == true means an identical job was already pending and
// nothing changed.
func (q *Queue) Enqueue(ctx context.Context, opts EnqueueOptions) (jobID string, deduped bool, err error) {
	if opts.Priority == 0 {
		opts.Priority = PriorityNormal
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.config.MaxAttempts
	}

	dedupMember := ""
	if id := opts.Data.Identifier(); id != "" {
		dedupMember = opts.Name + "|" + id
	}

	res, err := enqueueScript.Run(ctx, q.client,
		[]string{q.key("seq"), q.key("waiting"), q.key("delayed"), q.key("dedup")},
		opts.Name, opts.Data.marshal(), int(opts.Priority), maxAttempts,
		time.Now().UnixMilli(), opts.Delay.Milliseconds(), dedupMember, q.jobKeyPrefix(),
	).Slice()
	if err != nil {
		return "", false, fmt.Errorf("Enqueue: %w", err)
	}

	added, _ := res[0].(int64)
	if added == 0 {
		metrics.RecordJobDeduplicated(opts.Name)
		return "", true, nil
	}
	id, _ := res[1].(string)
	metrics.RecordJobEnqueued(opts.Name, int(opts.Priority))
	return id, false, nil
}

// claimScript atomically moves the best waiting job to active.
//
// KEYS[1]=waiting KEYS[2]=active
// ARGV[1]=nowMs ARGV[2]=jobKeyPrefix
// Returns the claimed id or ''.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
  return ''
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local jobKey = ARGV[2] .. id
redis.call('HSET', jobKey, 'state', 'active', 'processed_on', ARGV[1])
redis.call('HINCRBY', jobKey, 'attempts_made', 1)
redis.call('ZADD', KEYS[2], tonumber(ARGV[1]), id)
return id
`)

// Claim moves the highest-priority, oldest waiting job to active and returns
// it. Returns (nil, nil) when the queue has no waiting job. Safe under any
// number of concurrent consumers.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	id, err := claimScript.Run(ctx, q.client,
		[]string{q.key("waiting"), q.key("active")},
		time.Now().UnixMilli(), q.jobKeyPrefix(),
	).Text()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	job, err := q.getJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}
	return job, nil
}

// promoteScript moves due delayed jobs back to waiting, keeping their
// original queued_at so they rejoin their band in FIFO position.
//
// KEYS[1]=delayed KEYS[2]=waiting
// ARGV[1]=nowMs ARGV[2]=jobKeyPrefix
// Returns the number promoted.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  local jobKey = ARGV[2] .. id
  local priority = tonumber(redis.call('HGET', jobKey, 'priority')) or 3
  local queuedAt = tonumber(redis.call('HGET', jobKey, 'queued_at')) or tonumber(ARGV[1])
  redis.call('HSET', jobKey, 'state', 'waiting')
  redis.call('HDEL', jobKey, 'delayed_until')
  redis.call('ZADD', KEYS[2], priority * 1e13 + queuedAt, id)
end
return #due
`)

// PromoteDelayed moves every delayed job whose delay has elapsed back to
// waiting. Run periodically by the worker pool.
func (q *Queue) PromoteDelayed(ctx context.Context) (int64, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.key("delayed"), q.key("waiting")},
		time.Now().UnixMilli(), q.jobKeyPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("PromoteDelayed: %w", err)
	}
	return n, nil
}

// ackScript completes a job and trims the retention window, deleting the
// hashes of jobs that fall out of it.
//
// KEYS[1]=active KEYS[2]=completed KEYS[3]=dedup
// ARGV[1]=id ARGV[2]=nowMs ARGV[3]=result ARGV[4]=retention ARGV[5]=jobKeyPrefix
// Returns 1, or 0 when the job is gone.
var ackScript = redis.NewScript(`
local jobKey = ARGV[5] .. ARGV[1]
if redis.call('EXISTS', jobKey) == 0 then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', jobKey, 'state', 'completed', 'finished_on', ARGV[2], 'returnvalue', ARGV[3])
local dedupKey = redis.call('HGET', jobKey, 'dedup_key')
if dedupKey then
  redis.call('SREM', KEYS[3], dedupKey)
end
redis.call('LPUSH', KEYS[2], ARGV[1])
local retention = tonumber(ARGV[4])
local evicted = redis.call('LRANGE', KEYS[2], retention, -1)
for _, old in ipairs(evicted) do
  redis.call('DEL', ARGV[5] .. old)
end
redis.call('LTRIM', KEYS[2], 0, retention - 1)
return 1
`)

// Ack moves an active job to completed. After an obliterate the job id is
// unknown and Ack returns ErrJobGone, which callers ignore.
func (q *Queue) Ack(ctx context.Context, jobID, result string) error {
	ok, err := ackScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("completed"), q.key("dedup")},
		jobID, time.Now().UnixMilli(), result, q.config.CompletedRetention, q.jobKeyPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("Ack: %w", err)
	}
	if ok == 0 {
		return ErrJobGone
	}
	return nil
}

// failScript re-queues a failed job with a delay while attempts remain,
// otherwise moves it to the failed retention list.
//
// KEYS[1]=active KEYS[2]=delayed KEYS[3]=failed KEYS[4]=dedup
// ARGV[1]=id ARGV[2]=nowMs ARGV[3]=reason ARGV[4]=delayMs ARGV[5]=retention ARGV[6]=jobKeyPrefix ARGV[7]=terminal
// Returns 0 gone, 1 re-queued, 2 terminal.
var failScript = redis.NewScript(`
local jobKey = ARGV[6] .. ARGV[1]
if redis.call('EXISTS', jobKey) == 0 then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', jobKey, 'failed_reason', ARGV[3])
local attempts = tonumber(redis.call('HGET', jobKey, 'attempts_made')) or 0
local max = tonumber(redis.call('HGET', jobKey, 'max_attempts')) or 1
if ARGV[7] == '0' and attempts < max then
  local until_ms = tonumber(ARGV[2]) + tonumber(ARGV[4])
  redis.call('HSET', jobKey, 'state', 'delayed', 'delayed_until', until_ms)
  redis.call('ZADD', KEYS[2], until_ms, ARGV[1])
  return 1
end
redis.call('HSET', jobKey, 'state', 'failed', 'finished_on', ARGV[2])
local dedupKey = redis.call('HGET', jobKey, 'dedup_key')
if dedupKey then
  redis.call('SREM', KEYS[4], dedupKey)
end
redis.call('LPUSH', KEYS[3], ARGV[1])
local retention = tonumber(ARGV[5])
local evicted = redis.call('LRANGE', KEYS[3], retention, -1)
for _, old in ipairs(evicted) do
  redis.call('DEL', ARGV[6] .. old)
end
redis.call('LTRIM', KEYS[3], 0, retention - 1)
return 2
`)

// Fail reports that an attempt on an active job failed. While the job has
// attempts left it re-enters the delayed state with exponential backoff;
// after the last attempt it moves to failed. Returns ErrJobGone after an
// obliterate.
func (q *Queue) Fail(ctx context.Context, job *Job, reason string) error {
	return q.fail(ctx, job, reason, false)
}

// FailTerminal moves an active job straight to failed regardless of its
// remaining attempts. Used for outcomes a retry cannot change: an open
// circuit or invalid input.
func (q *Queue) FailTerminal(ctx context.Context, job *Job, reason string) error {
	return q.fail(ctx, job, reason, true)
}

func (q *Queue) fail(ctx context.Context, job *Job, reason string, terminal bool) error {
	delay := q.backoffDelay(job.AttemptsMade)
	terminalFlag := "0"
	if terminal {
		terminalFlag = "1"
	}
	outcome, err := failScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("delayed"), q.key("failed"), q.key("dedup")},
		job.ID, time.Now().UnixMilli(), reason, delay.Milliseconds(),
		q.config.FailedRetention, q.jobKeyPrefix(), terminalFlag,
	).Int64()
	if err != nil {
		return fmt.Errorf("Fail: %w", err)
	}
	switch outcome {
	case 0:
		return ErrJobGone
	case 1:
		slog.Debug("job re-queued with backoff",
			slog.String("job_id", job.ID),
			slog.String("name", job.Name),
			slog.Int("attempts_made", job.AttemptsMade),
			slog.Duration("delay", delay))
	case 2:
		slog.Warn("job failed terminally",
			slog.String("job_id", job.ID),
			slog.String("name", job.Name),
			slog.String("reason", reason))
	}
	return nil
}

func (q *Queue) backoffDelay(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	delay := time.Duration(float64(q.config.BackoffBase) * math.Pow(2, float64(attemptsMade-1)))
	if delay > q.config.BackoffCap {
		delay = q.config.BackoffCap
	}
	// up to 10% jitter so retries from one incident spread out
	return delay + rand.N(delay/10+1)
}

// Obliterate removes every queue key: jobs in all states, the dedup set, the
// sequence counter. Jobs already executing keep running; their eventual
// Ack/Fail observes a missing hash and becomes a no-op. Worker heartbeats
// survive so the status endpoint still sees live consumers.
func (q *Queue) Obliterate(ctx context.Context) (int64, error) {
	var removed int64

	counts, err := q.Counts(ctx)
	if err == nil {
		removed = counts.Waiting + counts.Active + counts.Delayed + counts.Completed + counts.Failed
	}

	var cursor uint64
	pattern := q.config.KeyPrefix + "*"
	hbPrefix := q.heartbeatPrefix()
	for {
		keys, next, err := q.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return 0, fmt.Errorf("Obliterate: %w", err)
		}
		var doomed []string
		for _, k := range keys {
			if len(k) >= len(hbPrefix) && k[:len(hbPrefix)] == hbPrefix {
				continue
			}
			doomed = append(doomed, k)
		}
		if len(doomed) > 0 {
			if err := q.client.Del(ctx, doomed...).Err(); err != nil {
				return 0, fmt.Errorf("Obliterate: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	slog.Info("queue obliterated", slog.Int64("jobs_removed", removed))
	return removed, nil
}

// Counts returns the per-state census and refreshes the depth gauges.
func (q *Queue) Counts(ctx context.Context) (*Counts, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("waiting"))
	active := pipe.ZCard(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	completed := pipe.LLen(ctx, q.key("completed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("Counts: %w", err)
	}

	counts := &Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	metrics.UpdateQueueDepth("scrape", counts.Waiting, counts.Delayed, counts.Active)
	return counts, nil
}

// List returns up to limit jobs in the given state, most recent first for
// terminal states and queue order for pending ones.
func (q *Queue) List(ctx context.Context, state State, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}

	var ids []string
	var err error
	switch state {
	case StateWaiting:
		ids, err = q.client.ZRange(ctx, q.key("waiting"), 0, int64(limit-1)).Result()
	case StateActive:
		ids, err = q.client.ZRange(ctx, q.key("active"), 0, int64(limit-1)).Result()
	case StateDelayed:
		ids, err = q.client.ZRange(ctx, q.key("delayed"), 0, int64(limit-1)).Result()
	case StateCompleted:
		ids, err = q.client.LRange(ctx, q.key("completed"), 0, int64(limit-1)).Result()
	case StateFailed:
		ids, err = q.client.LRange(ctx, q.key("failed"), 0, int64(limit-1)).Result()
	default:
		return nil, fmt.Errorf("List: unknown state %q", state)
	}
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.getJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Heartbeat records that a consumer process is alive. Called periodically by
// the worker pool; the key expires on its own when the process dies.
func (q *Queue) Heartbeat(ctx context.Context, workerID string, paused, running bool) error {
	value := "idle"
	if paused {
		value = "paused"
	} else if running {
		value = "running"
	}
	if err := q.client.Set(ctx, q.heartbeatKey(workerID), value, q.config.HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("Heartbeat: %w", err)
	}
	return nil
}

// WorkerStatus aggregates live heartbeats across all consumer processes.
func (q *Queue) WorkerStatus(ctx context.Context) (*WorkerStatus, error) {
	status := &WorkerStatus{}
	var cursor uint64
	allPaused := true
	for {
		keys, next, err := q.client.Scan(ctx, cursor, q.heartbeatPrefix()+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("WorkerStatus: %w", err)
		}
		for _, k := range keys {
			v, err := q.client.Get(ctx, k).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("WorkerStatus: %w", err)
			}
			status.IsAlive = true
			switch v {
			case "running":
				status.IsRunning = true
				allPaused = false
			case "idle":
				allPaused = false
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	status.IsPaused = status.IsAlive && allPaused
	return status, nil
}

// getJob loads one job hash. Returns (nil, nil) when the hash is gone.
func (q *Queue) getJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	job := &Job{
		ID:           id,
		Name:         fields["name"],
		State:        State(fields["state"]),
		FailedReason: fields["failed_reason"],
		ReturnValue:  fields["returnvalue"],
	}
	if data, ok := fields["data"]; ok && data != "" {
		// best effort: a malformed payload still surfaces the job shell
		_ = json.Unmarshal([]byte(data), &job.Data)
	}
	job.Priority = Priority(parseIntField(fields, "priority", int(PriorityNormal)))
	job.AttemptsMade = parseIntField(fields, "attempts_made", 0)
	job.MaxAttempts = parseIntField(fields, "max_attempts", q.config.MaxAttempts)
	job.QueuedAt = parseMsField(fields, "queued_at")
	job.ProcessedOn = parseMsFieldPtr(fields, "processed_on")
	job.FinishedOn = parseMsFieldPtr(fields, "finished_on")
	job.DelayedUntil = parseMsFieldPtr(fields, "delayed_until")
	return job, nil
}

func parseIntField(fields map[string]string, name string, fallback int) int {
	v, ok := fields[name]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseMsField(fields map[string]string, name string) time.Time {
	v, ok := fields[name]
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseMsFieldPtr(fields map[string]string, name string) *time.Time {
	t := parseMsField(fields, name)
	if t.IsZero() {
		return nil
	}
	return &t
}

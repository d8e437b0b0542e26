package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript arbitrates one slot request server-side so the check and the
// grant are a single atomic step across every process sharing the Redis.
//
// KEYS[1] = last-grant key (string, unix ms)
// KEYS[2] = window key (zset, score = grant unix ms)
// ARGV[1] = min interval ms
// ARGV[2] = max grants per window (0 = window check disabled)
// ARGV[3] = window length ms
// ARGV[4] = unique member suffix for the window zset
// ARGV[5] = ttl for the last-grant key in ms
//
// Returns 0 when the slot was claimed, otherwise the number of milliseconds
// until the blocking gate clears. Time comes from the Redis server so worker
// clock skew cannot shrink the gap.
var reserveScript = redis.NewScript(`
local t = redis.call('TIME')
local now = t[1] * 1000 + math.floor(t[2] / 1000)
local minInterval = tonumber(ARGV[1])
local maxPerWindow = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])

if minInterval > 0 then
  local last = tonumber(redis.call('GET', KEYS[1]))
  if last then
    local gap = now - last
    if gap < minInterval then
      return minInterval - gap
    end
  end
end

if maxPerWindow > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', now - windowMs)
  if tonumber(redis.call('ZCARD', KEYS[2])) >= maxPerWindow then
    local oldest = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
    return math.floor(tonumber(oldest[2])) + windowMs - now
  end
  redis.call('ZADD', KEYS[2], now, now .. '-' .. ARGV[4])
  redis.call('PEXPIRE', KEYS[2], windowMs)
end

redis.call('SET', KEYS[1], now, 'PX', tonumber(ARGV[5]))
return 0
`)

// RedisStore is a Store backed by Redis, shared by all worker processes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	// KeyPrefix namespaces all pacing keys. Default: "bw:ratelimit:"
	KeyPrefix string
}

// NewRedisStore creates a Redis-backed pacing store.
func NewRedisStore(client *redis.Client, config RedisStoreConfig) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "bw:ratelimit:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
	}
}

// ReserveSlot runs the reservation script for key under rule.
func (s *RedisStore) ReserveSlot(ctx context.Context, key string, rule Rule) (time.Duration, error) {
	// Keep the last-grant key alive well past the gap it guards.
	ttl := 2 * rule.MinInterval
	if ttl < time.Hour {
		ttl = time.Hour
	}

	waitMs, err := reserveScript.Run(ctx, s.client,
		[]string{s.lastKey(key), s.windowKey(key)},
		rule.MinInterval.Milliseconds(),
		rule.MaxPerWindow,
		rule.Window.Milliseconds(),
		rand.Int64(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("ReserveSlot: %w", err)
	}

	return time.Duration(waitMs) * time.Millisecond, nil
}

func (s *RedisStore) lastKey(key string) string {
	return s.keyPrefix + "last:" + key
}

func (s *RedisStore) windowKey(key string) string {
	return s.keyPrefix + "window:" + key
}

// Package redisconn opens the shared Redis connection used by the queue,
// the per-source circuit breaker and the rate limiter.
package redisconn

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"brickwatch/pkg/config"
)

// Open creates and verifies the Redis client.
// It reads REDIS_URL from environment ("redis://host:port/db") and exits the
// process when the URL is missing or Redis is unreachable, because every
// coordination primitive in the pipeline depends on it.
func Open() *redis.Client {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		log.Fatal("REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}

	opts.PoolSize = config.GetEnvInt("REDIS_POOL_SIZE", 10)
	opts.DialTimeout = config.GetEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	opts.ReadTimeout = config.GetEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	opts.WriteTimeout = config.GetEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)

	client := redis.NewClient(opts)

	slog.Info("redis client configured",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
		slog.Int("pool_size", opts.PoolSize))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}

	slog.Info("redis connection established successfully")
	return client
}

package worker

import (
	"fmt"
	"log/slog"
	"time"

	"brickwatch/internal/pkg/config"
)

// WorkerConfig holds the configuration for the scrape worker process.
// It controls the size of the consumer pool, the polling cadences against
// the job queue, the sweep schedule, and the health endpoint.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have defaults and validation rules so the worker can start
// safely even with invalid or missing configuration (fail-open strategy).
type WorkerConfig struct {
	// Concurrency is the number of consumer goroutines claiming jobs.
	// Range: 1-32
	// Default: 2
	Concurrency int

	// ClaimInterval is how long an idle consumer waits before polling the
	// queue again. Busy consumers claim back-to-back.
	// Range: 100ms-1m
	// Default: 1s
	ClaimInterval time.Duration

	// PromoteInterval is how often delayed jobs are moved back to waiting.
	// Range: 1s-5m
	// Default: 5s
	PromoteInterval time.Duration

	// HeartbeatInterval is how often the process refreshes its worker-status
	// key. Must stay well under the queue's heartbeat TTL or the status
	// endpoint reports the pool dead between beats.
	// Range: 1s-1m
	// Default: 15s
	HeartbeatInterval time.Duration

	// JobTimeout bounds one scrape job end to end, browser startup included.
	// Range: 30s-1h
	// Default: 10 minutes
	JobTimeout time.Duration

	// SweepSchedule is the cron expression for the scheduled sweep that
	// enqueues due items. Format: "minute hour day month weekday".
	// Default: "0 6 * * *" (daily at 06:00)
	SweepSchedule string

	// DetectSchedule is the cron expression for the monthly missing-data
	// recheck.
	// Default: "0 7 1 * *" (first of the month at 07:00)
	DetectSchedule string

	// Timezone is the IANA timezone the cron schedules run in.
	// Default: "UTC"
	Timezone string

	// HealthPort is the port for the health check HTTP server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production defaults: a small
// pool (scraping is rate-limit bound, not CPU bound), second-scale polling,
// a daily sweep, and a monthly missing-data recheck.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:       2,
		ClaimInterval:     time.Second,
		PromoteInterval:   5 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		JobTimeout:        10 * time.Minute,
		SweepSchedule:     "0 6 * * *",
		DetectSchedule:    "0 7 1 * *",
		Timezone:          "UTC",
		HealthPort:        9091,
	}
}

// Validate checks the configuration values. If multiple fields are invalid,
// all errors are collected and returned together.
func (c *WorkerConfig) Validate() error {
	var errors []error

	if err := config.ValidateIntRange(c.Concurrency, 1, 32); err != nil {
		errors = append(errors, fmt.Errorf("concurrency: %w", err))
	}
	if err := config.ValidateDuration(c.ClaimInterval, 100*time.Millisecond, time.Minute); err != nil {
		errors = append(errors, fmt.Errorf("claim interval: %w", err))
	}
	if err := config.ValidateDuration(c.PromoteInterval, time.Second, 5*time.Minute); err != nil {
		errors = append(errors, fmt.Errorf("promote interval: %w", err))
	}
	if err := config.ValidateDuration(c.HeartbeatInterval, time.Second, time.Minute); err != nil {
		errors = append(errors, fmt.Errorf("heartbeat interval: %w", err))
	}
	if err := config.ValidateDuration(c.JobTimeout, 30*time.Second, time.Hour); err != nil {
		errors = append(errors, fmt.Errorf("job timeout: %w", err))
	}
	if err := config.ValidateCronSchedule(c.SweepSchedule); err != nil {
		errors = append(errors, fmt.Errorf("sweep schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.DetectSchedule); err != nil {
		errors = append(errors, fmt.Errorf("detect schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("health port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}
	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to defaults on failure.
//
// Fail-open strategy:
//  1. Start with DefaultConfig() as base
//  2. Load each field from its environment variable
//  3. Validate each loaded value
//  4. If validation fails: keep the default, log a warning, bump metrics
//  5. Never return an error
//
// Environment variables:
//   - WORKER_CONCURRENCY: Integer 1-32 (default: 2)
//   - WORKER_CLAIM_INTERVAL: Duration string (default: "1s")
//   - WORKER_PROMOTE_INTERVAL: Duration string (default: "5s")
//   - WORKER_HEARTBEAT_INTERVAL: Duration string (default: "15s")
//   - JOB_TIMEOUT: Duration string (default: "10m")
//   - SWEEP_SCHEDULE: Cron expression (default: "0 6 * * *")
//   - DETECT_SCHEDULE: Cron expression (default: "0 7 1 * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	warn := func(field string, result config.ConfigLoadResult) {
		if !result.FallbackApplied {
			return
		}
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	result := config.LoadEnvInt("WORKER_CONCURRENCY", cfg.Concurrency, func(v int) error {
		return config.ValidateIntRange(v, 1, 32)
	})
	cfg.Concurrency = result.Value.(int)
	warn("concurrency", result)

	result = config.LoadEnvDuration("WORKER_CLAIM_INTERVAL", cfg.ClaimInterval, func(d time.Duration) error {
		return config.ValidateDuration(d, 100*time.Millisecond, time.Minute)
	})
	cfg.ClaimInterval = result.Value.(time.Duration)
	warn("claim_interval", result)

	result = config.LoadEnvDuration("WORKER_PROMOTE_INTERVAL", cfg.PromoteInterval, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 5*time.Minute)
	})
	cfg.PromoteInterval = result.Value.(time.Duration)
	warn("promote_interval", result)

	result = config.LoadEnvDuration("WORKER_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, time.Minute)
	})
	cfg.HeartbeatInterval = result.Value.(time.Duration)
	warn("heartbeat_interval", result)

	result = config.LoadEnvDuration("JOB_TIMEOUT", cfg.JobTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 30*time.Second, time.Hour)
	})
	cfg.JobTimeout = result.Value.(time.Duration)
	warn("job_timeout", result)

	result = config.LoadEnvWithFallback("SWEEP_SCHEDULE", cfg.SweepSchedule, config.ValidateCronSchedule)
	cfg.SweepSchedule = result.Value.(string)
	warn("sweep_schedule", result)

	result = config.LoadEnvWithFallback("DETECT_SCHEDULE", cfg.DetectSchedule, config.ValidateCronSchedule)
	cfg.DetectSchedule = result.Value.(string)
	warn("detect_schedule", result)

	result = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	warn("timezone", result)

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	warn("health_port", result)

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}

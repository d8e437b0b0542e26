package worker

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// globalTestMetrics is a shared metrics instance for tests to avoid
// duplicate Prometheus registration errors. In production, metrics are
// created once at startup, so this simulates that behavior.
var globalTestMetrics = NewWorkerMetrics()

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Concurrency != 2 {
		t.Errorf("Expected Concurrency 2, got %d", config.Concurrency)
	}
	if config.ClaimInterval != time.Second {
		t.Errorf("Expected ClaimInterval 1s, got %v", config.ClaimInterval)
	}
	if config.PromoteInterval != 5*time.Second {
		t.Errorf("Expected PromoteInterval 5s, got %v", config.PromoteInterval)
	}
	if config.HeartbeatInterval != 15*time.Second {
		t.Errorf("Expected HeartbeatInterval 15s, got %v", config.HeartbeatInterval)
	}
	if config.JobTimeout != 10*time.Minute {
		t.Errorf("Expected JobTimeout 10m, got %v", config.JobTimeout)
	}
	if config.SweepSchedule != "0 6 * * *" {
		t.Errorf("Expected SweepSchedule '0 6 * * *', got '%s'", config.SweepSchedule)
	}
	if config.DetectSchedule != "0 7 1 * *" {
		t.Errorf("Expected DetectSchedule '0 7 1 * *', got '%s'", config.DetectSchedule)
	}
	if config.Timezone != "UTC" {
		t.Errorf("Expected Timezone 'UTC', got '%s'", config.Timezone)
	}
	if config.HealthPort != 9091 {
		t.Errorf("Expected HealthPort 9091, got %d", config.HealthPort)
	}
}

func TestWorkerConfig_Validate_ValidConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Errorf("Expected valid config, got error: %v", err)
	}
}

func TestWorkerConfig_Validate_InvalidFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*WorkerConfig)
	}{
		{"concurrency zero", func(c *WorkerConfig) { c.Concurrency = 0 }},
		{"concurrency too high", func(c *WorkerConfig) { c.Concurrency = 33 }},
		{"claim interval too small", func(c *WorkerConfig) { c.ClaimInterval = time.Millisecond }},
		{"promote interval too small", func(c *WorkerConfig) { c.PromoteInterval = time.Millisecond }},
		{"heartbeat interval too large", func(c *WorkerConfig) { c.HeartbeatInterval = time.Hour }},
		{"job timeout too small", func(c *WorkerConfig) { c.JobTimeout = time.Second }},
		{"job timeout too large", func(c *WorkerConfig) { c.JobTimeout = 2 * time.Hour }},
		{"invalid sweep schedule", func(c *WorkerConfig) { c.SweepSchedule = "not a cron" }},
		{"invalid detect schedule", func(c *WorkerConfig) { c.DetectSchedule = "61 * * * *" }},
		{"invalid timezone", func(c *WorkerConfig) { c.Timezone = "Mars/Olympus" }},
		{"health port privileged", func(c *WorkerConfig) { c.HealthPort = 80 }},
		{"health port too high", func(c *WorkerConfig) { c.HealthPort = 70000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(&config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestWorkerConfig_Validate_MultipleErrors(t *testing.T) {
	config := DefaultConfig()
	config.Concurrency = 0
	config.SweepSchedule = "invalid"
	config.HealthPort = 80

	err := config.Validate()
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}

	msg := err.Error()
	for _, want := range []string{"concurrency", "sweep schedule", "health port"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected error to mention %q, got: %s", want, msg)
		}
	}
}

func TestLoadConfigFromEnv_MissingEnvVars(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv returned error: %v", err)
	}

	defaults := DefaultConfig()
	if *config != defaults {
		t.Errorf("Expected defaults %+v, got %+v", defaults, *config)
	}
}

func TestLoadConfigFromEnv_AllEnvVarsValid(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("WORKER_CLAIM_INTERVAL", "500ms")
	t.Setenv("WORKER_PROMOTE_INTERVAL", "10s")
	t.Setenv("WORKER_HEARTBEAT_INTERVAL", "30s")
	t.Setenv("JOB_TIMEOUT", "5m")
	t.Setenv("SWEEP_SCHEDULE", "0 */6 * * *")
	t.Setenv("DETECT_SCHEDULE", "30 7 1 * *")
	t.Setenv("WORKER_TIMEZONE", "America/New_York")
	t.Setenv("WORKER_HEALTH_PORT", "9191")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)

	// Should not return error (fail-open strategy)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if config.Concurrency != 4 {
		t.Errorf("Expected Concurrency 4, got %d", config.Concurrency)
	}
	if config.ClaimInterval != 500*time.Millisecond {
		t.Errorf("Expected ClaimInterval 500ms, got %v", config.ClaimInterval)
	}
	if config.PromoteInterval != 10*time.Second {
		t.Errorf("Expected PromoteInterval 10s, got %v", config.PromoteInterval)
	}
	if config.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected HeartbeatInterval 30s, got %v", config.HeartbeatInterval)
	}
	if config.JobTimeout != 5*time.Minute {
		t.Errorf("Expected JobTimeout 5m, got %v", config.JobTimeout)
	}
	if config.SweepSchedule != "0 */6 * * *" {
		t.Errorf("Expected SweepSchedule '0 */6 * * *', got '%s'", config.SweepSchedule)
	}
	if config.DetectSchedule != "30 7 1 * *" {
		t.Errorf("Expected DetectSchedule '30 7 1 * *', got '%s'", config.DetectSchedule)
	}
	if config.Timezone != "America/New_York" {
		t.Errorf("Expected Timezone 'America/New_York', got '%s'", config.Timezone)
	}
	if config.HealthPort != 9191 {
		t.Errorf("Expected HealthPort 9191, got %d", config.HealthPort)
	}

	// No warnings should be logged
	if buf.Len() > 0 {
		t.Errorf("Expected no warnings, got: %s", buf.String())
	}
}

func TestLoadConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "1000")
	t.Setenv("SWEEP_SCHEDULE", "definitely not cron")
	t.Setenv("WORKER_TIMEZONE", "Mars/Olympus")

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv returned error: %v", err)
	}

	defaults := DefaultConfig()
	if config.Concurrency != defaults.Concurrency {
		t.Errorf("Expected fallback Concurrency %d, got %d", defaults.Concurrency, config.Concurrency)
	}
	if config.SweepSchedule != defaults.SweepSchedule {
		t.Errorf("Expected fallback SweepSchedule '%s', got '%s'", defaults.SweepSchedule, config.SweepSchedule)
	}
	if config.Timezone != defaults.Timezone {
		t.Errorf("Expected fallback Timezone '%s', got '%s'", defaults.Timezone, config.Timezone)
	}

	logs := logBuf.String()
	if !strings.Contains(logs, "Configuration fallback applied") {
		t.Error("Expected fallback warnings in logs")
	}

	// the resulting config must still validate
	if err := config.Validate(); err != nil {
		t.Errorf("Fallback config failed validation: %v", err)
	}
}

func TestLoadConfigFromEnv_PartiallyValid(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("JOB_TIMEOUT", "broken")

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	config, err := LoadConfigFromEnv(logger, globalTestMetrics)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv returned error: %v", err)
	}

	if config.Concurrency != 8 {
		t.Errorf("Expected Concurrency 8 from env, got %d", config.Concurrency)
	}
	if config.JobTimeout != DefaultConfig().JobTimeout {
		t.Errorf("Expected fallback JobTimeout, got %v", config.JobTimeout)
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robfig/cron/v3"

	"brickwatch/internal/config"
	"brickwatch/internal/handler/http/respond"
	pgRepo "brickwatch/internal/infra/adapter/persistence/postgres"
	"brickwatch/internal/infra/db"
	"brickwatch/internal/infra/fetcher"
	"brickwatch/internal/infra/images"
	"brickwatch/internal/infra/notifier"
	"brickwatch/internal/infra/queue"
	"brickwatch/internal/infra/redisconn"
	"brickwatch/internal/infra/scraper"
	"brickwatch/internal/infra/worker"
	"brickwatch/internal/resilience/circuitbreaker"
	"brickwatch/internal/usecase/detect"
	"brickwatch/internal/usecase/notify"
	"brickwatch/internal/usecase/schedule"
	pkgconfig "brickwatch/pkg/config"
	"brickwatch/pkg/ratelimit"
)

func main() {
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database := initDatabase(ctx, logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	metrics := worker.NewWorkerMetrics()
	cfg, err := worker.LoadConfigFromEnv(logger, metrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}

	sources := loadSourcesConfig(logger)

	redisClient := redisconn.Open()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	notifyService := initNotifyService(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifyService.Shutdown(shutdownCtx); err != nil {
			logger.Error("notify service shutdown failed", slog.Any("error", err))
		}
	}()

	pacingMetrics := ratelimit.NewPrometheusMetrics()
	startMetricsServer(ctx, logger, notifyService, pacingMetrics.Registry())

	healthServer := worker.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	q := queue.NewQueue(redisClient, queue.DefaultConfig())

	breaker := circuitbreaker.NewSourceBreaker(redisClient, circuitbreaker.SourceConfig{})
	breaker.OnOpen(func(source string, failureCount int64) {
		_ = notifyService.NotifyAlert(context.Background(), &notifier.Alert{
			Title:    fmt.Sprintf("circuit breaker open: %s", source),
			Body:     "Scrapes for this source are refused until the cooldown elapses.",
			Severity: notifier.SeverityCritical,
			Source:   "circuit_breaker",
			Fields: map[string]string{
				"source":        source,
				"failure_count": fmt.Sprintf("%d", failureCount),
			},
		})
	})

	limiter := ratelimit.NewLimiterWith(
		ratelimit.NewRedisStore(redisClient, ratelimit.RedisStoreConfig{}),
		sources.RateLimitConfig(),
		ratelimit.Options{Metrics: pacingMetrics},
	)

	fetchClient := fetcher.NewClient(fetcher.DefaultConfig())
	defer func() {
		if err := fetchClient.Close(); err != nil {
			logger.Error("failed to close fetch client", slog.Any("error", err))
		}
	}()

	// repositories run on the breaker-guarded connection: when Postgres goes
	// away, scrape results fail fast into job retries instead of piling up on
	// a dead pool
	guardedDB := circuitbreaker.NewDBCircuitBreaker(database)

	engine := &scraper.Engine{
		Limiter:  limiter,
		Breaker:  breaker,
		Fetcher:  fetchClient,
		Sessions: pgRepo.NewSessionRepo(guardedDB),
		Payloads: pgRepo.NewRawPayloadRepo(guardedDB),
		Images:   initImageDownloader(logger),
	}

	marketplaceRepo := pgRepo.NewMarketplaceRepo(guardedDB)
	retirementRepo := pgRepo.NewRetirementRepo(guardedDB)
	metadataRepo := pgRepo.NewMetadataRepo(guardedDB)
	redditRepo := pgRepo.NewRedditRepo(guardedDB)
	productRepo := pgRepo.NewProductRepo(guardedDB)

	registry := scraper.NewRegistry(
		scraper.NewMarketplaceScraper(engine, marketplaceRepo, scraper.MarketplaceConfig{
			BaseURL:         sources.Marketplace.BaseURL,
			Domain:          sources.Marketplace.Domain,
			WaitForSelector: sources.Marketplace.WaitForSelector,
		}),
		scraper.NewRetirementScraper(engine, retirementRepo, scraper.RetirementConfig{
			PageURL:         sources.Retirement.PageURL,
			Domain:          sources.Retirement.Domain,
			WaitForSelector: sources.Retirement.WaitForSelector,
		}),
		scraper.NewMetadataScraper(engine, metadataRepo, scraper.MetadataConfig{
			SearchURLTemplate: sources.Metadata.SearchURLTemplate,
			Domain:            sources.Metadata.Domain,
		}),
		scraper.NewRedditScraper(engine, redditRepo, scraper.RedditConfig{
			SearchURLTemplate: sources.Reddit.SearchURLTemplate,
			Domain:            sources.Reddit.Domain,
		}),
	)

	scheduler := &schedule.Service{
		Marketplace: marketplaceRepo,
		Retirement:  retirementRepo,
		Metadata:    metadataRepo,
		Reddit:      redditRepo,
		Products:    productRepo,
		Queue:       q,
		Logger:      logger,
	}
	if sources.Discovery.FeedURL != "" {
		scheduler.Discovery = &schedule.Discovery{
			Parser:   gofeed.NewParser(),
			Products: productRepo,
			FeedURL:  sources.Discovery.FeedURL,
			Logger:   logger,
		}
	}

	detector := &detect.Service{
		Marketplace: marketplaceRepo,
		Metadata:    metadataRepo,
		Products:    productRepo,
		Queue:       q,
		Logger:      logger,
	}

	startCron(ctx, logger, cfg, metrics, notifyService, scheduler, detector)

	pool := worker.NewPool(q, registry, *cfg, logger, metrics)
	healthServer.SetReady(true)

	if err := pool.Run(ctx); err != nil {
		logger.Error("worker pool exited with error", slog.Any("error", err))
		os.Exit(1)
	}

	healthServer.SetReady(false)
	logger.Info("worker shut down cleanly")
}

// initLogger initializes the process-wide structured logger.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database and waits for the control plane to have
// run the migrations. The worker never migrates; two processes racing on DDL
// is how half-created tables happen.
func initDatabase(ctx context.Context, logger *slog.Logger) *sql.DB {
	database := db.Open()
	waitForMigrations(ctx, logger, database)
	return database
}

// waitForMigrations probes the catalog table until it exists or the timeout
// elapses. MIGRATION_WAIT_TIMEOUT bounds the total wait (default 60s).
func waitForMigrations(ctx context.Context, logger *slog.Logger, database *sql.DB) {
	timeout := pkgconfig.GetEnvDuration("MIGRATION_WAIT_TIMEOUT", 60*time.Second)
	deadline := time.Now().Add(timeout)

	for {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_, err := database.ExecContext(probeCtx, "SELECT 1 FROM products LIMIT 1")
		cancel()
		if err == nil {
			logger.Info("database schema is ready")
			return
		}
		if time.Now().After(deadline) {
			logger.Error("timed out waiting for database migrations",
				slog.Duration("timeout", timeout),
				slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("waiting for database migrations", slog.Any("error", err))
		select {
		case <-ctx.Done():
			logger.Error("interrupted while waiting for migrations")
			os.Exit(1)
		case <-time.After(2 * time.Second):
		}
	}
}

// loadSourcesConfig reads the per-source scrape settings. SOURCES_CONFIG
// overrides the default path. The worker cannot do anything useful without
// scrape targets, so a bad file is fatal.
func loadSourcesConfig(logger *slog.Logger) *config.SourcesConfig {
	path := pkgconfig.GetEnvString("SOURCES_CONFIG", "config/sources.yaml")
	sources, err := config.LoadSourcesConfig(path)
	if err != nil {
		logger.Error("failed to load sources configuration",
			slog.String("path", path),
			slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("sources configuration loaded", slog.String("path", path))
	return sources
}

// initNotifyService builds the alert dispatch service from the webhook
// environment. A misconfigured channel is disabled, never fatal: the
// pipeline runs fine without alerting, just quieter.
func initNotifyService(logger *slog.Logger) notify.Service {
	var channels []notify.Channel

	discordCfg := loadDiscordConfig(logger)
	if discordCfg.Enabled {
		channels = append(channels, notify.NewDiscordChannel(discordCfg))
		logger.Info("discord alerts enabled")
	}

	slackCfg := loadSlackConfig(logger)
	if slackCfg.Enabled {
		channels = append(channels, notify.NewSlackChannel(slackCfg))
		logger.Info("slack alerts enabled")
	}

	if len(channels) == 0 {
		logger.Warn("no alert channels configured, pipeline alerts will only be logged")
	}

	maxConcurrent := pkgconfig.GetEnvInt("NOTIFY_MAX_CONCURRENT", 10)
	return notify.NewService(channels, maxConcurrent)
}

// loadDiscordConfig reads and validates DISCORD_WEBHOOK_URL. Any validation
// failure disables the channel rather than failing startup.
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if webhookURL == "" {
		return notifier.DiscordConfig{Enabled: false}
	}

	parsed, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid DISCORD_WEBHOOK_URL, discord alerts disabled", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}
	if parsed.Scheme != "https" {
		logger.Warn("DISCORD_WEBHOOK_URL must use https, discord alerts disabled")
		return notifier.DiscordConfig{Enabled: false}
	}
	host := strings.ToLower(parsed.Host)
	if host != "discord.com" && host != "discordapp.com" {
		logger.Warn("DISCORD_WEBHOOK_URL has unexpected host, discord alerts disabled",
			slog.String("host", host))
		return notifier.DiscordConfig{Enabled: false}
	}
	if !strings.HasPrefix(parsed.Path, "/api/webhooks/") {
		logger.Warn("DISCORD_WEBHOOK_URL is not a webhook path, discord alerts disabled")
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    pkgconfig.GetEnvDuration("DISCORD_TIMEOUT", 10*time.Second),
	}
}

// loadSlackConfig reads and validates SLACK_WEBHOOK_URL, same policy as
// loadDiscordConfig.
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")
	if webhookURL == "" {
		return notifier.SlackConfig{Enabled: false}
	}

	parsed, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid SLACK_WEBHOOK_URL, slack alerts disabled", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}
	if parsed.Scheme != "https" {
		logger.Warn("SLACK_WEBHOOK_URL must use https, slack alerts disabled")
		return notifier.SlackConfig{Enabled: false}
	}
	if strings.ToLower(parsed.Host) != "hooks.slack.com" {
		logger.Warn("SLACK_WEBHOOK_URL has unexpected host, slack alerts disabled",
			slog.String("host", parsed.Host))
		return notifier.SlackConfig{Enabled: false}
	}
	if !strings.HasPrefix(parsed.Path, "/services/") {
		logger.Warn("SLACK_WEBHOOK_URL is not a webhook path, slack alerts disabled")
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    pkgconfig.GetEnvDuration("SLACK_TIMEOUT", 10*time.Second),
	}
}

// initImageDownloader wires the optional product-image sidecar. Without an
// IMAGE_DIR the scrapers record ImageStatusSkipped and move on.
func initImageDownloader(logger *slog.Logger) scraper.ImageDownloader {
	dir := os.Getenv("IMAGE_DIR")
	if dir == "" {
		logger.Info("IMAGE_DIR not set, product images will be skipped")
		return nil
	}
	store, err := images.NewDirStore(dir)
	if err != nil {
		logger.Warn("image store unavailable, product images will be skipped",
			slog.String("dir", dir),
			slog.Any("error", err))
		return nil
	}
	logger.Info("image downloads enabled", slog.String("dir", dir))
	return images.NewDownloader(store, images.DefaultConfig())
}

// startCron schedules the daily sweep and the monthly missing-data recheck.
// Cron owns only the triggering; the pool consumes whatever the runs enqueue.
func startCron(
	ctx context.Context,
	logger *slog.Logger,
	cfg *worker.WorkerConfig,
	metrics *worker.WorkerMetrics,
	notifyService notify.Service,
	scheduler *schedule.Service,
	detector *detect.Service,
) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, falling back to UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))

	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		runSweep(ctx, logger, metrics, notifyService, scheduler)
	}); err != nil {
		logger.Error("failed to schedule sweep", slog.Any("error", err))
		os.Exit(1)
	}

	if _, err := c.AddFunc(cfg.DetectSchedule, func() {
		runDetect(ctx, logger, metrics, notifyService, detector)
	}); err != nil {
		logger.Error("failed to schedule missing-data recheck", slog.Any("error", err))
		os.Exit(1)
	}

	c.Start()
	logger.Info("cron schedules registered",
		slog.String("sweep", cfg.SweepSchedule),
		slog.String("detect", cfg.DetectSchedule),
		slog.String("timezone", loc.String()))

	go func() {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		logger.Info("cron stopped")
	}()
}

// sweepTimeout bounds one scheduled sweep including discovery and every
// per-source query. Generous because the new-release feed fetch is in there.
const sweepTimeout = 10 * time.Minute

func runSweep(
	ctx context.Context,
	logger *slog.Logger,
	metrics *worker.WorkerMetrics,
	notifyService notify.Service,
	scheduler *schedule.Service,
) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	logger.Info("scheduled sweep starting")
	stats, err := scheduler.Sweep(sweepCtx)
	if err != nil {
		logger.Error("scheduled sweep failed",
			slog.String("error", respond.SanitizeError(err)))
		metrics.RecordSweep("failure", 0)
		_ = notifyService.NotifyAlert(context.Background(), &notifier.Alert{
			Title:    "scheduled sweep failed",
			Body:     respond.SanitizeError(err),
			Severity: notifier.SeverityCritical,
			Source:   "scheduler",
		})
		return
	}

	metrics.RecordSweep("success", stats.JobsEnqueued)
	logger.Info("scheduled sweep finished",
		slog.Int("jobs_enqueued", stats.JobsEnqueued),
		slog.Int("stubs_created", stats.StubsCreated),
		slog.Duration("duration", stats.Duration))
}

func runDetect(
	ctx context.Context,
	logger *slog.Logger,
	metrics *worker.WorkerMetrics,
	notifyService notify.Service,
	detector *detect.Service,
) {
	detectCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	logger.Info("missing-data recheck starting")
	stats, err := detector.Recheck(detectCtx)
	if err != nil {
		logger.Error("missing-data recheck failed",
			slog.String("error", respond.SanitizeError(err)))
		metrics.RecordSweep("failure", 0)
		_ = notifyService.NotifyAlert(context.Background(), &notifier.Alert{
			Title:    "missing-data recheck failed",
			Body:     respond.SanitizeError(err),
			Severity: notifier.SeverityWarning,
			Source:   "detector",
		})
		return
	}

	metrics.RecordSweep("success", stats.JobsEnqueued)
	logger.Info("missing-data recheck finished",
		slog.Int("jobs_enqueued", stats.JobsEnqueued),
		slog.Int("missing_volumes", stats.MissingVolumes),
		slog.Int("missing_metadata", stats.MissingMetadata),
		slog.Int("missing_reddit", stats.MissingReddit),
		slog.Duration("duration", stats.Duration))
}

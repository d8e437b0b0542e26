package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	hhttp "brickwatch/internal/handler/http"
	"brickwatch/internal/handler/http/pipeline"
	"brickwatch/internal/handler/http/requestid"
	pgRepo "brickwatch/internal/infra/adapter/persistence/postgres"
	"brickwatch/internal/infra/db"
	"brickwatch/internal/infra/queue"
	"brickwatch/internal/infra/redisconn"
	"brickwatch/internal/infra/scraper"
	"brickwatch/internal/observability/tracing"
	"brickwatch/internal/resilience/circuitbreaker"
	"brickwatch/internal/usecase/detect"
	"brickwatch/internal/usecase/schedule"
	pkgconfig "brickwatch/pkg/config"
)

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	redisClient := redisconn.Open()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	handler := setupServer(logger, database, redisClient, getVersion())
	runServer(logger, handler)
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

// initDatabase opens the database and runs migrations. The control plane is
// the single migrator; the worker waits for the schema instead.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// getVersion returns the build version reported by the health endpoint.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// setupServer wires the control-plane handlers and the middleware chain.
func setupServer(logger *slog.Logger, database *sql.DB, redisClient *redis.Client, version string) http.Handler {
	q := queue.NewQueue(redisClient, queue.DefaultConfig())
	breaker := circuitbreaker.NewSourceBreaker(redisClient, circuitbreaker.SourceConfig{})

	// repositories run on the breaker-guarded connection; the health probes
	// below keep the raw one so readiness reflects Postgres itself
	guardedDB := circuitbreaker.NewDBCircuitBreaker(database)

	marketplaceRepo := pgRepo.NewMarketplaceRepo(guardedDB)
	metadataRepo := pgRepo.NewMetadataRepo(guardedDB)
	productRepo := pgRepo.NewProductRepo(guardedDB)

	scheduler := &schedule.Service{
		Marketplace: marketplaceRepo,
		Retirement:  pgRepo.NewRetirementRepo(guardedDB),
		Metadata:    metadataRepo,
		Reddit:      pgRepo.NewRedditRepo(guardedDB),
		Products:    productRepo,
		Queue:       q,
		Logger:      logger,
	}

	detector := &detect.Service{
		Marketplace: marketplaceRepo,
		Metadata:    metadataRepo,
		Products:    productRepo,
		Queue:       q,
		Logger:      logger,
	}

	importer := scraper.NewRetailImporter(
		pgRepo.NewRetailRepo(guardedDB),
		pgRepo.NewSessionRepo(guardedDB),
		pgRepo.NewRawPayloadRepo(guardedDB),
	)

	mux := http.NewServeMux()
	pipeline.Register(mux, q, breaker, scheduler, detector, importer, logger)

	mux.Handle("GET /healthz", &hhttp.HealthHandler{DB: database, Redis: redisClient, Version: version})
	mux.Handle("GET /ready", &hhttp.ReadyHandler{DB: database, Redis: redisClient})
	mux.Handle("GET /live", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	requestTimeout := pkgconfig.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second)

	// Outermost first: request ID before logging so every line carries it,
	// recover inside logging so panics still produce a request log line.
	return hhttp.Chain(mux,
		requestid.Middleware,
		tracing.Middleware,
		hhttp.Logging(logger),
		hhttp.Recover(logger),
		hhttp.MetricsMiddleware,
		hhttp.LimitRequestBody(1<<20),
		hhttp.Timeout(requestTimeout),
	)
}

// runServer starts the HTTP server and blocks until SIGINT/SIGTERM, then
// shuts down gracefully.
func runServer(logger *slog.Logger, handler http.Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := pkgconfig.GetEnvString("API_ADDR", ":8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("control plane starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down control plane")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("control plane stopped")
}

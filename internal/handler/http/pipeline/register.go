// Package pipeline exposes the scrape pipeline's operator endpoints: queue
// inspection and reset, on-demand sweeps, missing-data detection, force
// scrape, and retail listing import. Everything here is ops-internal; the
// dashboard is the only intended client.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/queue"
	"brickwatch/internal/resilience/circuitbreaker"
	"brickwatch/internal/usecase/detect"
	"brickwatch/internal/usecase/schedule"
)

// QueueAdmin is the queue surface the control plane needs.
// *queue.Queue satisfies it.
type QueueAdmin interface {
	Counts(ctx context.Context) (*queue.Counts, error)
	List(ctx context.Context, state queue.State, limit int) ([]*queue.Job, error)
	WorkerStatus(ctx context.Context) (*queue.WorkerStatus, error)
	Obliterate(ctx context.Context) (int64, error)
}

// BreakerAdmin is the breaker surface the control plane needs.
// *circuitbreaker.SourceBreaker satisfies it.
type BreakerAdmin interface {
	State(ctx context.Context, source string) (circuitbreaker.SourceState, error)
	Reset(ctx context.Context, source string) error
}

// Scheduler is the sweep surface the control plane needs.
// *schedule.Service satisfies it.
type Scheduler interface {
	Sweep(ctx context.Context) (*schedule.SweepStats, error)
	TriggerAll(ctx context.Context) (*schedule.SweepStats, error)
	ForceScrape(ctx context.Context, itemIDs []string) (*schedule.SweepStats, error)
}

// Detector is the missing-data surface the control plane needs.
// *detect.Service satisfies it.
type Detector interface {
	Detect(ctx context.Context) (*detect.Stats, error)
}

// Importer ingests pasted retail pages. *scraper.RetailImporter satisfies it.
type Importer interface {
	Import(ctx context.Context, html, sourceURL string) (*entity.BatchUpsertResult, error)
}

// scheduledSources are the sources the scheduler drives and the breaker
// tracks. Retail listings are user-pasted and have no breaker.
var scheduledSources = []entity.Source{
	entity.SourceMarketplace,
	entity.SourceRetirementTracker,
	entity.SourceMetadataSite,
	entity.SourceReddit,
}

// Register wires the pipeline endpoints onto mux.
func Register(mux *http.ServeMux, q QueueAdmin, breaker BreakerAdmin, scheduler Scheduler, detector Detector, importer Importer, logger *slog.Logger) {
	mux.Handle("GET    /api/queue/status", &QueueStatusHandler{Queue: q, Breaker: breaker, Logger: logger})
	mux.Handle("POST   /api/queue/reset", &QueueResetHandler{Queue: q, Breaker: breaker, Scheduler: scheduler, Logger: logger})
	mux.Handle("POST   /api/scheduler/run", &SchedulerRunHandler{Scheduler: scheduler, Logger: logger})
	mux.Handle("POST   /api/detect-missing", &DetectMissingHandler{Detector: detector, Logger: logger})
	mux.Handle("POST   /api/force-scrape", &ForceScrapeHandler{Scheduler: scheduler, Logger: logger})
	mux.Handle("POST   /api/retail/import", &RetailImportHandler{Importer: importer, Logger: logger})
}

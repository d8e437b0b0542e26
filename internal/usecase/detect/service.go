// Package detect finds holes the regular sweeps cannot see: rows that were
// scraped successfully but came back without the data a complete record
// needs. Each gap becomes a fill job.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/queue"
	"brickwatch/internal/repository"
)

// Enqueuer is the queue surface the detector needs. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, opts queue.EnqueueOptions) (jobID string, deduped bool, err error)
}

// Stats reports one detector run.
type Stats struct {
	JobsEnqueued    int           `json:"jobsEnqueued"`
	MissingVolumes  int           `json:"missingVolumes"`
	MissingMetadata int           `json:"missingMetadata"`
	MissingReddit   int           `json:"missingReddit"`
	Deduped         int           `json:"deduped"`
	Errors          []string      `json:"errors,omitempty"`
	Duration        time.Duration `json:"-"`
}

// Service detects missing data across the source tables.
//
// Three gaps are covered: marketplace records with no sales-volume buckets,
// catalog products with a set number but no metadata record, and products
// with no community-board mentions row. A query error on one gap class is
// recorded and the others still run.
type Service struct {
	Marketplace repository.MarketplaceRepository
	Metadata    repository.MetadataRepository
	Products    repository.ProductRepository
	Queue       Enqueuer
	Logger      *slog.Logger
}

// Detect enqueues HIGH-priority fill jobs for every gap found. Used by the
// on-demand control-plane surface.
func (s *Service) Detect(ctx context.Context) (*Stats, error) {
	return s.run(ctx, queue.PriorityHigh)
}

// Recheck is the monthly cron variant: the same scan, enqueued at MEDIUM so
// long-standing gaps are refreshed without jumping ahead of fresh work.
func (s *Service) Recheck(ctx context.Context) (*Stats, error) {
	return s.run(ctx, queue.PriorityMedium)
}

func (s *Service) run(ctx context.Context, priority queue.Priority) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	itemIDs, err := s.Marketplace.FindItemIDsMissingVolumes(ctx)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("missing volumes: %v", err))
	}
	stats.MissingVolumes = len(itemIDs)
	for _, itemID := range itemIDs {
		s.enqueue(ctx, stats, entity.SourceMarketplace, queue.JobData{ItemID: itemID}, priority)
	}

	newMetadata, err := s.Metadata.FindNewItems(ctx)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("missing metadata: %v", err))
	}
	stats.MissingMetadata = len(newMetadata)
	for _, item := range newMetadata {
		s.enqueue(ctx, stats, entity.SourceMetadataSite, queue.JobData{SetNumber: item.SetNumber}, priority)
	}

	setNumbers, err := s.Products.FindSetNumbersMissingReddit(ctx)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("missing reddit: %v", err))
	}
	stats.MissingReddit = len(setNumbers)
	for _, setNumber := range setNumbers {
		s.enqueue(ctx, stats, entity.SourceReddit, queue.JobData{SetNumber: setNumber}, priority)
	}

	stats.Duration = time.Since(start)
	s.logger().Info("missing-data detection finished",
		slog.String("priority", priority.String()),
		slog.Int("missing_volumes", stats.MissingVolumes),
		slog.Int("missing_metadata", stats.MissingMetadata),
		slog.Int("missing_reddit", stats.MissingReddit),
		slog.Int("jobs_enqueued", stats.JobsEnqueued),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

func (s *Service) enqueue(ctx context.Context, stats *Stats, source entity.Source, data queue.JobData, priority queue.Priority) {
	_, deduped, err := s.Queue.Enqueue(ctx, queue.EnqueueOptions{
		Name:     source.JobName(),
		Data:     data,
		Priority: priority,
	})
	switch {
	case err != nil:
		stats.Errors = append(stats.Errors, fmt.Sprintf("enqueue %s: %v", data.Identifier(), err))
	case deduped:
		stats.Deduped++
	default:
		stats.JobsEnqueued++
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

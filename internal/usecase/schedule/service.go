// Package schedule decides what gets scraped when. The sweep walks every
// source table for due and never-seen items and turns them into queue jobs;
// nothing in here talks to an external site.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/queue"
	"brickwatch/internal/repository"
)

// Enqueuer is the queue surface the scheduler needs. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, opts queue.EnqueueOptions) (jobID string, deduped bool, err error)
}

// SourceSweep is the per-source outcome of one sweep.
type SourceSweep struct {
	Source       entity.Source  `json:"source"`
	ItemsFound   int            `json:"itemsFound"`
	JobsEnqueued int            `json:"jobsEnqueued"`
	Deduped      int            `json:"deduped"`
	Errors       []string       `json:"errors,omitempty"`
	priorities   map[string]int // by Priority.String()
}

// SweepStats aggregates one sweep across all sources.
type SweepStats struct {
	Sources        []*SourceSweep `json:"sources"`
	JobsEnqueued   int            `json:"jobsEnqueued"`
	PriorityCounts map[string]int `json:"priorityCounts"`
	StubsCreated   int            `json:"stubsCreated,omitempty"`
	Duration       time.Duration  `json:"-"`
}

// Service runs the scheduled and on-demand sweeps.
//
// Priority policy: items a source has never seen go out HIGH, items overdue
// by more than one full scrape interval go out MEDIUM, everything else
// NORMAL. A repository error on one source never stops the others; it is
// recorded on that source's sweep entry.
type Service struct {
	Marketplace repository.MarketplaceRepository
	Retirement  repository.RetirementRepository
	Metadata    repository.MetadataRepository
	Reddit      repository.RedditRepository
	Products    repository.ProductRepository
	Queue       Enqueuer

	// Discovery seeds product stubs from the new-release feed before the
	// sweep queries run. Optional.
	Discovery *Discovery

	Logger *slog.Logger
}

// Sweep enqueues a scrape job for everything that is due or new, with
// de-duplication against jobs already queued. Sources are swept in parallel.
func (s *Service) Sweep(ctx context.Context) (*SweepStats, error) {
	start := time.Now()
	logger := s.logger()

	stats := &SweepStats{PriorityCounts: map[string]int{}}

	if s.Discovery != nil {
		created, err := s.Discovery.Run(ctx)
		if err != nil {
			// discovery is best-effort; the sweep still covers known items
			logger.Warn("new-release discovery failed", slog.Any("error", err))
		}
		stats.StubsCreated = created
	}

	sweeps := make([]*SourceSweep, 4)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { sweeps[0] = s.sweepMarketplace(gctx); return nil })
	g.Go(func() error { sweeps[1] = s.sweepRetirement(gctx); return nil })
	g.Go(func() error { sweeps[2] = s.sweepMetadata(gctx); return nil })
	g.Go(func() error { sweeps[3] = s.sweepReddit(gctx); return nil })
	_ = g.Wait()

	for _, sweep := range sweeps {
		stats.Sources = append(stats.Sources, sweep)
		stats.JobsEnqueued += sweep.JobsEnqueued
		for p, n := range sweep.priorities {
			stats.PriorityCounts[p] += n
		}
	}
	stats.Duration = time.Since(start)

	logger.Info("sweep finished",
		slog.Int("jobs_enqueued", stats.JobsEnqueued),
		slog.Int("stubs_created", stats.StubsCreated),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// TriggerAll enqueues a scrape for every active catalog product on every
// source, ignoring scrape intervals. Dedup against queued jobs still applies.
func (s *Service) TriggerAll(ctx context.Context) (*SweepStats, error) {
	start := time.Now()
	stats := &SweepStats{PriorityCounts: map[string]int{}}

	products, err := s.Products.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("TriggerAll: list products: %w", err)
	}

	marketplace := newSourceSweep(entity.SourceMarketplace)
	metadata := newSourceSweep(entity.SourceMetadataSite)
	reddit := newSourceSweep(entity.SourceReddit)
	retirement := newSourceSweep(entity.SourceRetirementTracker)

	for _, p := range products {
		marketplace.ItemsFound++
		s.enqueue(ctx, marketplace, queue.JobData{
			ItemID:    p.ItemID,
			ItemType:  string(p.ItemType),
			SetNumber: p.SetNumber,
		}, queue.PriorityNormal)

		if p.SetNumber != "" {
			metadata.ItemsFound++
			s.enqueue(ctx, metadata, queue.JobData{SetNumber: p.SetNumber}, queue.PriorityNormal)
			reddit.ItemsFound++
			s.enqueue(ctx, reddit, queue.JobData{SetNumber: p.SetNumber}, queue.PriorityNormal)
		}
	}

	retirement.ItemsFound = 1
	s.enqueue(ctx, retirement, queue.JobData{}, queue.PriorityNormal)

	for _, sweep := range []*SourceSweep{marketplace, retirement, metadata, reddit} {
		stats.Sources = append(stats.Sources, sweep)
		stats.JobsEnqueued += sweep.JobsEnqueued
		for p, n := range sweep.priorities {
			stats.PriorityCounts[p] += n
		}
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

// ForceScrape enqueues HIGH-priority marketplace jobs for explicit item ids.
// The jobs carry the force flag, so they run even while the source's circuit
// is open. Invalid ids are reported, not fatal.
func (s *Service) ForceScrape(ctx context.Context, itemIDs []string) (*SweepStats, error) {
	stats := &SweepStats{PriorityCounts: map[string]int{}}
	sweep := newSourceSweep(entity.SourceMarketplace)

	for _, itemID := range itemIDs {
		if err := entity.ValidateItemID(itemID); err != nil {
			sweep.Errors = append(sweep.Errors, fmt.Sprintf("%s: %v", itemID, err))
			continue
		}
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{ItemID: itemID, Force: true}, queue.PriorityHigh)
	}

	stats.Sources = []*SourceSweep{sweep}
	stats.JobsEnqueued = sweep.JobsEnqueued
	for p, n := range sweep.priorities {
		stats.PriorityCounts[p] += n
	}
	return stats, nil
}

func (s *Service) sweepMarketplace(ctx context.Context) *SourceSweep {
	sweep := newSourceSweep(entity.SourceMarketplace)
	now := time.Now().UTC()

	newItems, err := s.Marketplace.FindNewItems(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("find new items: %v", err))
	}
	for _, item := range newItems {
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{
			ItemID:    item.ItemID,
			ItemType:  string(item.ItemType),
			SetNumber: item.SetNumber,
		}, queue.PriorityHigh)
	}

	due, err := s.Marketplace.FindItemsNeedingScraping(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("find due items: %v", err))
	}
	for _, record := range due {
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{
			ItemID:   record.ItemID,
			ItemType: string(record.ItemType),
		}, duePriority(record.ScrapeTracking, now))
	}
	return sweep
}

func (s *Service) sweepRetirement(ctx context.Context) *SourceSweep {
	sweep := newSourceSweep(entity.SourceRetirementTracker)

	due, err := s.Retirement.DueForScrape(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("due check: %v", err))
		return sweep
	}
	if !due {
		return sweep
	}

	// one page covers every theme, so the tracker is a single job
	sweep.ItemsFound = 1
	s.enqueue(ctx, sweep, queue.JobData{}, queue.PriorityNormal)
	return sweep
}

func (s *Service) sweepMetadata(ctx context.Context) *SourceSweep {
	sweep := newSourceSweep(entity.SourceMetadataSite)
	now := time.Now().UTC()

	newItems, err := s.Metadata.FindNewItems(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("find new items: %v", err))
	}
	for _, item := range newItems {
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{SetNumber: item.SetNumber}, queue.PriorityHigh)
	}

	due, err := s.Metadata.FindItemsNeedingScraping(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("find due items: %v", err))
	}
	for _, record := range due {
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{SetNumber: record.SetNumber}, duePriority(record.ScrapeTracking, now))
	}
	return sweep
}

func (s *Service) sweepReddit(ctx context.Context) *SourceSweep {
	sweep := newSourceSweep(entity.SourceReddit)
	now := time.Now().UTC()

	newItems, err := s.Reddit.FindNewItems(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("find new items: %v", err))
	}
	for _, item := range newItems {
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{SetNumber: item.SetNumber}, queue.PriorityHigh)
	}

	due, err := s.Reddit.FindItemsNeedingScraping(ctx)
	if err != nil {
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("find due items: %v", err))
	}
	for _, record := range due {
		sweep.ItemsFound++
		s.enqueue(ctx, sweep, queue.JobData{SetNumber: record.SetNumber}, duePriority(record.ScrapeTracking, now))
	}
	return sweep
}

// enqueue puts one job on the queue and books the outcome on the sweep.
func (s *Service) enqueue(ctx context.Context, sweep *SourceSweep, data queue.JobData, priority queue.Priority) {
	_, deduped, err := s.Queue.Enqueue(ctx, queue.EnqueueOptions{
		Name:     sweep.Source.JobName(),
		Data:     data,
		Priority: priority,
	})
	switch {
	case err != nil:
		sweep.Errors = append(sweep.Errors, fmt.Sprintf("enqueue %s: %v", data.Identifier(), err))
	case deduped:
		sweep.Deduped++
	default:
		sweep.JobsEnqueued++
		sweep.priorities[priority.String()]++
	}
}

// duePriority escalates items overdue by more than one full interval.
func duePriority(tracking entity.ScrapeTracking, now time.Time) queue.Priority {
	if tracking.NextScrapeAt == nil || tracking.ScrapeIntervalDays <= 0 {
		return queue.PriorityNormal
	}
	interval := time.Duration(tracking.ScrapeIntervalDays) * 24 * time.Hour
	if now.Sub(*tracking.NextScrapeAt) > interval {
		return queue.PriorityMedium
	}
	return queue.PriorityNormal
}

func newSourceSweep(source entity.Source) *SourceSweep {
	return &SourceSweep{Source: source, priorities: map[string]int{}}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

package scraper

import (
	"context"
	"net/url"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/parser"
	"brickwatch/internal/repository"
)

// RetirementConfig holds the retirement tracker's source settings.
type RetirementConfig struct {
	// PageURL is the single tracker page listing every theme.
	PageURL string

	// Domain keys the rate limiter. Defaults to the PageURL host.
	Domain string

	WaitForSelector string
}

// RetirementScraper scrapes the retirement tracker. One fetch covers every
// theme; the whole table is upserted as a batch and sets that dropped off the
// page are deactivated rather than deleted.
type RetirementScraper struct {
	engine *Engine
	repo   repository.RetirementRepository
	config RetirementConfig
}

// NewRetirementScraper creates the retirement tracker worker.
func NewRetirementScraper(engine *Engine, repo repository.RetirementRepository, config RetirementConfig) *RetirementScraper {
	if config.Domain == "" {
		if u, err := url.Parse(config.PageURL); err == nil {
			config.Domain = u.Host
		}
	}
	if config.WaitForSelector == "" {
		config.WaitForSelector = ".theme-group"
	}
	return &RetirementScraper{engine: engine, repo: repo, config: config}
}

// Source implements Scraper.
func (s *RetirementScraper) Source() entity.Source {
	return entity.SourceRetirementTracker
}

// Scrape fetches the tracker page and batch-upserts every set row on it.
// The request carries no identifier; the tracker is scraped as a whole.
func (s *RetirementScraper) Scrape(ctx context.Context, req Request) Result {
	pageURL := req.URL
	if pageURL == "" {
		pageURL = s.config.PageURL
	}
	if err := entity.ValidateURL(pageURL); err != nil {
		return Result{Err: &InvalidInputError{Source: s.Source(), Reason: err.Error(), Err: err}}
	}

	return s.engine.run(ctx, runSpec{
		source:        s.Source(),
		domain:        s.config.Domain,
		mode:          entity.FetchModeBrowser,
		sourceURL:     pageURL,
		saveToDB:      req.SaveToDB,
		skipRateLimit: req.SkipRateLimit,
		force:         req.Force,
		attempt: func(ctx context.Context, run *Run) error {
			page, err := run.FetchPageWait(ctx, pageURL, s.config.WaitForSelector)
			if err != nil {
				return err
			}

			records, err := parser.ParseRetirementPage([]byte(page.Body), page.FinalURL)
			if err != nil {
				return err
			}

			run.Found = len(records)
			if !req.SaveToDB {
				return nil
			}

			batch, err := s.repo.BatchUpsert(ctx, records)
			if err != nil {
				return err
			}
			run.Stored = batch.Total

			seen := make([]string, 0, len(records))
			for _, r := range records {
				seen = append(seen, r.SetNumber)
			}
			if _, err := s.repo.MarkAllInactiveExcept(ctx, seen); err != nil {
				return err
			}
			return nil
		},
		markFailed: func(ctx context.Context) error {
			return s.repo.MarkFailed(ctx)
		},
	})
}

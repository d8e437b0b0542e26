package scraper

import (
	"context"
	"fmt"
	"net/url"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/parser"
	"brickwatch/internal/repository"
)

// RedditConfig holds the community board's source settings.
type RedditConfig struct {
	// SearchURLTemplate builds the JSON search endpoint for a set number
	// with one %s verb.
	SearchURLTemplate string

	// Domain keys the rate limiter. Defaults to the search URL host.
	Domain string
}

// RedditScraper queries the community board's unauthenticated JSON search
// for a set number and stores the mention aggregate. Zero mentions is a
// legitimate answer, not a not-found outcome.
type RedditScraper struct {
	engine *Engine
	repo   repository.RedditRepository
	config RedditConfig
}

// NewRedditScraper creates the community board worker.
func NewRedditScraper(engine *Engine, repo repository.RedditRepository, config RedditConfig) *RedditScraper {
	if config.Domain == "" {
		if u, err := url.Parse(fmt.Sprintf(config.SearchURLTemplate, "0")); err == nil {
			config.Domain = u.Host
		}
	}
	return &RedditScraper{engine: engine, repo: repo, config: config}
}

// Source implements Scraper.
func (s *RedditScraper) Source() entity.Source {
	return entity.SourceReddit
}

// SearchURL builds the JSON search URL for a set number.
func (s *RedditScraper) SearchURL(setNumber string) string {
	return fmt.Sprintf(s.config.SearchURLTemplate, url.QueryEscape(setNumber))
}

// Scrape queries the board and upserts the mention aggregate.
func (s *RedditScraper) Scrape(ctx context.Context, req Request) Result {
	if err := entity.ValidateSetNumber(req.SetNumber); err != nil {
		return Result{Err: &InvalidInputError{Source: s.Source(), Reason: err.Error(), Err: err}}
	}

	searchURL := s.SearchURL(req.SetNumber)
	if err := entity.ValidateURL(searchURL); err != nil {
		return Result{Err: &InvalidInputError{Source: s.Source(), Reason: err.Error(), Err: err}}
	}

	return s.engine.run(ctx, runSpec{
		source:        s.Source(),
		domain:        s.config.Domain,
		mode:          entity.FetchModeSimple,
		sourceURL:     searchURL,
		saveToDB:      req.SaveToDB,
		skipRateLimit: req.SkipRateLimit,
		force:         req.Force,
		attempt: func(ctx context.Context, run *Run) error {
			page, err := run.FetchPage(ctx, searchURL)
			if err != nil {
				return err
			}

			mention, err := parser.ParseRedditSearch([]byte(page.Body), page.FinalURL, req.SetNumber)
			if err != nil {
				return err
			}

			run.Found = 1
			if !req.SaveToDB {
				return nil
			}
			if err := s.repo.Upsert(ctx, mention); err != nil {
				return err
			}
			run.Stored = 1
			return nil
		},
		markFailed: func(ctx context.Context) error {
			return s.repo.MarkFailed(ctx, req.SetNumber)
		},
	})
}

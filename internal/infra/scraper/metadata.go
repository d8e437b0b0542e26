package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/parser"
	"brickwatch/internal/repository"
)

// MetadataConfig holds the metadata site's source settings.
type MetadataConfig struct {
	// SearchURLTemplate builds the search page for a set number with one %s
	// verb, e.g. "https://meta.example/search?q=%s".
	SearchURLTemplate string

	// Domain keys the rate limiter. Defaults to the search URL host.
	Domain string
}

// MetadataScraper scrapes the set-metadata site in two hops: a search page
// resolves the set number to its product URL, then the product page is
// fetched and parsed. Both hops live inside one attempt, so a failing second
// hop costs one attempt, not two. Each hop is still its own rate-limit wait
// and raw-payload row.
type MetadataScraper struct {
	engine *Engine
	repo   repository.MetadataRepository
	config MetadataConfig
}

// NewMetadataScraper creates the metadata site worker.
func NewMetadataScraper(engine *Engine, repo repository.MetadataRepository, config MetadataConfig) *MetadataScraper {
	if config.Domain == "" {
		if u, err := url.Parse(fmt.Sprintf(config.SearchURLTemplate, "0")); err == nil {
			config.Domain = u.Host
		}
	}
	return &MetadataScraper{engine: engine, repo: repo, config: config}
}

// Source implements Scraper.
func (s *MetadataScraper) Source() entity.Source {
	return entity.SourceMetadataSite
}

// SearchURL builds the search page URL for a set number.
func (s *MetadataScraper) SearchURL(setNumber string) string {
	return fmt.Sprintf(s.config.SearchURLTemplate, url.QueryEscape(setNumber))
}

// Scrape resolves a set number through search and upserts its metadata. A
// search with no matching product link is the site's not-found signal: the
// set is parked for re-check far in the future instead of retried.
func (s *MetadataScraper) Scrape(ctx context.Context, req Request) Result {
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
			searchPage, err := run.FetchPage(ctx, searchURL)
			if err != nil {
				return err
			}

			productURL, err := parser.ParseMetadataSearch([]byte(searchPage.Body), searchPage.FinalURL, req.SetNumber)
			if err != nil {
				return err
			}

			productPage, err := run.FetchPage(ctx, productURL)
			if err != nil {
				return err
			}

			record, err := parser.ParseMetadataProduct([]byte(productPage.Body), productPage.FinalURL)
			if err != nil {
				return err
			}
			logIdentifierMismatch(s.Source(), req.SetNumber, record.SetNumber)

			run.Found = 1
			if !req.SaveToDB {
				return nil
			}

			if err := s.repo.Upsert(ctx, record); err != nil {
				return err
			}
			run.Stored = 1

			// image bookkeeping never fails a scrape
			status := run.Image(ctx, record.SetNumber, record.ImageURL)
			if err := s.repo.SetImageStatus(ctx, record.SetNumber, status); err != nil {
				slog.Warn("storing image status failed",
					slog.String("set_number", record.SetNumber),
					slog.Any("error", err))
			}
			return nil
		},
		markNotFound: func(ctx context.Context, nextScrapeAt time.Time) error {
			return s.repo.MarkNotFound(ctx, req.SetNumber, nextScrapeAt)
		},
		markFailed: func(ctx context.Context) error {
			return s.repo.MarkFailed(ctx, req.SetNumber)
		},
	})
}

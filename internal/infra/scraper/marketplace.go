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

// MarketplaceConfig holds the marketplace worker's source settings.
type MarketplaceConfig struct {
	// BaseURL is the catalog root, e.g. "https://marketplace.example".
	BaseURL string

	// Domain keys the rate limiter. Defaults to the BaseURL host.
	Domain string

	// WaitForSelector is the element the browser waits for before the page
	// counts as rendered.
	WaitForSelector string
}

// MarketplaceScraper scrapes per-item price-guide pages. Item pages only
// render their price tables client-side, so this source always fetches in
// browser mode.
type MarketplaceScraper struct {
	engine *Engine
	repo   repository.MarketplaceRepository
	config MarketplaceConfig
}

// NewMarketplaceScraper creates the marketplace worker.
func NewMarketplaceScraper(engine *Engine, repo repository.MarketplaceRepository, config MarketplaceConfig) *MarketplaceScraper {
	if config.Domain == "" {
		if u, err := url.Parse(config.BaseURL); err == nil {
			config.Domain = u.Host
		}
	}
	if config.WaitForSelector == "" {
		config.WaitForSelector = ".price-guide"
	}
	return &MarketplaceScraper{engine: engine, repo: repo, config: config}
}

// Source implements Scraper.
func (s *MarketplaceScraper) Source() entity.Source {
	return entity.SourceMarketplace
}

// ItemURL builds the catalog item-page URL for an identifier. Item pages are
// addressed by kind-specific query keys: ?S=75192-1, ?M=sw0547, and so on.
func (s *MarketplaceScraper) ItemURL(itemID string, itemType entity.ItemType) string {
	if !itemType.Valid() {
		itemType = entity.ItemTypeSet
	}
	return fmt.Sprintf("%s/catalog/catalogitem.page?%s=%s", s.config.BaseURL, itemType, url.QueryEscape(itemID))
}

// Scrape fetches one item page, upserts its price guide and volume buckets,
// and downloads the catalog image.
func (s *MarketplaceScraper) Scrape(ctx context.Context, req Request) Result {
	if err := entity.ValidateItemID(req.ItemID); err != nil {
		return Result{Err: &InvalidInputError{Source: s.Source(), Reason: err.Error(), Err: err}}
	}

	pageURL := req.URL
	if pageURL == "" {
		pageURL = s.ItemURL(req.ItemID, req.ItemType)
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
		notFoundOn404: true,
		attempt: func(ctx context.Context, run *Run) error {
			page, err := run.FetchPageWait(ctx, pageURL, s.config.WaitForSelector)
			if err != nil {
				return err
			}

			record, volumes, err := parser.ParseMarketplacePage([]byte(page.Body), page.FinalURL)
			if err != nil {
				return err
			}
			logIdentifierMismatch(s.Source(), req.ItemID, record.ItemID)

			run.Found = 1
			if !req.SaveToDB {
				return nil
			}

			if err := s.repo.Upsert(ctx, record, volumes); err != nil {
				return err
			}
			run.Stored = 1

			// image bookkeeping never fails a scrape
			status := run.Image(ctx, record.ItemID, record.ImageURL)
			if err := s.repo.SetImageStatus(ctx, record.ItemID, status); err != nil {
				slog.Warn("storing image status failed",
					slog.String("item_id", record.ItemID),
					slog.Any("error", err))
			}
			return nil
		},
		markNotFound: func(ctx context.Context, nextScrapeAt time.Time) error {
			return s.repo.MarkNotFound(ctx, req.ItemID, nextScrapeAt)
		},
		markFailed: func(ctx context.Context) error {
			return s.repo.MarkFailed(ctx, req.ItemID)
		},
	})
}

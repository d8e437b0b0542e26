// Package repository defines the persistence interfaces the pipeline writes
// through. Each external source owns exactly one record table; all of them
// share the scrape-tracking contract (status, last/next scrape timestamps,
// interval), which is what the scheduler and the missing-data detector query.
package repository

import (
	"context"
	"time"

	"brickwatch/internal/domain/entity"
)

// NewItem is a product from the cross-source catalog that has no record in a
// given source table yet. These are enqueued at HIGH priority by the sweep.
type NewItem struct {
	ItemID    string
	ItemType  entity.ItemType
	SetNumber string
	Name      string
}

// MarketplaceRepository stores per-item price-guide records and their sales
// volume buckets, keyed by the marketplace item identifier.
type MarketplaceRepository interface {
	// FindByItemID returns the record for itemID, or (nil, nil) when absent.
	FindByItemID(ctx context.Context, itemID string) (*entity.MarketplaceRecord, error)

	// Upsert inserts or updates the record and replaces its volume buckets.
	// Non-nil payload fields win; nil price fields leave the stored value
	// alone. Sets lastScrapedAt=now, nextScrapeAt=now+interval, status=success.
	Upsert(ctx context.Context, record *entity.MarketplaceRecord, volumes []entity.SalesVolume) error

	// MarkFailed flags the record failed without advancing nextScrapeAt, so
	// the next sweep retries it.
	MarkFailed(ctx context.Context, itemID string) error

	// MarkNotFound records that the marketplace has no such item and parks
	// the row until nextScrapeAt. The row must persist so the scheduler does
	// not re-queue it across restarts.
	MarkNotFound(ctx context.Context, itemID string, nextScrapeAt time.Time) error

	// SetImageStatus stores the outcome of the post-upsert image download.
	SetImageStatus(ctx context.Context, itemID string, status entity.ImageStatus) error

	// FindItemsNeedingScraping returns active records due for a scrape:
	// nextScrapeAt <= now, or never scraped. Rows parked by MarkNotFound are
	// excluded until their horizon passes.
	FindItemsNeedingScraping(ctx context.Context) ([]*entity.MarketplaceRecord, error)

	// FindNewItems returns catalog products with no marketplace record yet.
	FindNewItems(ctx context.Context) ([]NewItem, error)

	// FindItemIDsMissingVolumes returns successfully scraped items that have
	// no sales-volume buckets, for the missing-data detector.
	FindItemIDsMissingVolumes(ctx context.Context) ([]string, error)
}

// RetirementRepository stores the retirement tracker's records. The tracker
// is scraped as one batch covering every theme, so the write side is
// batch-shaped and staleness is judged for the table as a whole.
type RetirementRepository interface {
	// FindBySetNumber returns the record for setNumber, or (nil, nil).
	FindBySetNumber(ctx context.Context, setNumber string) (*entity.RetirementRecord, error)

	// BatchUpsert inserts or updates every record from one tracker page.
	BatchUpsert(ctx context.Context, records []entity.RetirementRecord) (*entity.BatchUpsertResult, error)

	// MarkAllInactiveExcept deactivates previously active sets that were
	// absent from the latest batch. Returns how many rows were deactivated.
	MarkAllInactiveExcept(ctx context.Context, setNumbers []string) (int64, error)

	// MarkFailed flags the whole table's tracking row as failed.
	MarkFailed(ctx context.Context) error

	// DueForScrape reports whether the tracker page is due: no rows yet, or
	// the most recent scrape is older than the configured cadence.
	DueForScrape(ctx context.Context) (bool, error)
}

// MetadataRepository stores set metadata, keyed by set number. Populated via
// the two-hop search-then-product scrape.
type MetadataRepository interface {
	FindBySetNumber(ctx context.Context, setNumber string) (*entity.MetadataRecord, error)

	Upsert(ctx context.Context, record *entity.MetadataRecord) error

	MarkFailed(ctx context.Context, setNumber string) error

	// MarkNotFound parks a set number the metadata site's search does not
	// know, until nextScrapeAt.
	MarkNotFound(ctx context.Context, setNumber string, nextScrapeAt time.Time) error

	SetImageStatus(ctx context.Context, setNumber string, status entity.ImageStatus) error

	FindItemsNeedingScraping(ctx context.Context) ([]*entity.MetadataRecord, error)

	// FindNewItems returns catalog products carrying a set number that have
	// no metadata record yet.
	FindNewItems(ctx context.Context) ([]NewItem, error)
}

// RedditRepository stores community-board mention aggregates per set number.
type RedditRepository interface {
	FindBySetNumber(ctx context.Context, setNumber string) (*entity.RedditMention, error)

	Upsert(ctx context.Context, record *entity.RedditMention) error

	MarkFailed(ctx context.Context, setNumber string) error

	FindItemsNeedingScraping(ctx context.Context) ([]*entity.RedditMention, error)

	FindNewItems(ctx context.Context) ([]NewItem, error)
}

// RetailRepository stores listings parsed from user-pasted retail pages.
// Never scheduler-driven, so it carries no needs-scraping query.
type RetailRepository interface {
	FindByProductID(ctx context.Context, productID string) (*entity.RetailListing, error)

	BatchUpsert(ctx context.Context, listings []entity.RetailListing) (*entity.BatchUpsertResult, error)
}

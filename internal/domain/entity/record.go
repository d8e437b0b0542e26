package entity

import "time"

// ScrapeStatus is the per-record scraping state machine.
type ScrapeStatus string

const (
	// ScrapeStatusPending marks a record that has never been scraped.
	ScrapeStatusPending ScrapeStatus = "pending"

	// ScrapeStatusSuccess marks a record whose last scrape stored data.
	ScrapeStatusSuccess ScrapeStatus = "success"

	// ScrapeStatusFailed marks a record whose last scrape failed; the
	// scheduler retries it on the next sweep (NextScrapeAt is not advanced).
	ScrapeStatusFailed ScrapeStatus = "failed"

	// ScrapeStatusNotFound marks a record the source confirmed does not
	// exist; it is re-checked on a long horizon (NotFoundRetryDays).
	ScrapeStatusNotFound ScrapeStatus = "not_found"
)

// NotFoundRetryDays is the re-check horizon applied when a source reports an
// item as genuinely absent. The row persists so the scheduler does not
// re-queue it across restarts.
const NotFoundRetryDays = 90

// ImageStatus records the outcome of the image download triggered on upsert.
// Image failures never fail a scrape.
type ImageStatus string

const (
	ImageStatusSuccess ImageStatus = "success"
	ImageStatusFailed  ImageStatus = "failed"
	ImageStatusSkipped ImageStatus = "skipped"
)

// ScrapeTracking carries the scheduling columns shared by every source table.
// Invariant: NextScrapeAt = LastScrapedAt + ScrapeIntervalDays when status is
// success or not_found; when status is failed, NextScrapeAt is left behind so
// the next sweep retries immediately.
type ScrapeTracking struct {
	ScrapeStatus       ScrapeStatus
	LastScrapedAt      *time.Time
	NextScrapeAt       *time.Time
	ScrapeIntervalDays int
}

// Product is a row in the cross-source product catalog. It is the anchor for
// new-identifier discovery and for the missing-data detector; each source
// table is keyed by its own natural key and joined back through here.
type Product struct {
	ID        int64
	ItemID    string
	ItemType  ItemType
	SetNumber string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// MarketplaceRecord is the upsert target for marketplace price-guide pages,
// keyed by the marketplace's own item identifier.
// Price fields are integer cents; nil means the source did not publish the value.
type MarketplaceRecord struct {
	ItemID   string
	ItemType ItemType
	Name     string

	NewMinCents  *int64
	NewAvgCents  *int64
	NewMaxCents  *int64
	UsedMinCents *int64
	UsedAvgCents *int64
	UsedMaxCents *int64

	ImageURL    string
	ImageStatus ImageStatus
	IsActive    bool

	ScrapeTracking
}

// SalesVolume is one volume bucket for a marketplace item: how many times it
// sold and the total quantity moved, per condition, over the guide period.
type SalesVolume struct {
	ItemID       string
	Condition    string // "new" or "used"
	TimesSold    int
	TotalQty     int
	PeriodMonths int
}

// RetirementRecord is the upsert target for the retirement tracker, keyed by
// set number. The tracker is scraped as one batch covering every theme; sets
// that drop off the page are marked inactive rather than deleted.
type RetirementRecord struct {
	SetNumber string
	Name      string
	Theme     string
	Status    string // e.g. "available", "retiring_soon", "retired"

	ExpectedRetirementAt *time.Time
	IsActive             bool

	ScrapeTracking
}

// MetadataRecord is the upsert target for the set-metadata site, keyed by set
// number. Populated via a two-hop scrape (search page, then product page).
type MetadataRecord struct {
	SetNumber string
	Name      string
	Theme     string
	Subtheme  string

	Year     *int
	Pieces   *int
	Minifigs *int
	RRPCents *int64
	Rating   *float64

	ProductURL  string
	ImageURL    string
	ImageStatus ImageStatus

	ScrapeTracking
}

// RedditMention aggregates community-board search results for a set number.
type RedditMention struct {
	SetNumber    string
	MentionCount int
	LastPostAt   *time.Time
	TopPostTitle string
	TopPostURL   string
	TopPostScore int

	ScrapeTracking
}

// RetailListing is one product card parsed out of a user-pasted retail page,
// keyed by the retailer's product identifier.
type RetailListing struct {
	ProductID  string
	Name       string
	PriceCents int64
	SoldCount  int
	ShopName   string
	SourceURL  string

	ScrapeTracking
}

// BatchUpsertResult summarizes a multi-item upsert.
type BatchUpsertResult struct {
	Created int
	Updated int
	Total   int
}

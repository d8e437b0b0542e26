// Package postgres implements the repository interfaces against PostgreSQL.
//
// All writes are single-statement ON CONFLICT upserts, so concurrent scrapes
// of the same identifier are idempotent (last write wins on non-null fields).
// Every repository method wraps errors with its own name.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type MarketplaceRepo struct{ db DB }

func NewMarketplaceRepo(db DB) repository.MarketplaceRepository {
	return &MarketplaceRepo{db: db}
}

const marketplaceColumns = `
item_id, item_type, name,
new_min_cents, new_avg_cents, new_max_cents,
used_min_cents, used_avg_cents, used_max_cents,
image_url, image_status, is_active,
scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days`

func scanMarketplace(row interface{ Scan(...any) error }) (*entity.MarketplaceRecord, error) {
	var rec entity.MarketplaceRecord
	var status string
	err := row.Scan(
		&rec.ItemID, &rec.ItemType, &rec.Name,
		&rec.NewMinCents, &rec.NewAvgCents, &rec.NewMaxCents,
		&rec.UsedMinCents, &rec.UsedAvgCents, &rec.UsedMaxCents,
		&rec.ImageURL, &rec.ImageStatus, &rec.IsActive,
		&status, &rec.LastScrapedAt, &rec.NextScrapeAt, &rec.ScrapeIntervalDays,
	)
	if err != nil {
		return nil, err
	}
	rec.ScrapeStatus = entity.ScrapeStatus(status)
	return &rec, nil
}

func (repo *MarketplaceRepo) FindByItemID(ctx context.Context, itemID string) (*entity.MarketplaceRecord, error) {
	query := `SELECT ` + marketplaceColumns + `
FROM marketplace_records
WHERE item_id = $1
LIMIT 1`
	rec, err := scanMarketplace(repo.db.QueryRowContext(ctx, query, itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByItemID: %w", err)
	}
	return rec, nil
}

// Upsert stores one scraped price-guide record and replaces its volume
// buckets inside a single transaction. COALESCE keeps previously stored
// prices when the latest page omitted them.
func (repo *MarketplaceRepo) Upsert(ctx context.Context, record *entity.MarketplaceRecord, volumes []entity.SalesVolume) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Upsert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
INSERT INTO marketplace_records (
    item_id, item_type, name,
    new_min_cents, new_avg_cents, new_max_cents,
    used_min_cents, used_avg_cents, used_max_cents,
    image_url, is_active,
    scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE,
          'success', now(), now() + make_interval(days => $11), $11, now())
ON CONFLICT (item_id) DO UPDATE SET
    item_type            = EXCLUDED.item_type,
    name                 = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE marketplace_records.name END,
    new_min_cents        = COALESCE(EXCLUDED.new_min_cents,  marketplace_records.new_min_cents),
    new_avg_cents        = COALESCE(EXCLUDED.new_avg_cents,  marketplace_records.new_avg_cents),
    new_max_cents        = COALESCE(EXCLUDED.new_max_cents,  marketplace_records.new_max_cents),
    used_min_cents       = COALESCE(EXCLUDED.used_min_cents, marketplace_records.used_min_cents),
    used_avg_cents       = COALESCE(EXCLUDED.used_avg_cents, marketplace_records.used_avg_cents),
    used_max_cents       = COALESCE(EXCLUDED.used_max_cents, marketplace_records.used_max_cents),
    image_url            = CASE WHEN EXCLUDED.image_url <> '' THEN EXCLUDED.image_url ELSE marketplace_records.image_url END,
    is_active            = TRUE,
    scrape_status        = 'success',
    last_scraped_at      = now(),
    next_scrape_at       = now() + make_interval(days => $11),
    scrape_interval_days = $11,
    updated_at           = now()`
	if _, err := tx.ExecContext(ctx, upsert,
		record.ItemID, record.ItemType, record.Name,
		record.NewMinCents, record.NewAvgCents, record.NewMaxCents,
		record.UsedMinCents, record.UsedAvgCents, record.UsedMaxCents,
		record.ImageURL, record.ScrapeIntervalDays,
	); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sales_volumes WHERE item_id = $1`, record.ItemID); err != nil {
		return fmt.Errorf("Upsert: clear volumes: %w", err)
	}
	const insertVolume = `
INSERT INTO sales_volumes (item_id, condition, times_sold, total_qty, period_months)
VALUES ($1, $2, $3, $4, $5)`
	for _, v := range volumes {
		if _, err := tx.ExecContext(ctx, insertVolume,
			record.ItemID, v.Condition, v.TimesSold, v.TotalQty, v.PeriodMonths); err != nil {
			return fmt.Errorf("Upsert: volume: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Upsert: commit: %w", err)
	}
	return nil
}

func (repo *MarketplaceRepo) MarkFailed(ctx context.Context, itemID string) error {
	const query = `
UPDATE marketplace_records
SET scrape_status = 'failed', updated_at = now()
WHERE item_id = $1`
	if _, err := repo.db.ExecContext(ctx, query, itemID); err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

// MarkNotFound upserts so that an item that never produced a record still
// gets a persistent not_found row; without it the next sweep would discover
// the product again and re-queue an item the marketplace does not carry.
func (repo *MarketplaceRepo) MarkNotFound(ctx context.Context, itemID string, nextScrapeAt time.Time) error {
	const query = `
INSERT INTO marketplace_records (
    item_id, item_type, name, is_active,
    scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days, updated_at
) VALUES ($1, 'S', '', TRUE, 'not_found', now(), $2, $3, now())
ON CONFLICT (item_id) DO UPDATE SET
    scrape_status        = 'not_found',
    last_scraped_at      = now(),
    next_scrape_at       = $2,
    scrape_interval_days = $3,
    updated_at           = now()`
	if _, err := repo.db.ExecContext(ctx, query, itemID, nextScrapeAt, entity.NotFoundRetryDays); err != nil {
		return fmt.Errorf("MarkNotFound: %w", err)
	}
	return nil
}

func (repo *MarketplaceRepo) SetImageStatus(ctx context.Context, itemID string, status entity.ImageStatus) error {
	const query = `
UPDATE marketplace_records
SET image_status = $1, updated_at = now()
WHERE item_id = $2`
	if _, err := repo.db.ExecContext(ctx, query, string(status), itemID); err != nil {
		return fmt.Errorf("SetImageStatus: %w", err)
	}
	return nil
}

// FindItemsNeedingScraping returns active records due for a refresh. A row
// whose next_scrape_at lies in the future is never returned, regardless of
// status; this is what keeps not_found rows parked for their 90-day horizon.
func (repo *MarketplaceRepo) FindItemsNeedingScraping(ctx context.Context) ([]*entity.MarketplaceRecord, error) {
	query := `SELECT ` + marketplaceColumns + `
FROM marketplace_records
WHERE is_active = TRUE
  AND (next_scrape_at IS NULL OR next_scrape_at <= now())
ORDER BY next_scrape_at ASC NULLS FIRST`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindItemsNeedingScraping: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*entity.MarketplaceRecord, 0, 64)
	for rows.Next() {
		rec, err := scanMarketplace(rows)
		if err != nil {
			return nil, fmt.Errorf("FindItemsNeedingScraping: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (repo *MarketplaceRepo) FindNewItems(ctx context.Context) ([]repository.NewItem, error) {
	const query = `
SELECT p.item_id, p.item_type, p.set_number, p.name
FROM products p
LEFT JOIN marketplace_records m ON m.item_id = p.item_id
WHERE p.is_active = TRUE AND m.item_id IS NULL
ORDER BY p.id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindNewItems: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]repository.NewItem, 0, 32)
	for rows.Next() {
		var it repository.NewItem
		if err := rows.Scan(&it.ItemID, &it.ItemType, &it.SetNumber, &it.Name); err != nil {
			return nil, fmt.Errorf("FindNewItems: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (repo *MarketplaceRepo) FindItemIDsMissingVolumes(ctx context.Context) ([]string, error) {
	const query = `
SELECT m.item_id
FROM marketplace_records m
LEFT JOIN sales_volumes v ON v.item_id = m.item_id
WHERE m.scrape_status = 'success' AND m.is_active = TRUE AND v.item_id IS NULL
ORDER BY m.item_id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindItemIDsMissingVolumes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("FindItemIDsMissingVolumes: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

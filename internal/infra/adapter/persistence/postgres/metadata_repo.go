package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type MetadataRepo struct{ db DB }

func NewMetadataRepo(db DB) repository.MetadataRepository {
	return &MetadataRepo{db: db}
}

const metadataColumns = `
set_number, name, theme, subtheme,
year, pieces, minifigs, rrp_cents, rating,
product_url, image_url, image_status,
scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days`

func scanMetadata(row interface{ Scan(...any) error }) (*entity.MetadataRecord, error) {
	var rec entity.MetadataRecord
	var status string
	err := row.Scan(
		&rec.SetNumber, &rec.Name, &rec.Theme, &rec.Subtheme,
		&rec.Year, &rec.Pieces, &rec.Minifigs, &rec.RRPCents, &rec.Rating,
		&rec.ProductURL, &rec.ImageURL, &rec.ImageStatus,
		&status, &rec.LastScrapedAt, &rec.NextScrapeAt, &rec.ScrapeIntervalDays,
	)
	if err != nil {
		return nil, err
	}
	rec.ScrapeStatus = entity.ScrapeStatus(status)
	return &rec, nil
}

func (repo *MetadataRepo) FindBySetNumber(ctx context.Context, setNumber string) (*entity.MetadataRecord, error) {
	query := `SELECT ` + metadataColumns + `
FROM metadata_records
WHERE set_number = $1
LIMIT 1`
	rec, err := scanMetadata(repo.db.QueryRowContext(ctx, query, setNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindBySetNumber: %w", err)
	}
	return rec, nil
}

func (repo *MetadataRepo) Upsert(ctx context.Context, record *entity.MetadataRecord) error {
	const query = `
INSERT INTO metadata_records (
    set_number, name, theme, subtheme,
    year, pieces, minifigs, rrp_cents, rating,
    product_url, image_url,
    scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
          'success', now(), now() + make_interval(days => $12), $12, now())
ON CONFLICT (set_number) DO UPDATE SET
    name                 = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE metadata_records.name END,
    theme                = CASE WHEN EXCLUDED.theme <> '' THEN EXCLUDED.theme ELSE metadata_records.theme END,
    subtheme             = CASE WHEN EXCLUDED.subtheme <> '' THEN EXCLUDED.subtheme ELSE metadata_records.subtheme END,
    year                 = COALESCE(EXCLUDED.year,      metadata_records.year),
    pieces               = COALESCE(EXCLUDED.pieces,    metadata_records.pieces),
    minifigs             = COALESCE(EXCLUDED.minifigs,  metadata_records.minifigs),
    rrp_cents            = COALESCE(EXCLUDED.rrp_cents, metadata_records.rrp_cents),
    rating               = COALESCE(EXCLUDED.rating,    metadata_records.rating),
    product_url          = CASE WHEN EXCLUDED.product_url <> '' THEN EXCLUDED.product_url ELSE metadata_records.product_url END,
    image_url            = CASE WHEN EXCLUDED.image_url <> '' THEN EXCLUDED.image_url ELSE metadata_records.image_url END,
    scrape_status        = 'success',
    last_scraped_at      = now(),
    next_scrape_at       = now() + make_interval(days => $12),
    scrape_interval_days = $12,
    updated_at           = now()`
	if _, err := repo.db.ExecContext(ctx, query,
		record.SetNumber, record.Name, record.Theme, record.Subtheme,
		record.Year, record.Pieces, record.Minifigs, record.RRPCents, record.Rating,
		record.ProductURL, record.ImageURL, record.ScrapeIntervalDays,
	); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *MetadataRepo) MarkFailed(ctx context.Context, setNumber string) error {
	const query = `
UPDATE metadata_records
SET scrape_status = 'failed', updated_at = now()
WHERE set_number = $1`
	if _, err := repo.db.ExecContext(ctx, query, setNumber); err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

func (repo *MetadataRepo) MarkNotFound(ctx context.Context, setNumber string, nextScrapeAt time.Time) error {
	const query = `
INSERT INTO metadata_records (
    set_number, name, theme, subtheme, product_url, image_url,
    scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days, updated_at
) VALUES ($1, '', '', '', '', '', 'not_found', now(), $2, $3, now())
ON CONFLICT (set_number) DO UPDATE SET
    scrape_status        = 'not_found',
    last_scraped_at      = now(),
    next_scrape_at       = $2,
    scrape_interval_days = $3,
    updated_at           = now()`
	if _, err := repo.db.ExecContext(ctx, query, setNumber, nextScrapeAt, entity.NotFoundRetryDays); err != nil {
		return fmt.Errorf("MarkNotFound: %w", err)
	}
	return nil
}

func (repo *MetadataRepo) SetImageStatus(ctx context.Context, setNumber string, status entity.ImageStatus) error {
	const query = `
UPDATE metadata_records
SET image_status = $1, updated_at = now()
WHERE set_number = $2`
	if _, err := repo.db.ExecContext(ctx, query, string(status), setNumber); err != nil {
		return fmt.Errorf("SetImageStatus: %w", err)
	}
	return nil
}

func (repo *MetadataRepo) FindItemsNeedingScraping(ctx context.Context) ([]*entity.MetadataRecord, error) {
	query := `SELECT ` + metadataColumns + `
FROM metadata_records
WHERE next_scrape_at IS NULL OR next_scrape_at <= now()
ORDER BY next_scrape_at ASC NULLS FIRST`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindItemsNeedingScraping: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*entity.MetadataRecord, 0, 64)
	for rows.Next() {
		rec, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("FindItemsNeedingScraping: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (repo *MetadataRepo) FindNewItems(ctx context.Context) ([]repository.NewItem, error) {
	const query = `
SELECT p.item_id, p.item_type, p.set_number, p.name
FROM products p
LEFT JOIN metadata_records m ON m.set_number = p.set_number
WHERE p.is_active = TRUE AND p.set_number <> '' AND m.set_number IS NULL
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

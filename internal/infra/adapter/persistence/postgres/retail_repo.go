package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type RetailRepo struct{ db DB }

func NewRetailRepo(db DB) repository.RetailRepository {
	return &RetailRepo{db: db}
}

func (repo *RetailRepo) FindByProductID(ctx context.Context, productID string) (*entity.RetailListing, error) {
	const query = `
SELECT product_id, name, price_cents, sold_count, shop_name, source_url,
       scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days
FROM retail_listings
WHERE product_id = $1
LIMIT 1`
	var rec entity.RetailListing
	var status string
	err := repo.db.QueryRowContext(ctx, query, productID).Scan(
		&rec.ProductID, &rec.Name, &rec.PriceCents, &rec.SoldCount,
		&rec.ShopName, &rec.SourceURL,
		&status, &rec.LastScrapedAt, &rec.NextScrapeAt, &rec.ScrapeIntervalDays,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByProductID: %w", err)
	}
	rec.ScrapeStatus = entity.ScrapeStatus(status)
	return &rec, nil
}

// BatchUpsert stores the product cards parsed from one user-pasted page.
func (repo *RetailRepo) BatchUpsert(ctx context.Context, listings []entity.RetailListing) (*entity.BatchUpsertResult, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BatchUpsert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
INSERT INTO retail_listings (
    product_id, name, price_cents, sold_count, shop_name, source_url,
    scrape_status, last_scraped_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, 'success', now(), now())
ON CONFLICT (product_id) DO UPDATE SET
    name            = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE retail_listings.name END,
    price_cents     = EXCLUDED.price_cents,
    sold_count      = EXCLUDED.sold_count,
    shop_name       = CASE WHEN EXCLUDED.shop_name <> '' THEN EXCLUDED.shop_name ELSE retail_listings.shop_name END,
    source_url      = EXCLUDED.source_url,
    scrape_status   = 'success',
    last_scraped_at = now(),
    updated_at      = now()
RETURNING (xmax = 0) AS inserted`

	result := &entity.BatchUpsertResult{}
	for _, l := range listings {
		var inserted bool
		if err := tx.QueryRowContext(ctx, query,
			l.ProductID, l.Name, l.PriceCents, l.SoldCount, l.ShopName, l.SourceURL,
		).Scan(&inserted); err != nil {
			return nil, fmt.Errorf("BatchUpsert: %w", err)
		}
		if inserted {
			result.Created++
		} else {
			result.Updated++
		}
		result.Total++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("BatchUpsert: commit: %w", err)
	}
	return result, nil
}

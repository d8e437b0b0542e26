package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type RedditRepo struct{ db DB }

func NewRedditRepo(db DB) repository.RedditRepository {
	return &RedditRepo{db: db}
}

const redditColumns = `
set_number, mention_count, last_post_at, top_post_title, top_post_url, top_post_score,
scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days`

func scanReddit(row interface{ Scan(...any) error }) (*entity.RedditMention, error) {
	var rec entity.RedditMention
	var status string
	err := row.Scan(
		&rec.SetNumber, &rec.MentionCount, &rec.LastPostAt,
		&rec.TopPostTitle, &rec.TopPostURL, &rec.TopPostScore,
		&status, &rec.LastScrapedAt, &rec.NextScrapeAt, &rec.ScrapeIntervalDays,
	)
	if err != nil {
		return nil, err
	}
	rec.ScrapeStatus = entity.ScrapeStatus(status)
	return &rec, nil
}

func (repo *RedditRepo) FindBySetNumber(ctx context.Context, setNumber string) (*entity.RedditMention, error) {
	query := `SELECT ` + redditColumns + `
FROM reddit_mentions
WHERE set_number = $1
LIMIT 1`
	rec, err := scanReddit(repo.db.QueryRowContext(ctx, query, setNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindBySetNumber: %w", err)
	}
	return rec, nil
}

func (repo *RedditRepo) Upsert(ctx context.Context, record *entity.RedditMention) error {
	const query = `
INSERT INTO reddit_mentions (
    set_number, mention_count, last_post_at, top_post_title, top_post_url, top_post_score,
    scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days, updated_at
) VALUES ($1, $2, $3, $4, $5, $6,
          'success', now(), now() + make_interval(days => $7), $7, now())
ON CONFLICT (set_number) DO UPDATE SET
    mention_count        = EXCLUDED.mention_count,
    last_post_at         = COALESCE(EXCLUDED.last_post_at, reddit_mentions.last_post_at),
    top_post_title       = CASE WHEN EXCLUDED.top_post_title <> '' THEN EXCLUDED.top_post_title ELSE reddit_mentions.top_post_title END,
    top_post_url         = CASE WHEN EXCLUDED.top_post_url <> '' THEN EXCLUDED.top_post_url ELSE reddit_mentions.top_post_url END,
    top_post_score       = EXCLUDED.top_post_score,
    scrape_status        = 'success',
    last_scraped_at      = now(),
    next_scrape_at       = now() + make_interval(days => $7),
    scrape_interval_days = $7,
    updated_at           = now()`
	if _, err := repo.db.ExecContext(ctx, query,
		record.SetNumber, record.MentionCount, record.LastPostAt,
		record.TopPostTitle, record.TopPostURL, record.TopPostScore,
		record.ScrapeIntervalDays,
	); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *RedditRepo) MarkFailed(ctx context.Context, setNumber string) error {
	const query = `
UPDATE reddit_mentions
SET scrape_status = 'failed', updated_at = now()
WHERE set_number = $1`
	if _, err := repo.db.ExecContext(ctx, query, setNumber); err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

func (repo *RedditRepo) FindItemsNeedingScraping(ctx context.Context) ([]*entity.RedditMention, error) {
	query := `SELECT ` + redditColumns + `
FROM reddit_mentions
WHERE next_scrape_at IS NULL OR next_scrape_at <= now()
ORDER BY next_scrape_at ASC NULLS FIRST`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindItemsNeedingScraping: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*entity.RedditMention, 0, 64)
	for rows.Next() {
		rec, err := scanReddit(rows)
		if err != nil {
			return nil, fmt.Errorf("FindItemsNeedingScraping: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (repo *RedditRepo) FindNewItems(ctx context.Context) ([]repository.NewItem, error) {
	const query = `
SELECT p.item_id, p.item_type, p.set_number, p.name
FROM products p
LEFT JOIN reddit_mentions r ON r.set_number = p.set_number
WHERE p.is_active = TRUE AND p.set_number <> '' AND r.set_number IS NULL
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

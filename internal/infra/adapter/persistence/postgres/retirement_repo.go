package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type RetirementRepo struct{ db DB }

func NewRetirementRepo(db DB) repository.RetirementRepository {
	return &RetirementRepo{db: db}
}

const retirementColumns = `
set_number, name, theme, status, expected_retirement_at, is_active,
scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days`

func scanRetirement(row interface{ Scan(...any) error }) (*entity.RetirementRecord, error) {
	var rec entity.RetirementRecord
	var status string
	err := row.Scan(
		&rec.SetNumber, &rec.Name, &rec.Theme, &rec.Status,
		&rec.ExpectedRetirementAt, &rec.IsActive,
		&status, &rec.LastScrapedAt, &rec.NextScrapeAt, &rec.ScrapeIntervalDays,
	)
	if err != nil {
		return nil, err
	}
	rec.ScrapeStatus = entity.ScrapeStatus(status)
	return &rec, nil
}

func (repo *RetirementRepo) FindBySetNumber(ctx context.Context, setNumber string) (*entity.RetirementRecord, error) {
	query := `SELECT ` + retirementColumns + `
FROM retirement_records
WHERE set_number = $1
LIMIT 1`
	rec, err := scanRetirement(repo.db.QueryRowContext(ctx, query, setNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindBySetNumber: %w", err)
	}
	return rec, nil
}

// BatchUpsert stores every record parsed from one tracker page in a single
// transaction. Created/updated counts come from the xmax trick: a row whose
// system column xmax is zero was freshly inserted.
func (repo *RetirementRepo) BatchUpsert(ctx context.Context, records []entity.RetirementRecord) (*entity.BatchUpsertResult, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BatchUpsert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
INSERT INTO retirement_records (
    set_number, name, theme, status, expected_retirement_at, is_active,
    scrape_status, last_scraped_at, next_scrape_at, scrape_interval_days, updated_at
) VALUES ($1, $2, $3, $4, $5, TRUE,
          'success', now(), now() + make_interval(days => $6), $6, now())
ON CONFLICT (set_number) DO UPDATE SET
    name                   = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE retirement_records.name END,
    theme                  = CASE WHEN EXCLUDED.theme <> '' THEN EXCLUDED.theme ELSE retirement_records.theme END,
    status                 = EXCLUDED.status,
    expected_retirement_at = COALESCE(EXCLUDED.expected_retirement_at, retirement_records.expected_retirement_at),
    is_active              = TRUE,
    scrape_status          = 'success',
    last_scraped_at        = now(),
    next_scrape_at         = now() + make_interval(days => $6),
    scrape_interval_days   = $6,
    updated_at             = now()
RETURNING (xmax = 0) AS inserted`

	result := &entity.BatchUpsertResult{}
	for _, rec := range records {
		var inserted bool
		if err := tx.QueryRowContext(ctx, query,
			rec.SetNumber, rec.Name, rec.Theme, rec.Status,
			rec.ExpectedRetirementAt, rec.ScrapeIntervalDays,
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

// MarkAllInactiveExcept deactivates sets that dropped off the latest tracker
// page. Sets are never deleted: a set leaving the tracker usually means it
// retired, and its history stays queryable.
func (repo *RetirementRepo) MarkAllInactiveExcept(ctx context.Context, setNumbers []string) (int64, error) {
	const query = `
UPDATE retirement_records
SET is_active = FALSE, updated_at = now()
WHERE is_active = TRUE AND NOT (set_number = ANY($1))`
	// The pgx stdlib driver encodes []string as a text array.
	res, err := repo.db.ExecContext(ctx, query, setNumbers)
	if err != nil {
		return 0, fmt.Errorf("MarkAllInactiveExcept: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("MarkAllInactiveExcept: %w", err)
	}
	return n, nil
}

// MarkFailed flags every active row, since the tracker scrapes as one batch
// and a failure means the whole table is stale.
func (repo *RetirementRepo) MarkFailed(ctx context.Context) error {
	const query = `
UPDATE retirement_records
SET scrape_status = 'failed', updated_at = now()
WHERE is_active = TRUE`
	if _, err := repo.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

func (repo *RetirementRepo) DueForScrape(ctx context.Context) (bool, error) {
	const query = `
SELECT count(*) = 0 OR coalesce(min(next_scrape_at) <= now(), TRUE)
FROM retirement_records
WHERE is_active = TRUE`
	var due bool
	if err := repo.db.QueryRowContext(ctx, query).Scan(&due); err != nil {
		return false, fmt.Errorf("DueForScrape: %w", err)
	}
	return due, nil
}

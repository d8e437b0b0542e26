package db

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed seeds/products.sql
var seedProductsSQL string

// tables are created in dependency order; sales_volumes references
// marketplace_records and raw_payloads references scrape_sessions.
var tables = []struct {
	name string
	ddl  string
}{
	{"products", `
CREATE TABLE IF NOT EXISTS products (
    id          SERIAL PRIMARY KEY,
    item_id     TEXT NOT NULL UNIQUE,
    item_type   VARCHAR(1) NOT NULL DEFAULT 'S',
    set_number  TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"marketplace_records", `
CREATE TABLE IF NOT EXISTS marketplace_records (
    id                   SERIAL PRIMARY KEY,
    item_id              TEXT NOT NULL UNIQUE,
    item_type            VARCHAR(1) NOT NULL DEFAULT 'S',
    name                 TEXT NOT NULL DEFAULT '',
    new_min_cents        BIGINT,
    new_avg_cents        BIGINT,
    new_max_cents        BIGINT,
    used_min_cents       BIGINT,
    used_avg_cents       BIGINT,
    used_max_cents       BIGINT,
    image_url            TEXT NOT NULL DEFAULT '',
    image_status         VARCHAR(20) NOT NULL DEFAULT 'pending',
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    scrape_status        VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_scraped_at      TIMESTAMPTZ,
    next_scrape_at       TIMESTAMPTZ,
    scrape_interval_days INT NOT NULL DEFAULT 7,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"sales_volumes", `
CREATE TABLE IF NOT EXISTS sales_volumes (
    id            SERIAL PRIMARY KEY,
    item_id       TEXT NOT NULL REFERENCES marketplace_records(item_id) ON DELETE CASCADE,
    condition     VARCHAR(1) NOT NULL,
    times_sold    INT NOT NULL DEFAULT 0,
    total_qty     INT NOT NULL DEFAULT 0,
    period_months INT NOT NULL DEFAULT 6,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"retirement_records", `
CREATE TABLE IF NOT EXISTS retirement_records (
    id                     SERIAL PRIMARY KEY,
    set_number             TEXT NOT NULL UNIQUE,
    name                   TEXT NOT NULL DEFAULT '',
    theme                  TEXT NOT NULL DEFAULT '',
    status                 VARCHAR(30) NOT NULL DEFAULT '',
    expected_retirement_at TIMESTAMPTZ,
    is_active              BOOLEAN NOT NULL DEFAULT TRUE,
    scrape_status          VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_scraped_at        TIMESTAMPTZ,
    next_scrape_at         TIMESTAMPTZ,
    scrape_interval_days   INT NOT NULL DEFAULT 7,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"metadata_records", `
CREATE TABLE IF NOT EXISTS metadata_records (
    id                   SERIAL PRIMARY KEY,
    set_number           TEXT NOT NULL UNIQUE,
    name                 TEXT NOT NULL DEFAULT '',
    theme                TEXT NOT NULL DEFAULT '',
    subtheme             TEXT NOT NULL DEFAULT '',
    year                 INT,
    pieces               INT,
    minifigs             INT,
    rrp_cents            BIGINT,
    rating               NUMERIC(4,2),
    product_url          TEXT NOT NULL DEFAULT '',
    image_url            TEXT NOT NULL DEFAULT '',
    image_status         VARCHAR(20) NOT NULL DEFAULT 'pending',
    scrape_status        VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_scraped_at      TIMESTAMPTZ,
    next_scrape_at       TIMESTAMPTZ,
    scrape_interval_days INT NOT NULL DEFAULT 30,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"reddit_mentions", `
CREATE TABLE IF NOT EXISTS reddit_mentions (
    id                   SERIAL PRIMARY KEY,
    set_number           TEXT NOT NULL UNIQUE,
    mention_count        INT NOT NULL DEFAULT 0,
    last_post_at         TIMESTAMPTZ,
    top_post_title       TEXT NOT NULL DEFAULT '',
    top_post_url         TEXT NOT NULL DEFAULT '',
    top_post_score       INT NOT NULL DEFAULT 0,
    scrape_status        VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_scraped_at      TIMESTAMPTZ,
    next_scrape_at       TIMESTAMPTZ,
    scrape_interval_days INT NOT NULL DEFAULT 14,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"retail_listings", `
CREATE TABLE IF NOT EXISTS retail_listings (
    id                   SERIAL PRIMARY KEY,
    product_id           TEXT NOT NULL UNIQUE,
    name                 TEXT NOT NULL DEFAULT '',
    price_cents          BIGINT,
    sold_count           INT NOT NULL DEFAULT 0,
    shop_name            TEXT NOT NULL DEFAULT '',
    source_url           TEXT NOT NULL DEFAULT '',
    scrape_status        VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_scraped_at      TIMESTAMPTZ,
    next_scrape_at       TIMESTAMPTZ,
    scrape_interval_days INT NOT NULL DEFAULT 7,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"scrape_sessions", `
CREATE TABLE IF NOT EXISTS scrape_sessions (
    id              TEXT PRIMARY KEY,
    source          VARCHAR(30) NOT NULL,
    source_url      TEXT NOT NULL DEFAULT '',
    status          VARCHAR(20) NOT NULL,
    products_found  INT NOT NULL DEFAULT 0,
    products_stored INT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`},

	{"raw_payloads", `
CREATE TABLE IF NOT EXISTS raw_payloads (
    id              SERIAL PRIMARY KEY,
    session_id      TEXT NOT NULL REFERENCES scrape_sessions(id) ON DELETE CASCADE,
    source          VARCHAR(30) NOT NULL,
    source_url      TEXT NOT NULL DEFAULT '',
    compressed_body BYTEA NOT NULL,
    content_type    TEXT NOT NULL DEFAULT '',
    http_status     INT NOT NULL DEFAULT 0,
    scraped_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
}

// indexes cover the sweep and detector queries: due-item scans order by
// next_scrape_at, gap scans join on the natural keys.
var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active) WHERE is_active = TRUE`,
	`CREATE INDEX IF NOT EXISTS idx_products_set_number ON products(set_number)`,
	`CREATE INDEX IF NOT EXISTS idx_marketplace_next_scrape ON marketplace_records(next_scrape_at) WHERE is_active = TRUE`,
	`CREATE INDEX IF NOT EXISTS idx_sales_volumes_item_id ON sales_volumes(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_retirement_next_scrape ON retirement_records(next_scrape_at) WHERE is_active = TRUE`,
	`CREATE INDEX IF NOT EXISTS idx_metadata_next_scrape ON metadata_records(next_scrape_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reddit_next_scrape ON reddit_mentions(next_scrape_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON scrape_sessions(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_payloads_session_id ON raw_payloads(session_id)`,
}

// MigrateUp creates the full schema and seeds the starter catalog. Every
// statement is idempotent, so the worker and the API can both run it on boot.
func MigrateUp(db *sql.DB) error {
	for _, table := range tables {
		if _, err := db.Exec(table.ddl); err != nil {
			return fmt.Errorf("create %s: %w", table.name, err)
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if _, err := db.Exec(seedProductsSQL); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	return nil
}

// MigrateDown drops the whole schema in reverse dependency order.
// Use with caution: this deletes all scraped data.
func MigrateDown(db *sql.DB) error {
	drops := []string{
		`DROP TABLE IF EXISTS raw_payloads`,
		`DROP TABLE IF EXISTS scrape_sessions`,
		`DROP TABLE IF EXISTS retail_listings`,
		`DROP TABLE IF EXISTS reddit_mentions`,
		`DROP TABLE IF EXISTS metadata_records`,
		`DROP TABLE IF EXISTS retirement_records`,
		`DROP TABLE IF EXISTS sales_volumes`,
		`DROP TABLE IF EXISTS marketplace_records`,
		`DROP TABLE IF EXISTS products`,
	}
	for _, stmt := range drops {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

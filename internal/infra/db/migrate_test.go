package db

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUp_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, table := range []string{
		"products", "marketplace_records", "sales_volumes", "retirement_records",
		"metadata_records", "reddit_mentions", "retail_listings", "scrape_sessions",
		"raw_payloads",
	} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	for range indexes {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	mock.ExpectExec("INSERT INTO products").
		WillReturnResult(sqlmock.NewResult(0, 5))

	err = MigrateUp(db)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_TableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").
		WillReturnError(errors.New("permission denied"))

	err = MigrateUp(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create products")
}

func TestMigrateUp_SeedError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for range tables {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for range indexes {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO products").
		WillReturnError(errors.New("disk full"))

	err = MigrateUp(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed products")
}

func TestMigrateDown_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, table := range []string{
		"raw_payloads", "scrape_sessions", "retail_listings", "reddit_mentions",
		"metadata_records", "retirement_records", "sales_volumes",
		"marketplace_records", "products",
	} {
		mock.ExpectExec("DROP TABLE IF EXISTS " + table).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = MigrateDown(db)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

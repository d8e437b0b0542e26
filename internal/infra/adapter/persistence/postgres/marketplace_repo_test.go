package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"brickwatch/internal/domain/entity"
	pg "brickwatch/internal/infra/adapter/persistence/postgres"
)

func marketplaceRow(rec *entity.MarketplaceRecord) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"item_id", "item_type", "name",
		"new_min_cents", "new_avg_cents", "new_max_cents",
		"used_min_cents", "used_avg_cents", "used_max_cents",
		"image_url", "image_status", "is_active",
		"scrape_status", "last_scraped_at", "next_scrape_at", "scrape_interval_days",
	}).AddRow(
		rec.ItemID, rec.ItemType, rec.Name,
		rec.NewMinCents, rec.NewAvgCents, rec.NewMaxCents,
		rec.UsedMinCents, rec.UsedAvgCents, rec.UsedMaxCents,
		rec.ImageURL, rec.ImageStatus, rec.IsActive,
		string(rec.ScrapeStatus), rec.LastScrapedAt, rec.NextScrapeAt, rec.ScrapeIntervalDays,
	)
}

func TestMarketplaceRepo_FindByItemID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	next := now.AddDate(0, 0, 7)
	avg := int64(84999)
	want := &entity.MarketplaceRecord{
		ItemID: "75192-1", ItemType: entity.ItemTypeSet, Name: "Millennium Falcon",
		NewAvgCents: &avg, ImageStatus: entity.ImageStatusSuccess, IsActive: true,
		ScrapeTracking: entity.ScrapeTracking{
			ScrapeStatus:       entity.ScrapeStatusSuccess,
			LastScrapedAt:      &now,
			NextScrapeAt:       &next,
			ScrapeIntervalDays: 7,
		},
	}

	mock.ExpectQuery("FROM marketplace_records").
		WithArgs("75192-1").
		WillReturnRows(marketplaceRow(want))

	repo := pg.NewMarketplaceRepo(db)
	got, err := repo.FindByItemID(context.Background(), "75192-1")
	if err != nil {
		t.Fatalf("FindByItemID err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarketplaceRepo_FindByItemID_Absent(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("FROM marketplace_records").
		WithArgs("nope-1").
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}))

	repo := pg.NewMarketplaceRepo(db)
	got, err := repo.FindByItemID(context.Background(), "nope-1")
	if err != nil {
		t.Fatalf("FindByItemID err=%v", err)
	}
	if got != nil {
		t.Fatalf("want nil for absent row, got %+v", got)
	}
}

func TestMarketplaceRepo_Upsert_ReplacesVolumes(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	avg := int64(84999)
	rec := &entity.MarketplaceRecord{
		ItemID: "75192-1", ItemType: entity.ItemTypeSet, Name: "Millennium Falcon",
		NewAvgCents:    &avg,
		ScrapeTracking: entity.ScrapeTracking{ScrapeIntervalDays: 7},
	}
	volumes := []entity.SalesVolume{
		{ItemID: "75192-1", Condition: "new", TimesSold: 120, TotalQty: 134, PeriodMonths: 6},
		{ItemID: "75192-1", Condition: "used", TimesSold: 41, TotalQty: 44, PeriodMonths: 6},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO marketplace_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sales_volumes")).
		WithArgs("75192-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sales_volumes")).
		WithArgs("75192-1", "new", 120, 134, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sales_volumes")).
		WithArgs("75192-1", "used", 41, 44, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := pg.NewMarketplaceRepo(db)
	if err := repo.Upsert(context.Background(), rec, volumes); err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarketplaceRepo_MarkNotFound_UpsertsRow(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	horizon := time.Now().AddDate(0, 0, entity.NotFoundRetryDays)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO marketplace_records")).
		WithArgs("77243-1", horizon, entity.NotFoundRetryDays).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewMarketplaceRepo(db)
	if err := repo.MarkNotFound(context.Background(), "77243-1", horizon); err != nil {
		t.Fatalf("MarkNotFound err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarketplaceRepo_FindItemsNeedingScraping_FiltersFutureRows(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	// Only the due row comes back; the SQL filter keeps parked not_found
	// rows out, which the query text must express.
	due := &entity.MarketplaceRecord{
		ItemID: "10294-1", ItemType: entity.ItemTypeSet, Name: "Titanic", IsActive: true,
		ScrapeTracking: entity.ScrapeTracking{ScrapeStatus: entity.ScrapeStatusSuccess, ScrapeIntervalDays: 7},
	}
	mock.ExpectQuery("next_scrape_at IS NULL OR next_scrape_at <= now()").
		WillReturnRows(marketplaceRow(due))

	repo := pg.NewMarketplaceRepo(db)
	got, err := repo.FindItemsNeedingScraping(context.Background())
	if err != nil {
		t.Fatalf("FindItemsNeedingScraping err=%v", err)
	}
	if len(got) != 1 || got[0].ItemID != "10294-1" {
		t.Fatalf("want one due row, got %+v", got)
	}
}

func TestMarketplaceRepo_FindNewItems(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("LEFT JOIN marketplace_records").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "item_type", "set_number", "name"}).
			AddRow("76434-1", "S", "76434", "Alpine Lodge"))

	repo := pg.NewMarketplaceRepo(db)
	items, err := repo.FindNewItems(context.Background())
	if err != nil {
		t.Fatalf("FindNewItems err=%v", err)
	}
	if len(items) != 1 || items[0].ItemID != "76434-1" || items[0].SetNumber != "76434" {
		t.Fatalf("unexpected items %+v", items)
	}
}

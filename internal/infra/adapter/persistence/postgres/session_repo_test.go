package postgres_test

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sony/gobreaker"

	"brickwatch/internal/domain/entity"
	pg "brickwatch/internal/infra/adapter/persistence/postgres"
	"brickwatch/internal/resilience/circuitbreaker"
)

func TestSessionRepo_OpenClose(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scrape_sessions")).
		WithArgs(sqlmock.AnyArg(), "marketplace", "https://marketplace.example/catalog/catalogitem.page?S=75192-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewSessionRepo(db)
	id, err := repo.Open(context.Background(), entity.SourceMarketplace,
		"https://marketplace.example/catalog/catalogitem.page?S=75192-1")
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	if id == "" {
		t.Fatal("Open returned empty session id")
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scrape_sessions")).
		WithArgs("success", 1, 1, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Close(context.Background(), id, entity.SessionStatusSuccess, 1, 1); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionRepo_CloseUnknownSession(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scrape_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := pg.NewSessionRepo(db)
	err := repo.Close(context.Background(), "missing", entity.SessionStatusFailed, 0, 0)
	if err == nil {
		t.Fatal("want error closing unknown session")
	}
}

func TestSessionRepo_OpenCircuitShortCircuitsQueries(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	// one failure trips this breaker
	guarded := circuitbreaker.NewDBCircuitBreakerWithConfig(db, circuitbreaker.Config{
		Name:             "database",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1.0,
		MinRequests:      1,
	})
	repo := pg.NewSessionRepo(guarded)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scrape_sessions")).
		WillReturnError(errors.New("connection refused"))

	if _, err := repo.Open(context.Background(), entity.SourceMarketplace, "https://marketplace.example"); err == nil {
		t.Fatal("want error from dead database")
	}

	// circuit is now open; the retry must be refused before the pool
	_, err := repo.Open(context.Background(), entity.SourceMarketplace, "https://marketplace.example")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("want ErrOpenState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRawPayloadRepo_SaveCompresses(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	body := []byte("<html><body>price guide</body></html>")
	var stored []byte
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_payloads")).
		WithArgs("sess-1", "marketplace", "https://marketplace.example/x",
			payloadCapture{&stored}, "text/html", 200).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := pg.NewRawPayloadRepo(db)
	err := repo.Save(context.Background(), "sess-1", entity.SourceMarketplace,
		"https://marketplace.example/x", body, "text/html", 200)
	if err != nil {
		t.Fatalf("Save err=%v", err)
	}

	round, err := pg.Decompress(stored)
	if err != nil {
		t.Fatalf("Decompress err=%v", err)
	}
	if !bytes.Equal(round, body) {
		t.Fatalf("round trip mismatch: got %q", round)
	}
}

// payloadCapture matches any []byte argument and keeps a copy for assertions.
type payloadCapture struct{ dst *[]byte }

func (c payloadCapture) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if ok {
		*c.dst = append([]byte(nil), b...)
	}
	return ok
}

func TestCompressRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("x"),
		bytes.Repeat([]byte("<div>75192</div>"), 4096),
	}
	for _, body := range cases {
		compressed, err := pg.Compress(body)
		if err != nil {
			t.Fatalf("Compress err=%v", err)
		}
		round, err := pg.Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress err=%v", err)
		}
		if !bytes.Equal(round, body) {
			t.Fatalf("round trip mismatch for %d bytes", len(body))
		}
	}
}

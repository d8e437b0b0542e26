package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newHealthDeps(t *testing.T) (*HealthHandler, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &HealthHandler{DB: db, Redis: client, Version: "test"}, mock, mr
}

func TestHealthHandler_Healthy(t *testing.T) {
	h, mock, _ := newHealthDeps(t)
	mock.ExpectPing()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["redis"].Status != "healthy" {
		t.Errorf("redis check = %q, want healthy", resp.Checks["redis"].Status)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q", resp.Version)
	}
}

func TestHealthHandler_RedisDownIsUnhealthy(t *testing.T) {
	h, mock, mr := newHealthDeps(t)
	mock.ExpectPing()
	mr.Close()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Checks["redis"].Status != "unhealthy" {
		t.Errorf("redis check = %q, want unhealthy", resp.Checks["redis"].Status)
	}
}

func TestHealthHandler_MissingDepsAreUnhealthy(t *testing.T) {
	h := &HealthHandler{Version: "test"}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Checks["database"].Message != "not configured" {
		t.Errorf("database message = %q", resp.Checks["database"].Message)
	}
}

func TestReadyHandler(t *testing.T) {
	h, mock, _ := newHealthDeps(t)
	ready := &ReadyHandler{DB: h.DB, Redis: h.Redis}
	mock.ExpectPing()

	rec := httptest.NewRecorder()
	ready.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ready" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestReadyHandler_RedisDown(t *testing.T) {
	h, mock, mr := newHealthDeps(t)
	ready := &ReadyHandler{DB: h.DB, Redis: h.Redis}
	mock.ExpectPing()
	mr.Close()

	rec := httptest.NewRecorder()
	ready.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	(&LiveHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "alive" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

package scraper_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/fetcher"
	"brickwatch/internal/infra/scraper"
	"brickwatch/internal/repository"
	"brickwatch/internal/resilience/retry"
)

// scriptedFetcher replays a fixed sequence of fetch outcomes.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   []fetchStep
	requests []fetcher.Request
}

type fetchStep struct {
	result *fetcher.Result
	err    error
}

func respondWith(body string) fetchStep {
	return fetchStep{result: &fetcher.Result{Body: body, StatusCode: 200, ContentType: "text/html"}}
}

func failWith(err error) fetchStep {
	return fetchStep{err: err}
}

func httpStatus(code int) error {
	return &retry.HTTPError{StatusCode: code, Message: fmt.Sprintf("unexpected status: %d", code)}
}

func (f *scriptedFetcher) Fetch(_ context.Context, req fetcher.Request) (*fetcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.script) == 0 {
		return nil, fmt.Errorf("scriptedFetcher: no step for request %d", len(f.requests))
	}
	step := f.script[0]
	f.script = f.script[1:]
	if step.err != nil {
		return nil, step.err
	}
	result := *step.result
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}
	return &result, nil
}

func (f *scriptedFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// countingLimiter records which domains were paced.
type countingLimiter struct {
	mu      sync.Mutex
	domains []string
}

func (l *countingLimiter) WaitForNextRequest(_ context.Context, domain string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains = append(l.domains, domain)
	return nil
}

// stubBreaker is an in-memory stand-in for the Redis-shared breaker.
type stubBreaker struct {
	mu        sync.Mutex
	open      bool
	successes int
	failures  int
}

func (b *stubBreaker) IsOpen(context.Context, string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, nil
}

func (b *stubBreaker) RecordSuccess(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes++
	return nil
}

func (b *stubBreaker) RecordFailure(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	return nil
}

// fakeSessions records Open/Close calls in memory.
type fakeSessions struct {
	mu     sync.Mutex
	opened int
	closed []closedSession
}

type closedSession struct {
	id     string
	status entity.SessionStatus
	found  int
	stored int
}

func (s *fakeSessions) Open(context.Context, entity.Source, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return fmt.Sprintf("session-%d", s.opened), nil
}

func (s *fakeSessions) Close(_ context.Context, sessionID string, status entity.SessionStatus, found, stored int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, closedSession{id: sessionID, status: status, found: found, stored: stored})
	return nil
}

// fakePayloads records raw-payload saves.
type fakePayloads struct {
	mu    sync.Mutex
	saved []savedPayload
}

type savedPayload struct {
	sessionID string
	source    entity.Source
	url       string
	body      []byte
	status    int
}

func (p *fakePayloads) Save(_ context.Context, sessionID string, source entity.Source, sourceURL string, body []byte, _ string, httpStatus int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, savedPayload{sessionID: sessionID, source: source, url: sourceURL, body: body, status: httpStatus})
	return nil
}

// fastRetry keeps the three-attempt budget but sleeps microseconds.
func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestEngine(f fetcher.Fetcher, breaker scraper.Breaker) (*scraper.Engine, *countingLimiter, *fakeSessions, *fakePayloads) {
	limiter := &countingLimiter{}
	sessions := &fakeSessions{}
	payloads := &fakePayloads{}
	engine := &scraper.Engine{
		Limiter:     limiter,
		Breaker:     breaker,
		Fetcher:     f,
		Sessions:    sessions,
		Payloads:    payloads,
		RetryConfig: fastRetry(),
	}
	return engine, limiter, sessions, payloads
}

// fakeMarketplaceRepo implements repository.MarketplaceRepository in memory.
type fakeMarketplaceRepo struct {
	mu            sync.Mutex
	upserts       []*entity.MarketplaceRecord
	volumes       [][]entity.SalesVolume
	failed        []string
	notFound      map[string]time.Time
	imageStatuses map[string]entity.ImageStatus
}

func newFakeMarketplaceRepo() *fakeMarketplaceRepo {
	return &fakeMarketplaceRepo{
		notFound:      make(map[string]time.Time),
		imageStatuses: make(map[string]entity.ImageStatus),
	}
}

func (r *fakeMarketplaceRepo) FindByItemID(context.Context, string) (*entity.MarketplaceRecord, error) {
	return nil, nil
}

func (r *fakeMarketplaceRepo) Upsert(_ context.Context, record *entity.MarketplaceRecord, volumes []entity.SalesVolume) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, record)
	r.volumes = append(r.volumes, volumes)
	return nil
}

func (r *fakeMarketplaceRepo) MarkFailed(_ context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, itemID)
	return nil
}

func (r *fakeMarketplaceRepo) MarkNotFound(_ context.Context, itemID string, nextScrapeAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound[itemID] = nextScrapeAt
	return nil
}

func (r *fakeMarketplaceRepo) SetImageStatus(_ context.Context, itemID string, status entity.ImageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imageStatuses[itemID] = status
	return nil
}

func (r *fakeMarketplaceRepo) FindItemsNeedingScraping(context.Context) ([]*entity.MarketplaceRecord, error) {
	return nil, nil
}

func (r *fakeMarketplaceRepo) FindNewItems(context.Context) ([]repository.NewItem, error) {
	return nil, nil
}

func (r *fakeMarketplaceRepo) FindItemIDsMissingVolumes(context.Context) ([]string, error) {
	return nil, nil
}

// fakeMetadataRepo implements repository.MetadataRepository in memory.
type fakeMetadataRepo struct {
	mu            sync.Mutex
	upserts       []*entity.MetadataRecord
	failed        []string
	notFound      map[string]time.Time
	imageStatuses map[string]entity.ImageStatus
}

func newFakeMetadataRepo() *fakeMetadataRepo {
	return &fakeMetadataRepo{
		notFound:      make(map[string]time.Time),
		imageStatuses: make(map[string]entity.ImageStatus),
	}
}

func (r *fakeMetadataRepo) FindBySetNumber(context.Context, string) (*entity.MetadataRecord, error) {
	return nil, nil
}

func (r *fakeMetadataRepo) Upsert(_ context.Context, record *entity.MetadataRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, record)
	return nil
}

func (r *fakeMetadataRepo) MarkFailed(_ context.Context, setNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, setNumber)
	return nil
}

func (r *fakeMetadataRepo) MarkNotFound(_ context.Context, setNumber string, nextScrapeAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound[setNumber] = nextScrapeAt
	return nil
}

func (r *fakeMetadataRepo) SetImageStatus(_ context.Context, setNumber string, status entity.ImageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imageStatuses[setNumber] = status
	return nil
}

func (r *fakeMetadataRepo) FindItemsNeedingScraping(context.Context) ([]*entity.MetadataRecord, error) {
	return nil, nil
}

func (r *fakeMetadataRepo) FindNewItems(context.Context) ([]repository.NewItem, error) {
	return nil, nil
}

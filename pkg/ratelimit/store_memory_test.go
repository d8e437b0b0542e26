package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// MockClock is a controllable clock for tests. Sleep advances the clock
// instead of blocking, so paced waits resolve instantly.
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Advance(d)
	return nil
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestInMemoryStore_ReserveSlot_MinInterval(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(now)
	store := NewInMemoryStore(InMemoryStoreConfig{Clock: clock})

	rule := Rule{MinInterval: 240 * time.Second}

	wait, err := store.ReserveSlot(ctx, "marketplace.example.com", rule)
	if err != nil {
		t.Fatalf("first ReserveSlot: %v", err)
	}
	if wait != 0 {
		t.Fatalf("first request should be granted immediately, got wait %v", wait)
	}

	wait, err = store.ReserveSlot(ctx, "marketplace.example.com", rule)
	if err != nil {
		t.Fatalf("second ReserveSlot: %v", err)
	}
	if wait != 240*time.Second {
		t.Errorf("immediate retry should wait the full gap, got %v", wait)
	}

	clock.Advance(100 * time.Second)
	wait, err = store.ReserveSlot(ctx, "marketplace.example.com", rule)
	if err != nil {
		t.Fatalf("partial-gap ReserveSlot: %v", err)
	}
	if wait != 140*time.Second {
		t.Errorf("partial elapsed gap should wait the remainder, got %v", wait)
	}

	clock.Advance(140 * time.Second)
	wait, err = store.ReserveSlot(ctx, "marketplace.example.com", rule)
	if err != nil {
		t.Fatalf("post-gap ReserveSlot: %v", err)
	}
	if wait != 0 {
		t.Errorf("request after the gap should be granted, got wait %v", wait)
	}
}

func TestInMemoryStore_ReserveSlot_IndependentDomains(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := NewInMemoryStore(InMemoryStoreConfig{Clock: clock})

	rule := Rule{MinInterval: time.Minute}

	if wait, _ := store.ReserveSlot(ctx, "a.example.com", rule); wait != 0 {
		t.Fatalf("first grant on a: wait %v", wait)
	}
	// Another domain is not paced by a's grant.
	if wait, _ := store.ReserveSlot(ctx, "b.example.com", rule); wait != 0 {
		t.Errorf("first grant on b should not wait, got %v", wait)
	}
}

func TestInMemoryStore_ReserveSlot_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	store := NewInMemoryStore(InMemoryStoreConfig{Clock: clock})

	rule := Rule{
		MinInterval:  time.Second,
		MaxPerWindow: 3,
		Window:       time.Hour,
	}

	for i := 0; i < 3; i++ {
		wait, err := store.ReserveSlot(ctx, "marketplace.example.com", rule)
		if err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
		if wait != 0 {
			t.Fatalf("grant %d should be immediate, got wait %v", i, wait)
		}
		clock.Advance(time.Minute)
	}

	// Window is full; the wait runs until the oldest grant leaves the window.
	wait, err := store.ReserveSlot(ctx, "marketplace.example.com", rule)
	if err != nil {
		t.Fatalf("fourth ReserveSlot: %v", err)
	}
	if want := 57 * time.Minute; wait != want {
		t.Errorf("full window should defer until oldest expiry, got %v want %v", wait, want)
	}

	clock.Advance(57*time.Minute + time.Second)
	wait, err = store.ReserveSlot(ctx, "marketplace.example.com", rule)
	if err != nil {
		t.Fatalf("post-window ReserveSlot: %v", err)
	}
	if wait != 0 {
		t.Errorf("slot should free up once the oldest grant ages out, got wait %v", wait)
	}
}

func TestInMemoryStore_ReserveSlot_ZeroRuleAlwaysGrants(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(InMemoryStoreConfig{Clock: NewMockClock(time.Now())})

	for i := 0; i < 5; i++ {
		wait, err := store.ReserveSlot(ctx, "anything.example.com", Rule{})
		if err != nil {
			t.Fatalf("ReserveSlot %d: %v", i, err)
		}
		if wait != 0 {
			t.Errorf("zero rule should never defer, got wait %v", wait)
		}
	}
}

func TestInMemoryStore_ReserveSlot_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewInMemoryStore(InMemoryStoreConfig{})
	if _, err := store.ReserveSlot(ctx, "x.example.com", Rule{MinInterval: time.Second}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

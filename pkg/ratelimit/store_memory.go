package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, single-process implementation of Store.
//
// It is intended for tests and for running the pipeline without Redis.
// State is lost on restart, so pacing starts fresh after every boot.
type InMemoryStore struct {
	mu      sync.Mutex
	domains map[string]*domainState
	clock   Clock
}

// domainState holds pacing state for a single domain.
type domainState struct {
	last   time.Time
	grants []time.Time
}

// InMemoryStoreConfig holds configuration for InMemoryStore.
type InMemoryStoreConfig struct {
	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock Clock
}

// NewInMemoryStore creates a new in-memory pacing store.
func NewInMemoryStore(config InMemoryStoreConfig) *InMemoryStore {
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}
	return &InMemoryStore{
		domains: make(map[string]*domainState),
		clock:   config.Clock,
	}
}

// ReserveSlot atomically checks both pacing gates for key and records the
// grant when the slot is free.
//
// The minimum-interval gate is checked first, then the sliding window. On a
// deferral the returned duration is the exact time until the blocking gate
// would clear, assuming no competing grants in between.
func (s *InMemoryStore) ReserveSlot(ctx context.Context, key string, rule Rule) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	state, exists := s.domains[key]
	if !exists {
		state = &domainState{}
		s.domains[key] = state
	}

	if rule.MinInterval > 0 && !state.last.IsZero() {
		if gap := now.Sub(state.last); gap < rule.MinInterval {
			return rule.MinInterval - gap, nil
		}
	}

	if rule.MaxPerWindow > 0 {
		cutoff := now.Add(-rule.Window)
		valid := state.grants[:0]
		for _, ts := range state.grants {
			if ts.After(cutoff) {
				valid = append(valid, ts)
			}
		}
		state.grants = valid

		if len(state.grants) >= rule.MaxPerWindow {
			oldest := state.grants[0]
			return oldest.Add(rule.Window).Sub(now), nil
		}
		state.grants = append(state.grants, now)
	}

	state.last = now
	return 0, nil
}

// Reset clears all pacing state. Intended for tests.
func (s *InMemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains = make(map[string]*domainState)
}

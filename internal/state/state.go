// Package state holds per-user lifetime-value accumulators for one batch run.
package state

import (
	"fmt"
	"sort"
	"sync"
)

// LifetimeState is the accumulated purchase total of one user.
type LifetimeState struct {
	Total   float64
	Count   int64
	LastSeq int64
}

// Store abstracts the accumulator backend. Apply is idempotent per (key, seq):
// a seq at or below the key's LastSeq is skipped, so replaying a batch in the
// same order leaves the totals unchanged.
type Store interface {
	Apply(key string, amount float64, seq int64) (applied bool, newState LifetimeState, err error)
	Get(key string) (LifetimeState, bool)
	Range(fn func(key string, st LifetimeState) error) error
	Close() error
}

// InMemoryStore is a simple thread-safe map store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]LifetimeState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]LifetimeState)}
}

func (s *InMemoryStore) Apply(key string, amount float64, seq int64) (bool, LifetimeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[key]
	if seq <= st.LastSeq {
		return false, st, nil
	}
	st.Total += amount
	st.Count++
	st.LastSeq = seq
	s.data[key] = st
	return true, st, nil
}

func (s *InMemoryStore) Get(key string) (LifetimeState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[key]
	return st, ok
}

// Range visits keys in ascending order.
func (s *InMemoryStore) Range(fn func(key string, st LifetimeState) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	snapshot := make(map[string]LifetimeState, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

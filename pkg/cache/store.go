package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// completenessStore is the backing table for a cache adapter's
// CompletenessTable. Exactly one implementation is chosen at construction
// (New) and held as this interface for the adapter's lifetime — Children
// never inspects Mode itself, only ever calling through this interface, so
// the hot path carries no per-call mode branch (spec §4.4.3).
type completenessStore interface {
	// Get returns the entry for key and whether it was present. In Safe
	// mode, a hit also moves the entry to MRU position.
	Get(key Key) (Entry, bool)

	// Set inserts or replaces the entry for key, reporting whether an
	// existing entry had to be evicted to make room (always false in Fast
	// mode, which enforces no size bound).
	Set(key Key, entry Entry) (evicted bool)

	// Remove deletes the entry for key, if present.
	Remove(key Key)

	// Len reports the current entry count.
	Len() int
}

// safeStore is the Safe-mode backing store: an LRU-ordered table with
// eviction enabled, bounded by max_entries.
type safeStore struct {
	lru *lru.Cache[Key, Entry]
}

func newSafeStore(maxEntries int) (*safeStore, error) {
	c, err := lru.New[Key, Entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &safeStore{lru: c}, nil
}

func (s *safeStore) Get(key Key) (Entry, bool) {
	return s.lru.Get(key)
}

func (s *safeStore) Set(key Key, entry Entry) bool {
	return s.lru.Add(key, entry)
}

func (s *safeStore) Remove(key Key) {
	s.lru.Remove(key)
}

func (s *safeStore) Len() int {
	return s.lru.Len()
}

// fastStore is the Fast-mode backing store: an unordered map with no
// eviction path and no size enforcement, trading memory bounds for a
// smaller critical section (spec §5, "shared-resource policy").
type fastStore struct {
	mu sync.RWMutex
	m  map[Key]Entry
}

func newFastStore() *fastStore {
	return &fastStore{m: make(map[Key]Entry)}
}

func (s *fastStore) Get(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	return e, ok
}

func (s *fastStore) Set(key Key, entry Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry
	return false
}

func (s *fastStore) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *fastStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

var (
	_ completenessStore = (*safeStore)(nil)
	_ completenessStore = (*fastStore)(nil)
)

// Package session keeps the per-chat and per-user state the bot needs
// between updates: conversation history, the last prompt of each chat,
// pending inline queries, transcripts, and per-chat serialization.
package session

import (
	"sync"
	"time"
)

// item is a stored value with its last access time.
type item[V any] struct {
	value      V
	lastActive time.Time
}

// Store is a concurrency-safe, in-memory map whose entries expire after a
// period of inactivity. The `now` function is injectable for deterministic
// testing.
type Store[V any] struct {
	mu    sync.RWMutex
	items map[string]*item[V]

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewStore creates an empty Store.
func NewStore[V any]() *Store[V] {
	return &Store[V]{
		items: make(map[string]*item[V]),
		now:   time.Now,
	}
}

// Get returns the value for key and refreshes its last access time.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	it.lastActive = s.now()
	return it.value, true
}

// Set stores value under key.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = &item[V]{value: value, lastActive: s.now()}
}

// Update replaces the value under key with fn(current, found) atomically.
func (s *Store[V]) Update(key string, fn func(current V, found bool) V) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	var current V
	if ok {
		current = it.value
	}
	next := fn(current, ok)
	s.items[key] = &item[V]{value: next, lastActive: s.now()}
	return next
}

// Take removes and returns the value for key.
func (s *Store[V]) Take(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(s.items, key)
	return it.value, true
}

// Delete removes key. It is a no-op if the key does not exist.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Prune removes entries idle for longer than maxIdle and returns the
// number removed.
func (s *Store[V]) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for key, it := range s.items {
		if now.Sub(it.lastActive) > maxIdle {
			delete(s.items, key)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

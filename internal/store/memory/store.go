// Package memory provides the default in-process store backend. Entries with
// a TTL are evicted lazily on read, so an expired message is never returned.
package memory

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	fields    map[string]string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memStore implements the store contract with a single mutex-guarded map.
type memStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty in-memory store.
func NewStore() *memStore {
	return &memStore{entries: make(map[string]entry)}
}

// Put inserts or overwrites the fields under key. A positive ttl makes the
// entry disappear after that window; zero or negative means no expiry.
func (s *memStore) Put(key string, fields map[string]string, ttl time.Duration) error {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{fields: copied, expiresAt: expiresAt}
	return nil
}

// GetAllWithPrefix returns every live entry whose key starts with prefix.
// Expired entries encountered during the scan are removed.
func (s *memStore) GetAllWithPrefix(prefix string) (map[string]map[string]string, error) {
	now := time.Now()
	result := make(map[string]map[string]string)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		fields := make(map[string]string, len(e.fields))
		for k, v := range e.fields {
			fields[k] = v
		}
		result[key] = fields
	}

	return result, nil
}

// Delete removes the entry under key. No-op if absent.
func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *memStore) Close() error {
	return nil
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dgellow/authgate/internal/log"
)

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	key       Key
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in a map. It is the default backend and the one
// used by tests; entries do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key.Encode()]
	if !ok || expired(s.now(), e.expiresAt) {
		return nil, ErrNotFound
	}
	return cloneBytes(e.value), nil
}

// Set implements Store
func (s *MemoryStore) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key.Encode()] = memoryEntry{
		key:       append(Key(nil), key...),
		value:     cloneBytes(value),
		expiresAt: expiresAt(s.now(), ttl),
	}
	return nil
}

// Take implements Store
func (s *MemoryStore) Take(_ context.Context, key Key) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := key.Encode()
	e, ok := s.entries[encoded]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, encoded)
	if expired(s.now(), e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.value, nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key.Encode())
	return nil
}

// List implements Store. Entries are returned in encoded key order.
func (s *MemoryStore) List(_ context.Context, prefix Key) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var entries []Entry
	for _, e := range s.entries {
		if !e.key.HasPrefix(prefix) || expired(now, e.expiresAt) {
			continue
		}
		entries = append(entries, Entry{
			Key:       append(Key(nil), e.key...),
			Value:     cloneBytes(e.value),
			ExpiresAt: e.expiresAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Encode() < entries[j].Key.Encode()
	})
	return entries, nil
}

// CleanupExpired implements Store
func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for k, e := range s.entries {
		if expired(now, e.expiresAt) {
			delete(s.entries, k)
			count++
		}
	}

	if count > 0 {
		log.LogTraceWithFields("memory", "Removed expired entries", map[string]any{
			"count":     count,
			"remaining": len(s.entries),
		})
	}
	return count, nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

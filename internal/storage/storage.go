package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when a key has no live entry
var ErrNotFound = errors.New("key not found")

// Key is a composite key such as {"oauth_state", stateKey}. The first part is
// the namespace the entry belongs to.
type Key []string

// Namespace returns the first key part
func (k Key) Namespace() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Encode flattens the key into a single string usable as a map key, a
// Firestore document ID or a SQLite primary key. Every part is escaped so
// the ":" separator is unambiguous.
func (k Key) Encode() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = url.QueryEscape(p)
	}
	return strings.Join(parts, ":")
}

// HasPrefix reports whether prefix is a leading subsequence of k
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return "[" + strings.Join(k, ", ") + "]"
}

// DecodeKey reverses Key.Encode
func DecodeKey(encoded string) (Key, error) {
	parts := strings.Split(encoded, ":")
	key := make(Key, len(parts))
	for i, p := range parts {
		part, err := url.QueryUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("decoding key %q: %w", encoded, err)
		}
		key[i] = part
	}
	return key, nil
}

func validateKey(key Key) error {
	if len(key) == 0 {
		return fmt.Errorf("key must have at least one part")
	}
	for _, p := range key {
		if p == "" {
			return fmt.Errorf("key %s has an empty part", key)
		}
	}
	return nil
}

// Entry is a stored value together with its expiry
type Entry struct {
	Key       Key
	Value     []byte
	ExpiresAt time.Time // zero when the entry never expires
}

func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(now, expiresAt time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Store is the durable key-value store shared by every stateful component.
// Implementations provide read-your-writes consistency and atomic
// single-key writes; nothing spans more than one key.
type Store interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set writes value under key. A ttl <= 0 stores the entry without expiry.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// Take atomically reads and deletes key, returning ErrNotFound when absent.
	// Used for single-use records.
	Take(ctx context.Context, key Key) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List returns all live entries whose key starts with prefix
	List(ctx context.Context, prefix Key) ([]Entry, error)

	// CleanupExpired removes expired entries and returns how many were removed
	CleanupExpired(ctx context.Context) (int, error)

	Close() error
}

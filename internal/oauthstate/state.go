// Package oauthstate binds a browser to a pending authorization request.
//
// Sign-in issues two independent random tokens. The stateKey goes to the
// browser in an HttpOnly cookie; the stateValue is sent to the provider as the
// OAuth "state" parameter and kept server-side under the stateKey. A callback
// is only accepted when the browser presents the stateKey whose stored value
// equals the returned state, and each pending state can be consumed once.
package oauthstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/storage"
)

// Namespace is the store namespace for pending states
const Namespace = "oauth_state"

var (
	// ErrMissingStateKey is returned when the browser presented no state key cookie
	ErrMissingStateKey = errors.New("state key is missing")
	// ErrStateNotFound covers both expired and never-issued state keys
	ErrStateNotFound = errors.New("state not found")
	// ErrStateMismatch is returned when the returned state differs from the stored one
	ErrStateMismatch = errors.New("state mismatch")
)

// Manager issues and consumes pending authorization states
type Manager struct {
	store storage.Store
	ttl   time.Duration
}

// NewManager creates a state manager writing to store with the given TTL
func NewManager(store storage.Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

// TTL is how long a pending state stays valid
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func key(stateKey string) storage.Key {
	return storage.Key{Namespace, stateKey}
}

// Begin allocates a stateKey/stateValue pair and records the binding
func (m *Manager) Begin(ctx context.Context) (stateKey, stateValue string, err error) {
	stateKey, err = crypto.GenerateSecureToken()
	if err != nil {
		return "", "", fmt.Errorf("generating state key: %w", err)
	}
	stateValue, err = crypto.GenerateSecureToken()
	if err != nil {
		return "", "", fmt.Errorf("generating state value: %w", err)
	}

	if err := m.store.Set(ctx, key(stateKey), []byte(stateValue), m.ttl); err != nil {
		return "", "", fmt.Errorf("storing state: %w", err)
	}

	log.LogTraceWithFields("oauthstate", "Pending state created", map[string]any{
		"ttl": m.ttl.String(),
	})
	return stateKey, stateValue, nil
}

// ValidateAndConsume checks returnedState against the value bound to
// stateKey. The binding is removed whenever it is found, whether or not the
// values match.
func (m *Manager) ValidateAndConsume(ctx context.Context, stateKey, returnedState string) error {
	if stateKey == "" {
		return ErrMissingStateKey
	}

	stored, err := m.store.Take(ctx, key(stateKey))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrStateNotFound
	}
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	if !crypto.EqualTokens(string(stored), returnedState) {
		return ErrStateMismatch
	}
	return nil
}

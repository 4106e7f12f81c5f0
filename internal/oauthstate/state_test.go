package oauthstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgellow/authgate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginStoresBinding(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store, 10*time.Minute)

	stateKey, stateValue, err := m.Begin(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stateKey)
	assert.NotEmpty(t, stateValue)
	assert.NotEqual(t, stateKey, stateValue)

	stored, err := store.Get(ctx, storage.Key{Namespace, stateKey})
	require.NoError(t, err)
	assert.Equal(t, stateValue, string(stored))

	entries, err := store.List(ctx, storage.Key{Namespace})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].ExpiresAt.IsZero())
}

func TestBeginIssuesDistinctStates(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemoryStore(), time.Minute)

	k1, v1, err := m.Begin(ctx)
	require.NoError(t, err)
	k2, v2, err := m.Begin(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, v1, v2)

	// Each browser's state only validates with its own key
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, k1, v2), ErrStateMismatch)
	assert.NoError(t, m.ValidateAndConsume(ctx, k2, v2))
}

func TestValidateAndConsume(t *testing.T) {
	tests := []struct {
		name     string
		stateKey func(issued string) string
		returned func(issued string) string
		wantErr  error
	}{
		{
			name:     "match",
			stateKey: func(k string) string { return k },
			returned: func(v string) string { return v },
		},
		{
			name:     "missing_state_key",
			stateKey: func(string) string { return "" },
			returned: func(v string) string { return v },
			wantErr:  ErrMissingStateKey,
		},
		{
			name:     "unknown_state_key",
			stateKey: func(string) string { return "never-issued" },
			returned: func(v string) string { return v },
			wantErr:  ErrStateNotFound,
		},
		{
			name:     "mismatch",
			stateKey: func(k string) string { return k },
			returned: func(string) string { return "forged" },
			wantErr:  ErrStateMismatch,
		},
		{
			name:     "empty_returned_state",
			stateKey: func(k string) string { return k },
			returned: func(string) string { return "" },
			wantErr:  ErrStateMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(storage.NewMemoryStore(), time.Minute)
			stateKey, stateValue, err := m.Begin(ctx)
			require.NoError(t, err)

			err = m.ValidateAndConsume(ctx, tt.stateKey(stateKey), tt.returned(stateValue))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemoryStore(), time.Minute)
	stateKey, stateValue, err := m.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, m.ValidateAndConsume(ctx, stateKey, stateValue))
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, stateKey, stateValue), ErrStateNotFound)
}

func TestMismatchConsumesState(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemoryStore(), time.Minute)
	stateKey, stateValue, err := m.Begin(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, m.ValidateAndConsume(ctx, stateKey, "forged"), ErrStateMismatch)
	// The genuine state can no longer be used after a forged attempt
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, stateKey, stateValue), ErrStateNotFound)
}

type failingStore struct {
	storage.Store
}

func (failingStore) Set(context.Context, storage.Key, []byte, time.Duration) error {
	return errors.New("store unavailable")
}

func (failingStore) Take(context.Context, storage.Key) ([]byte, error) {
	return nil, errors.New("store unavailable")
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	m := NewManager(failingStore{Store: storage.NewMemoryStore()}, time.Minute)

	_, _, err := m.Begin(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing state")

	err = m.ValidateAndConsume(ctx, "key", "value")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)
	assert.Contains(t, err.Error(), "loading state")
}

func TestExpiredStateIsNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemoryStore(), time.Millisecond)
	stateKey, stateValue, err := m.Begin(ctx)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, stateKey, stateValue), ErrStateNotFound)
}

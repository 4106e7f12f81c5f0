package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgellow/authgate/internal/cookie"
	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	sealer, err := crypto.NewSealer(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)
	signer := crypto.NewValueSigner(bytes.Repeat([]byte("s"), 32))
	return NewManager(store, cookie.NewJar(true), signer, sealer, 7*24*time.Hour), store
}

// requestWithCookies replays the cookies a recorder received onto a new request
func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestStartSetsSignedCookie(t *testing.T) {
	m, _ := newTestManager(t)

	rec := httptest.NewRecorder()
	id, err := m.Start(rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "__Host-oauth-session", cookies[0].Name)
	assert.NotEqual(t, id, cookies[0].Value)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookies[0].MaxAge)

	got, ok := m.SessionID(requestWithCookies(rec))
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestSessionIDRejectsForgedCookie(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		name  string
		value string
	}{
		{name: "unsigned", value: "some-session-id"},
		{name: "bad_signature", value: "some-session-id.AAAA"},
		{name: "empty", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "__Host-oauth-session", Value: tt.value})
			_, ok := m.SessionID(req)
			assert.False(t, ok)
		})
	}

	_, ok := m.SessionID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestEstablishCurrentTerminate(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	rec := httptest.NewRecorder()
	id, err := m.Start(rec)
	require.NoError(t, err)

	_, ok, err := m.CurrentEmail(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "no email before establish")

	require.NoError(t, m.Establish(ctx, id, "a@b.com"))

	email, ok, err := m.CurrentEmail(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a@b.com", email)

	entries, err := store.List(ctx, storage.Key{EmailNamespace})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `"a@b.com"`, jsonField(t, entries[0].Value, "email"))
	assert.False(t, entries[0].ExpiresAt.IsZero())

	out := httptest.NewRecorder()
	require.NoError(t, m.Terminate(ctx, out, id))

	_, ok, err = m.CurrentEmail(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	cleared := map[string]int{}
	for _, c := range out.Result().Cookies() {
		cleared[c.Name] = c.MaxAge
	}
	assert.Equal(t, map[string]int{
		"__Host-oauth-session":   -1,
		"__Host-oauth-state-key": -1,
	}, cleared)
}

func TestTerminateWithoutSessionClearsCookies(t *testing.T) {
	m, _ := newTestManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Terminate(context.Background(), rec, ""))
	assert.Len(t, rec.Result().Cookies(), 2)
}

func TestTokenHandoff(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	token := &oauth2.Token{AccessToken: "access-123", TokenType: "Bearer", RefreshToken: "refresh-456"}
	require.NoError(t, m.StashTokens(ctx, "sid", token))

	raw, err := store.Get(ctx, storage.Key{TokensNamespace, "sid"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-123", "tokens are encrypted at rest")

	got, err := m.TakeTokens(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "access-123", got.AccessToken)
	assert.Equal(t, "refresh-456", got.RefreshToken)

	_, err = m.TakeTokens(ctx, "sid")
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestTokensBoundToSession(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	require.NoError(t, m.StashTokens(ctx, "sid-1", &oauth2.Token{AccessToken: "x"}))

	// Moving the sealed record under another session ID must not decrypt
	raw, err := store.Take(ctx, storage.Key{TokensNamespace, "sid-1"})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, storage.Key{TokensNamespace, "sid-2"}, raw, time.Minute))

	_, err = m.TakeTokens(ctx, "sid-2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTokens)
}

func TestTerminateDeletesPendingTokens(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.StashTokens(ctx, "sid", &oauth2.Token{AccessToken: "x"}))
	require.NoError(t, m.Terminate(ctx, httptest.NewRecorder(), "sid"))

	_, err := m.TakeTokens(ctx, "sid")
	assert.ErrorIs(t, err, ErrNoTokens)
}

func jsonField(t *testing.T, data []byte, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return string(m[field])
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.Establish(ctx, "old", "a@b.com"))
	require.NoError(t, m.Discard(ctx, "old"))

	_, ok, err := m.CurrentEmail(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

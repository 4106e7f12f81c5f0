// Package session maps an opaque session identifier, carried in a signed
// cookie, to the email of the user it was established for.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/authgate/internal/cookie"
	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/emailutil"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/storage"
	"golang.org/x/oauth2"
)

// Store namespaces
const (
	EmailNamespace  = "user_email"
	TokensNamespace = "oauth_tokens"
)

// TokenHandoffTTL bounds how long exchanged tokens wait for /fetch-user-info
const TokenHandoffTTL = 5 * time.Minute

// ErrNoTokens is returned when no stashed tokens exist for a session
var ErrNoTokens = errors.New("no pending tokens for session")

// Record is the stored value of an established session
type Record struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager handles the session cookie and the records keyed by session ID
type Manager struct {
	store  storage.Store
	jar    cookie.Jar
	signer crypto.ValueSigner
	sealer *crypto.Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a session manager. ttl is both the cookie max-age and
// the lifetime of the session record.
func NewManager(store storage.Store, jar cookie.Jar, signer crypto.ValueSigner, sealer *crypto.Sealer, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		jar:    jar,
		signer: signer,
		sealer: sealer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func emailKey(id string) storage.Key {
	return storage.Key{EmailNamespace, id}
}

func tokensKey(id string) storage.Key {
	return storage.Key{TokensNamespace, id}
}

// SessionID returns the session ID from a validly signed session cookie
func (m *Manager) SessionID(r *http.Request) (string, bool) {
	signed, err := m.jar.GetSession(r)
	if err != nil || signed == "" {
		return "", false
	}
	id, err := m.signer.Verify(signed)
	if err != nil {
		log.LogDebugWithFields("session", "Rejected session cookie", map[string]any{
			"error": err.Error(),
		})
		return "", false
	}
	return id, true
}

// Start allocates a new session ID and sets the signed session cookie.
// No record is written until Establish.
func (m *Manager) Start(w http.ResponseWriter) (string, error) {
	id, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	m.jar.SetSession(w, m.signer.Sign(id), m.ttl)
	return id, nil
}

// Establish records email as the user of session id
func (m *Manager) Establish(ctx context.Context, id, email string) error {
	data, err := json.Marshal(Record{Email: email, CreatedAt: m.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, emailKey(id), data, m.ttl); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	log.LogInfoWithFields("session", "Session established", map[string]any{
		"email": emailutil.Mask(email),
	})
	return nil
}

// CurrentEmail returns the email established for session id, if any
func (m *Manager) CurrentEmail(ctx context.Context, id string) (string, bool, error) {
	data, err := m.store.Get(ctx, emailKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, fmt.Errorf("decoding session: %w", err)
	}
	if rec.Email == "" {
		return "", false, nil
	}
	return rec.Email, true, nil
}

// Terminate deletes everything stored for session id and clears every
// gateway cookie. An empty id only clears the cookies.
func (m *Manager) Terminate(ctx context.Context, w http.ResponseWriter, id string) error {
	m.jar.ClearAll(w)
	if id == "" {
		return nil
	}
	if err := m.Discard(ctx, id); err != nil {
		return err
	}

	log.LogTraceWithFields("session", "Session terminated", nil)
	return nil
}

// Discard deletes the records of session id without touching cookies. Used
// when a fresh sign-in replaces an older session in the same browser.
func (m *Manager) Discard(ctx context.Context, id string) error {
	var errs []error
	if err := m.store.Delete(ctx, emailKey(id)); err != nil {
		errs = append(errs, fmt.Errorf("deleting session: %w", err))
	}
	if err := m.store.Delete(ctx, tokensKey(id)); err != nil {
		errs = append(errs, fmt.Errorf("deleting pending tokens: %w", err))
	}
	return errors.Join(errs...)
}

// StashTokens keeps the exchanged tokens, encrypted and bound to session id,
// until TakeTokens is called.
func (m *Manager) StashTokens(ctx context.Context, id string, token *oauth2.Token) error {
	plaintext, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	sealed, err := m.sealer.Seal(plaintext, []byte(id))
	if err != nil {
		return fmt.Errorf("encrypting tokens: %w", err)
	}
	if err := m.store.Set(ctx, tokensKey(id), []byte(sealed), TokenHandoffTTL); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}
	return nil
}

// TakeTokens returns and removes the tokens stashed for session id
func (m *Manager) TakeTokens(ctx context.Context, id string) (*oauth2.Token, error) {
	sealed, err := m.store.Take(ctx, tokensKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoTokens
	}
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}

	plaintext, err := m.sealer.Open(string(sealed), []byte(id))
	if err != nil {
		return nil, fmt.Errorf("decrypting tokens: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, fmt.Errorf("decoding tokens: %w", err)
	}
	return &token, nil
}

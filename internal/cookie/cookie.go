package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/authgate/internal/log"
)

// Base cookie names. On HTTPS they carry the __Host- prefix.
const (
	SessionCookie  = "oauth-session"
	StateKeyCookie = "oauth-state-key"
)

const hostPrefix = "__Host-"

// Jar writes and reads the gateway's cookies. Over HTTPS every cookie is
// Secure and __Host- prefixed, which pins it to this origin with Path=/.
// Browsers reject __Host- cookies without Secure, so plain-HTTP development
// setups get unprefixed, non-secure cookies instead.
type Jar struct {
	secure bool
}

// NewJar creates a cookie jar
func NewJar(secure bool) Jar {
	return Jar{secure: secure}
}

// Name returns the on-the-wire name for a base cookie name
func (j Jar) Name(base string) string {
	if j.secure {
		return hostPrefix + base
	}
	return base
}

func (j Jar) set(w http.ResponseWriter, base, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.Name(base),
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// SetSession sets the session cookie
func (j Jar) SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	j.set(w, SessionCookie, value, maxAge)

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   j.secure,
		"sameSite": "Lax",
	})
}

// SetStateKey sets the cookie binding the browser to a pending sign-in
func (j Jar) SetStateKey(w http.ResponseWriter, value string, maxAge time.Duration) {
	j.set(w, StateKeyCookie, value, maxAge)
}

// Clear removes a cookie by setting MaxAge to -1. The attributes must match
// the ones used when setting or __Host- cookies are not replaced.
func (j Jar) Clear(w http.ResponseWriter, base string) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.Name(base),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// ClearStateKey removes the state key cookie
func (j Jar) ClearStateKey(w http.ResponseWriter) {
	j.Clear(w, StateKeyCookie)
}

// ClearAll removes every cookie the gateway sets
func (j Jar) ClearAll(w http.ResponseWriter) {
	j.Clear(w, SessionCookie)
	j.Clear(w, StateKeyCookie)
	log.LogTraceWithFields("cookie", "Gateway cookies cleared", nil)
}

// Get retrieves a cookie value from the request
func (j Jar) Get(r *http.Request, base string) (string, error) {
	c, err := r.Cookie(j.Name(base))
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetSession retrieves the session cookie value
func (j Jar) GetSession(r *http.Request) (string, error) {
	return j.Get(r, SessionCookie)
}

// GetStateKey retrieves the state key cookie value
func (j Jar) GetStateKey(r *http.Request) (string, error) {
	return j.Get(r, StateKeyCookie)
}

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// FakeIdPServer is a fake Google-style OAuth server. Each authorization
// code it issues maps to the email the userinfo endpoint later returns.
type FakeIdPServer struct {
	server *httptest.Server

	mu         sync.Mutex
	email      string
	unverified bool
	codes      map[string]string
	tokens     map[string]string
	seq        int
}

// NewFakeIdPServer starts a fake identity provider that signs users in as email
func NewFakeIdPServer(email string) *FakeIdPServer {
	f := &FakeIdPServer{
		email:  email,
		codes:  make(map[string]string),
		tokens: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth", f.handleAuth)
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/userinfo", f.handleUserInfo)
	f.server = httptest.NewServer(mux)
	return f
}

// URL returns the server base URL
func (f *FakeIdPServer) URL() string {
	return f.server.URL
}

// SetEmail changes the identity returned for codes issued afterwards
func (f *FakeIdPServer) SetEmail(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
}

// SetUnverified makes the userinfo endpoint report the email as unverified
func (f *FakeIdPServer) SetUnverified(unverified bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unverified = unverified
}

// Close stops the server
func (f *FakeIdPServer) Close() {
	f.server.Close()
}

func (f *FakeIdPServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || q.Get("response_type") != "code" {
		http.Error(w, "invalid authorization request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.seq++
	code := fmt.Sprintf("test-auth-code-%d", f.seq)
	f.codes[code] = f.email
	f.mu.Unlock()

	target, _ := url.Parse(redirectURI)
	params := target.Query()
	params.Set("code", code)
	params.Set("state", q.Get("state"))
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (f *FakeIdPServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	code := r.FormValue("code")
	f.mu.Lock()
	email, ok := f.codes[code]
	delete(f.codes, code)
	token := "access-" + code
	if ok {
		f.tokens[token] = email
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Invalid authorization code",
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (f *FakeIdPServer) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	email, ok := f.tokens[auth[len(prefix):]]
	verified := !f.unverified
	f.mu.Unlock()
	if !ok {
		http.Error(w, "unknown token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":             "subject-" + email,
		"email":          email,
		"verified_email": verified,
		"name":           "Test User",
	})
}

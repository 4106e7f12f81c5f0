package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/authgate/internal/allowlist"
	"github.com/dgellow/authgate/internal/cookie"
	"github.com/dgellow/authgate/internal/emailutil"
	"github.com/dgellow/authgate/internal/idp"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/oauthstate"
	"github.com/dgellow/authgate/internal/response"
	"github.com/dgellow/authgate/internal/session"
)

// Client-facing messages for rejected callbacks
const (
	msgMissingState    = "State is missing in query parameters."
	msgMissingStateKey = "State key is missing in cookies."
	msgInvalidState    = "Invalid state."
	msgMissingCode     = "Code is missing in query parameters."
	msgProviderError   = "Authorization was not granted by the identity provider."
)

// AuthHandlers implements the sign-in flow: /signin sends the browser to the
// provider, /callback validates the state and exchanges the code,
// /fetch-user-info checks the allow-list and establishes the session.
type AuthHandlers struct {
	provider        idp.Provider
	states          *oauthstate.Manager
	sessions        *session.Manager
	gate            *allowlist.Gate
	jar             cookie.Jar
	providerTimeout time.Duration
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(
	provider idp.Provider,
	states *oauthstate.Manager,
	sessions *session.Manager,
	gate *allowlist.Gate,
	jar cookie.Jar,
	providerTimeout time.Duration,
) *AuthHandlers {
	return &AuthHandlers{
		provider:        provider,
		states:          states,
		sessions:        sessions,
		gate:            gate,
		jar:             jar,
		providerTimeout: providerTimeout,
	}
}

// currentUser returns the session ID from the cookie and, when established,
// the email it belongs to.
func (h *AuthHandlers) currentUser(r *http.Request) (id, email string, err error) {
	id, ok := h.sessions.SessionID(r)
	if !ok {
		return "", "", nil
	}
	email, _, err = h.sessions.CurrentEmail(r.Context(), id)
	return id, email, err
}

// terminate ends the session and logs rather than returns store failures;
// the caller is already on an error path.
func (h *AuthHandlers) terminate(ctx context.Context, w http.ResponseWriter, id string) {
	if err := h.sessions.Terminate(ctx, w, id); err != nil {
		log.LogErrorWithFields("auth", "Failed to terminate session", map[string]any{
			"error": err.Error(),
		})
	}
}

// HomeHandler renders the status page
func (h *AuthHandlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	_, email, err := h.currentUser(r)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to read session", map[string]any{
			"error": err.Error(),
		})
		response.WriteInternalServerError(w)
		return
	}

	endpoints := h.provider.Endpoints()
	body, err := renderHomePage(HomePageData{
		AuthorizationURL: endpoints.AuthorizationURL,
		TokenURL:         endpoints.TokenURL,
		Scope:            strings.Join(endpoints.Scopes, " "),
		SignedIn:         email != "",
		Email:            email,
	})
	if err != nil {
		log.LogError("Failed to render home page: %v", err)
		response.WriteInternalServerError(w)
		return
	}
	response.WriteHTML(w, http.StatusOK, body)
}

// SignInHandler starts an authorization request
func (h *AuthHandlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	_, email, err := h.currentUser(r)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to read session", map[string]any{
			"error": err.Error(),
		})
		response.WriteInternalServerError(w)
		return
	}
	if email != "" {
		response.Redirect(w, r, "/")
		return
	}

	stateKey, stateValue, err := h.states.Begin(r.Context())
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to create authorization state", map[string]any{
			"error": err.Error(),
		})
		response.WriteInternalServerError(w)
		return
	}

	h.jar.SetStateKey(w, stateKey, h.states.TTL())
	log.LogDebugWithFields("auth", "Redirecting to identity provider", map[string]any{
		"provider": h.provider.Type(),
	})
	response.Redirect(w, r, h.provider.AuthURL(stateValue))
}

// CallbackHandler handles the provider's redirect back to the gateway
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	stateKey, _ := h.jar.GetStateKey(r)

	if errCode := query.Get("error"); errCode != "" {
		log.LogWarnWithFields("auth", "Identity provider returned an error", map[string]any{
			"error":       errCode,
			"description": query.Get("error_description"),
		})
		// The pending state is of no further use
		if stateKey != "" {
			_ = h.states.ValidateAndConsume(ctx, stateKey, query.Get("state"))
			h.jar.ClearStateKey(w)
		}
		response.WriteBadRequest(w, msgProviderError)
		return
	}

	state := query.Get("state")
	if state == "" {
		response.WriteBadRequest(w, msgMissingState)
		return
	}
	if stateKey == "" {
		response.WriteBadRequest(w, msgMissingStateKey)
		return
	}

	if err := h.states.ValidateAndConsume(ctx, stateKey, state); err != nil {
		h.jar.ClearStateKey(w)
		if errors.Is(err, oauthstate.ErrStateNotFound) || errors.Is(err, oauthstate.ErrStateMismatch) || errors.Is(err, oauthstate.ErrMissingStateKey) {
			log.LogWarnWithFields("auth", "Rejected callback with invalid state", map[string]any{
				"reason": err.Error(),
			})
			response.WriteBadRequest(w, msgInvalidState)
			return
		}
		log.LogErrorWithFields("auth", "Failed to validate state", map[string]any{
			"error": err.Error(),
		})
		response.WriteInternalServerError(w)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.jar.ClearStateKey(w)
		response.WriteBadRequest(w, msgMissingCode)
		return
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, h.providerTimeout)
	defer cancel()
	token, err := h.provider.ExchangeCode(exchangeCtx, code)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to exchange authorization code", map[string]any{
			"provider": h.provider.Type(),
			"error":    err.Error(),
		})
		h.jar.ClearStateKey(w)
		response.WriteInternalServerError(w)
		return
	}

	// A fresh sign-in always gets a fresh session ID
	if oldID, ok := h.sessions.SessionID(r); ok {
		if err := h.sessions.Discard(ctx, oldID); err != nil {
			log.LogWarnWithFields("auth", "Failed to discard previous session", map[string]any{
				"error": err.Error(),
			})
		}
	}

	h.jar.ClearStateKey(w)
	id, err := h.sessions.Start(w)
	if err != nil {
		log.LogError("Failed to start session: %v", err)
		response.WriteInternalServerError(w)
		return
	}
	if err := h.sessions.StashTokens(ctx, id, token); err != nil {
		log.LogErrorWithFields("auth", "Failed to store exchanged tokens", map[string]any{
			"error": err.Error(),
		})
		h.terminate(ctx, w, id)
		response.WriteInternalServerError(w)
		return
	}

	response.Redirect(w, r, "/fetch-user-info")
}

// FetchUserInfoHandler resolves the user's identity and applies the allow-list
func (h *AuthHandlers) FetchUserInfoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.sessions.SessionID(r)
	if !ok {
		response.Redirect(w, r, "/signin")
		return
	}

	token, err := h.sessions.TakeTokens(ctx, id)
	if errors.Is(err, session.ErrNoTokens) {
		// Reload after a completed sign-in, or the hand-off expired
		if email, ok, err := h.sessions.CurrentEmail(ctx, id); err == nil && ok && email != "" {
			response.Redirect(w, r, "/")
			return
		}
		h.terminate(ctx, w, id)
		response.Redirect(w, r, "/signin")
		return
	}
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to load exchanged tokens", map[string]any{
			"error": err.Error(),
		})
		h.terminate(ctx, w, id)
		response.WriteInternalServerError(w)
		return
	}

	userInfoCtx, cancel := context.WithTimeout(ctx, h.providerTimeout)
	defer cancel()
	identity, err := h.provider.UserInfo(userInfoCtx, token)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to fetch user info", map[string]any{
			"provider": h.provider.Type(),
			"error":    err.Error(),
		})
		h.terminate(ctx, w, id)
		response.WriteInternalServerError(w)
		return
	}

	email := strings.TrimSpace(identity.Email)
	if !identity.EmailVerified {
		log.LogWarnWithFields("auth", "Identity provider has not verified the email", map[string]any{
			"provider": h.provider.Type(),
			"email":    emailutil.Mask(email),
		})
		h.terminate(ctx, w, id)
		response.WriteForbidden(w, allowlist.DeniedMessage)
		return
	}
	if !h.gate.Allowed(email) {
		h.terminate(ctx, w, id)
		response.WriteForbidden(w, allowlist.DeniedMessage)
		return
	}

	if err := h.sessions.Establish(ctx, id, email); err != nil {
		log.LogErrorWithFields("auth", "Failed to establish session", map[string]any{
			"email": emailutil.Mask(email),
			"error": err.Error(),
		})
		h.terminate(ctx, w, id)
		response.WriteInternalServerError(w)
		return
	}

	response.Redirect(w, r, "/")
}

// SignOutHandler ends the session, if any, and clears every gateway cookie
func (h *AuthHandlers) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := h.sessions.SessionID(r)
	h.terminate(r.Context(), w, id)
	response.Redirect(w, r, "/")
}

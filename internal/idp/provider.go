package idp

import (
	"context"

	"golang.org/x/oauth2"
)

// Identity is the subset of the provider's user-info response the gateway uses.
type Identity struct {
	ProviderType  string `json:"provider_type"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Endpoints describes the provider as shown on the home page.
type Endpoints struct {
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	Scopes           []string
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier ("google" or "oidc").
	Type() string

	// AuthURL generates the authorization URL carrying the given state.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the signed-in user's identity with the access token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)

	// Endpoints reports the configured endpoints and scopes.
	Endpoints() Endpoints
}

package idp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// Issuer is used for discovery via /.well-known/openid-configuration.
	Issuer string

	// Optional overrides for the discovered endpoints.
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// OIDCProvider implements the Provider interface for OIDC-compliant identity providers.
type OIDCProvider struct {
	provider    *oidc.Provider
	config      oauth2.Config
	userInfoURL string
}

// NewOIDCProvider discovers the issuer's endpoints and builds the provider.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	discovered, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", cfg.Issuer, err)
	}

	var discovery struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := discovered.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("failed to read discovery document: %w", err)
	}

	endpoint := discovered.Endpoint()
	pc := oidc.ProviderConfig{
		IssuerURL:   cfg.Issuer,
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		UserInfoURL: discovered.UserInfoEndpoint(),
		JWKSURL:     discovery.JWKSURL,
	}
	if cfg.AuthorizationURL != "" {
		pc.AuthURL = cfg.AuthorizationURL
	}
	if cfg.TokenURL != "" {
		pc.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL != "" {
		pc.UserInfoURL = cfg.UserInfoURL
	}
	if pc.UserInfoURL == "" {
		return nil, fmt.Errorf("OIDC provider %s does not advertise a userinfo endpoint", cfg.Issuer)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &OIDCProvider{
		provider: pc.NewProvider(ctx),
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  pc.AuthURL,
				TokenURL: pc.TokenURL,
			},
		},
		userInfoURL: pc.UserInfoURL,
	}, nil
}

// Type returns the provider type.
func (p *OIDCProvider) Type() string {
	return "oidc"
}

// AuthURL generates the authorization URL.
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user identity from the OIDC userinfo endpoint.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	var claims struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &Identity{
		ProviderType:  "oidc",
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// Endpoints reports the configured endpoints and scopes.
func (p *OIDCProvider) Endpoints() Endpoints {
	return Endpoints{
		AuthorizationURL: p.config.Endpoint.AuthURL,
		TokenURL:         p.config.Endpoint.TokenURL,
		UserInfoURL:      p.userInfoURL,
		Scopes:           p.config.Scopes,
	}
}

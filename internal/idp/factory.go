package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/log"
)

// NewProvider creates a Provider from the gateway configuration.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	var provider Provider

	switch cfg.Provider {
	case config.ProviderGoogle:
		p := NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI(),
			cfg.Scopes(),
		)
		// Overrides let tests point the gateway at a fake provider
		if cfg.AuthURL != "" {
			p.config.Endpoint.AuthURL = cfg.AuthURL
		}
		if cfg.TokenURL != "" {
			p.config.Endpoint.TokenURL = cfg.TokenURL
		}
		if cfg.UserInfoURL != "" {
			p.userInfoURL = cfg.UserInfoURL
		}
		provider = p

	case config.ProviderOIDC:
		p, err := NewOIDCProvider(ctx, OIDCConfig{
			Issuer:           cfg.OIDCIssuer,
			AuthorizationURL: cfg.AuthURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI(),
			Scopes:           cfg.Scopes(),
		})
		if err != nil {
			return nil, err
		}
		provider = p

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}

	endpoints := provider.Endpoints()
	log.LogInfoWithFields("idp", "Identity provider configured", map[string]any{
		"type":         provider.Type(),
		"authorize":    endpoints.AuthorizationURL,
		"token":        endpoints.TokenURL,
		"redirect_uri": cfg.RedirectURI(),
	})
	return provider, nil
}

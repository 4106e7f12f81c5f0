package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/dgellow/authgate/internal/emailutil"
	"github.com/dgellow/authgate/internal/log"
)

// LoadFromEnv loads the configuration from the process environment
func LoadFromEnv() (Config, error) {
	return Load(env.ToMap(os.Environ()))
}

// Load parses configuration from the given environment map, applies
// defaults and validates the result.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.AllowedEmails = normalizeEmails(cfg.AllowedEmails)
	if cfg.Scope == "" {
		if cfg.Provider == ProviderOIDC {
			cfg.Scope = DefaultOIDCScope
		} else {
			cfg.Scope = DefaultGoogleScope
		}
	}

	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	log.LogDebugWithFields("config", "Configuration loaded", map[string]any{
		"addr":           cfg.Addr,
		"base_url":       cfg.BaseURL,
		"provider":       cfg.Provider,
		"storage":        cfg.Storage,
		"allowed_emails": len(cfg.AllowedEmails),
		"client_secret":  cfg.ClientSecret.String(),
	})
	return cfg, nil
}

// normalizeEmails lower-cases and trims entries and drops empty and duplicate ones
func normalizeEmails(emails []string) []string {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		e = emailutil.Normalize(e)
		if e == "" || slices.Contains(normalized, e) {
			continue
		}
		normalized = append(normalized, e)
	}
	return normalized
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("AUTHGATE_ADDR is required")
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("AUTHGATE_BASE_URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("AUTHGATE_BASE_URL is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AUTHGATE_BASE_URL must be an absolute http(s) URL, got %q", cfg.BaseURL)
	}

	if err := validateProvider(cfg); err != nil {
		return err
	}

	if len(cfg.AllowedEmails) == 0 {
		return fmt.Errorf("ALLOWED_EMAILS must list at least one email")
	}
	if len(cfg.CookieSecret) < 32 {
		return fmt.Errorf("AUTHGATE_COOKIE_SECRET must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(cfg.CookieSecret))
	}

	if cfg.StateTTL <= 0 {
		return fmt.Errorf("AUTHGATE_STATE_TTL must be positive")
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("AUTHGATE_SESSION_TTL must be positive")
	}
	if cfg.ProviderTimeout <= 0 {
		return fmt.Errorf("AUTHGATE_PROVIDER_TIMEOUT must be positive")
	}
	if cfg.CleanupInterval <= 0 {
		return fmt.Errorf("AUTHGATE_CLEANUP_INTERVAL must be positive")
	}
	if cfg.CleanupInterval > cfg.StateTTL {
		log.LogWarn("Cleanup interval %s is longer than state TTL %s", cfg.CleanupInterval, cfg.StateTTL)
	}

	switch cfg.Storage {
	case StorageMemory:
	case StorageFirestore:
		if cfg.GCPProject == "" {
			return fmt.Errorf("AUTHGATE_GCP_PROJECT is required when using firestore storage")
		}
		if cfg.FirestoreCollection == "" {
			return fmt.Errorf("AUTHGATE_FIRESTORE_COLLECTION is required when using firestore storage")
		}
	case StorageSQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("AUTHGATE_SQLITE_PATH is required when using sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage %q (expected memory, firestore or sqlite)", cfg.Storage)
	}

	return nil
}

func validateProvider(cfg *Config) error {
	switch cfg.Provider {
	case ProviderGoogle:
	case ProviderOIDC:
		if cfg.OIDCIssuer == "" {
			return fmt.Errorf("AUTHGATE_OIDC_ISSUER is required for the oidc provider")
		}
	default:
		return fmt.Errorf("unknown provider %q (expected google or oidc)", cfg.Provider)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("AUTHGATE_CLIENT_ID is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("AUTHGATE_CLIENT_SECRET is required")
	}
	if len(cfg.Scopes()) == 0 {
		return fmt.Errorf("AUTHGATE_SCOPE must not be blank")
	}
	return nil
}

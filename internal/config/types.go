package config

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// Identity provider kinds
const (
	ProviderGoogle = "google"
	ProviderOIDC   = "oidc"
)

// Storage backends
const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
	StorageSQLite    = "sqlite"
)

// DefaultGoogleScope is requested from Google when AUTHGATE_SCOPE is unset
const DefaultGoogleScope = "https://www.googleapis.com/auth/userinfo.profile https://www.googleapis.com/auth/userinfo.email"

// DefaultOIDCScope is requested from generic OIDC providers when AUTHGATE_SCOPE is unset
const DefaultOIDCScope = "openid email profile"

// Config is built once at startup and passed to every component.
type Config struct {
	Addr    string `env:"AUTHGATE_ADDR" envDefault:":8000"`
	BaseURL string `env:"AUTHGATE_BASE_URL"`

	Provider     string `env:"AUTHGATE_PROVIDER" envDefault:"google"`
	ClientID     string `env:"AUTHGATE_CLIENT_ID"`
	ClientSecret Secret `env:"AUTHGATE_CLIENT_SECRET"`
	OIDCIssuer   string `env:"AUTHGATE_OIDC_ISSUER"`
	Scope        string `env:"AUTHGATE_SCOPE"`

	// Endpoint overrides, used by integration tests against a fake provider
	AuthURL     string `env:"AUTHGATE_AUTH_URL"`
	TokenURL    string `env:"AUTHGATE_TOKEN_URL"`
	UserInfoURL string `env:"AUTHGATE_USERINFO_URL"`

	AllowedEmails []string `env:"ALLOWED_EMAILS" envSeparator:","`

	CookieSecret Secret `env:"AUTHGATE_COOKIE_SECRET"`

	StateTTL        time.Duration `env:"AUTHGATE_STATE_TTL" envDefault:"10m"`
	SessionTTL      time.Duration `env:"AUTHGATE_SESSION_TTL" envDefault:"168h"`
	ProviderTimeout time.Duration `env:"AUTHGATE_PROVIDER_TIMEOUT" envDefault:"10s"`
	CleanupInterval time.Duration `env:"AUTHGATE_CLEANUP_INTERVAL" envDefault:"1m"`

	Storage             string `env:"AUTHGATE_STORAGE" envDefault:"memory"`
	GCPProject          string `env:"AUTHGATE_GCP_PROJECT"`
	FirestoreDatabase   string `env:"AUTHGATE_FIRESTORE_DATABASE" envDefault:"(default)"`
	FirestoreCollection string `env:"AUTHGATE_FIRESTORE_COLLECTION" envDefault:"authgate_kv"`
	SQLitePath          string `env:"AUTHGATE_SQLITE_PATH" envDefault:"authgate.db"`
}

// RedirectURI is the callback URL registered with the identity provider
func (c Config) RedirectURI() string {
	return strings.TrimRight(c.BaseURL, "/") + "/callback"
}

// Scopes splits the configured scope string
func (c Config) Scopes() []string {
	return strings.Fields(c.Scope)
}

// SecureCookies reports whether cookies can carry the Secure attribute.
// Browsers drop Secure cookies set over plain HTTP, so local development
// against http://localhost gets non-secure cookies.
func (c Config) SecureCookies() bool {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return true
	}
	return u.Scheme != "http"
}

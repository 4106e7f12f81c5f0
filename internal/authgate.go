package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/authgate/internal/allowlist"
	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/cookie"
	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/idp"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/oauthstate"
	"github.com/dgellow/authgate/internal/server"
	"github.com/dgellow/authgate/internal/session"
	"github.com/dgellow/authgate/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// AuthGate represents the complete gateway application
type AuthGate struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	cleanup    *storage.CleanupManager
	store      storage.Store
}

// NewAuthGate creates the gateway with all dependencies built
func NewAuthGate(ctx context.Context, cfg config.Config) (*AuthGate, error) {
	log.LogInfoWithFields("authgate", "Building authentication gateway", map[string]any{
		"baseURL":       cfg.BaseURL,
		"provider":      cfg.Provider,
		"allowedEmails": len(cfg.AllowedEmails),
	})

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	handler, err := buildHTTPHandler(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &AuthGate{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Addr),
		cleanup:    storage.NewCleanupManager(store, cfg.CleanupInterval),
		store:      store,
	}, nil
}

// Handler returns the gateway's HTTP handler
func (a *AuthGate) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and sweeps expired entries until ctx is cancelled, a
// SIGINT/SIGTERM arrives or the server fails.
func (a *AuthGate) Run(ctx context.Context) error {
	log.LogInfoWithFields("authgate", "Starting authentication gateway", map[string]any{
		"addr": a.config.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.cleanup.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("authgate", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if closeErr := a.store.Close(); closeErr != nil {
		log.LogErrorWithFields("authgate", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}
	if err != nil {
		log.LogErrorWithFields("authgate", "Shut down due to error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("authgate", "Application shutdown complete", nil)
	return nil
}

// OpenStore creates the store selected by configuration
func OpenStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		store, err := storage.NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return store, nil

	case config.StorageSQLite:
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path": cfg.SQLitePath,
		})
		store, err := storage.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		return store, nil

	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStore(), nil
	}
}

// buildHTTPHandler derives keys from the cookie secret and wires the flow components
func buildHTTPHandler(ctx context.Context, cfg config.Config, store storage.Store) (http.Handler, error) {
	signingKey, err := crypto.DeriveKey([]byte(cfg.CookieSecret), crypto.PurposeCookieSigning)
	if err != nil {
		return nil, err
	}
	encryptionKey, err := crypto.DeriveKey([]byte(cfg.CookieSecret), crypto.PurposeTokenEncryption)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSealer(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token sealer: %w", err)
	}

	provider, err := idp.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	jar := cookie.NewJar(cfg.SecureCookies())
	if !cfg.SecureCookies() {
		log.LogWarn("Base URL is plain HTTP; cookies are not Secure and drop the __Host- prefix")
	}

	handlers := server.NewAuthHandlers(
		provider,
		oauthstate.NewManager(store, cfg.StateTTL),
		session.NewManager(store, jar, crypto.NewValueSigner(signingKey), sealer, cfg.SessionTTL),
		allowlist.NewGate(cfg.AllowedEmails),
		jar,
		cfg.ProviderTimeout,
	)
	return server.NewRouter(handlers), nil
}

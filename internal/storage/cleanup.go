package storage

import (
	"context"
	"time"

	"github.com/dgellow/authgate/internal/log"
)

// CleanupManager periodically removes expired state, token and session
// entries from a store.
type CleanupManager struct {
	store    Store
	interval time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(store Store, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
	}
}

// Run sweeps the store once immediately and then on every tick until ctx is
// cancelled. It always returns nil so it can run inside an errgroup.
func (cm *CleanupManager) Run(ctx context.Context) error {
	log.LogInfoWithFields("cleanup", "Starting expired entry cleanup", map[string]any{
		"interval": cm.interval.String(),
	})

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-ctx.Done():
			log.Logf("Expired entry cleanup stopped")
			return nil
		}
	}
}

// cleanup performs the actual cleanup operation
func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.store.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired entries", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired entries", map[string]any{
			"count": count,
		})
	}
}

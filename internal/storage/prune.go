package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/authgate/internal/log"
)

// DeletePrefix removes every live entry whose key starts with prefix and
// returns how many were deleted. It backs the -delete-prefix operator command.
func DeletePrefix(ctx context.Context, store Store, prefix Key) (int, error) {
	if err := validateKey(prefix); err != nil {
		return 0, fmt.Errorf("invalid prefix: %w", err)
	}

	entries, err := store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", prefix, err)
	}

	deleted := 0
	for _, e := range entries {
		if err := store.Delete(ctx, e.Key); err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", e.Key, err)
		}
		log.LogDebugWithFields("prune", "Deleted entry", map[string]any{
			"namespace": e.Key.Namespace(),
		})
		deleted++
	}
	return deleted, nil
}

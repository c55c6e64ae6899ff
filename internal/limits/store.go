// Package limits tracks short-lived set membership for request throttling
// and duplicate suppression. Members expire individually so a single key can
// model a sliding window.
package limits

import (
	"context"
	"time"
)

// Store records expiring members under a key.
type Store interface {
	// Add inserts member with the given lifetime. It reports false when the
	// member is already present and unexpired; the existing expiry is kept.
	Add(ctx context.Context, key, member string, ttl time.Duration) (bool, error)
	// Count reports the number of unexpired members under key.
	Count(ctx context.Context, key string) (int64, error)
	// Remove deletes member from key. Removing an absent member is not an error.
	Remove(ctx context.Context, key, member string) error
	Close(ctx context.Context) error
}

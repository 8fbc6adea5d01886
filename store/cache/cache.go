// Package cache provides the byte-oriented cache used for derived views such as
// the Soul Map projection: an in-process LRU (L1) and an optional Redis (L2).
package cache

import (
	"context"
	"strings"
	"time"
)

// CacheService is implemented by every cache tier.
type CacheService interface {
	// Get retrieves a value. The boolean reports whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value. A non-positive ttl uses the tier default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes a key, or every key with the given prefix when the
	// pattern ends with "*" (e.g. "soulmap:user-1:*").
	Invalidate(ctx context.Context, pattern string) error

	Close() error
}

// Key joins components with ":".
func Key(components ...string) string {
	return strings.Join(components, ":")
}

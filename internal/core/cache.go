package core

import (
	"context"
	"time"
)

// Cache[T] is a TTL key-value store shared by the token user cache, the
// signer keyring and the metrics gauges. Entries are disposable: callers must
// be able to rebuild any value from the database.
type Cache[T any] interface {
	// Get returns cache.ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// MGet omits missing keys from the result.
	MGet(ctx context.Context, keys []string) (map[string]T, error)
	MSet(ctx context.Context, values map[string]T, ttl time.Duration) error

	// Delete evicts key, e.g. after a grant change or token revocation.
	Delete(ctx context.Context, key string) error

	// GetWithFetch loads key through fetchFunc on a miss and stores the
	// result for ttl. Errors from fetchFunc are returned and not cached.
	GetWithFetch(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fetchFunc func(ctx context.Context, key string) (T, error),
	) (T, error)

	Health(ctx context.Context) error
	Close() error
}

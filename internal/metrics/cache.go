package metrics

import (
	"context"
	"time"

	"github.com/simonsobs/soauth/internal/core"
)

// Cache keys for gauge counts
const (
	keyActiveRefreshRecords = "refresh:active"
	keyPendingLoginRequests = "login:pending"
)

// CacheWrapper provides a read-through cache for metrics data.
// It queries the database on cache miss and updates the cache for subsequent requests.
// Uses the cache's GetWithFetch method for optimal cache-aside pattern support.
type CacheWrapper struct {
	store      core.MetricsStore
	cache      core.Cache[int64]
	now        func() time.Time
	staleAfter time.Duration
}

// NewCacheWrapper creates a new cache wrapper for metrics. Login requests older
// than staleAfter are not counted as pending.
func NewCacheWrapper(
	store core.MetricsStore,
	cache core.Cache[int64],
	staleAfter time.Duration,
) *CacheWrapper {
	return &CacheWrapper{
		store:      store,
		cache:      cache,
		now:        func() time.Time { return time.Now().UTC() },
		staleAfter: staleAfter,
	}
}

// getCountWithCache retrieves a count using the cache-aside pattern.
func (m *CacheWrapper) getCountWithCache(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetchFunc func() (int64, error),
) (int64, error) {
	return m.cache.GetWithFetch(
		ctx,
		key,
		ttl,
		func(ctx context.Context, key string) (int64, error) {
			return fetchFunc()
		},
	)
}

// GetActiveRefreshRecordsCount retrieves the count of non-revoked, unexpired refresh records.
func (m *CacheWrapper) GetActiveRefreshRecordsCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, keyActiveRefreshRecords, ttl, func() (int64, error) {
		return m.store.CountActiveRefreshRecords(m.now())
	})
}

// GetPendingLoginRequestsCount retrieves the count of login requests that can still complete.
func (m *CacheWrapper) GetPendingLoginRequestsCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, keyPendingLoginRequests, ttl, func() (int64, error) {
		return m.store.CountPendingLoginRequests(m.now().Add(-m.staleAfter))
	})
}

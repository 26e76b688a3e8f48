package cache

import (
	"context"
	"sync"
	"time"

	"github.com/simonsobs/soauth/internal/core"
)

type cacheItem[T any] struct {
	value     T
	expiresAt time.Time
}

// Compile-time interface check.
var _ core.Cache[struct{}] = (*MemoryCache[struct{}])(nil)

// MemoryCache implements Cache interface with in-memory storage.
// Uses lazy expiration (checks expiry on Get). When maxEntries is positive the
// cache holds at most that many items: expired items are dropped first, then
// the item closest to expiry.
// Suitable for single-instance deployments.
type MemoryCache[T any] struct {
	mu         sync.RWMutex
	items      map[string]cacheItem[T]
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache creates a new memory cache instance. maxEntries <= 0 means unbounded.
func NewMemoryCache[T any](maxEntries int) *MemoryCache[T] {
	return &MemoryCache[T]{
		items:      make(map[string]cacheItem[T]),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves a value from cache.
func (m *MemoryCache[T]) Get(ctx context.Context, key string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists || !m.now().Before(item.expiresAt) {
		var zero T
		return zero, ErrCacheMiss
	}

	return item.value, nil
}

// Set stores a value in cache with TTL.
func (m *MemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, value, m.now().Add(ttl))
	return nil
}

// MGet retrieves multiple values from cache.
func (m *MemoryCache[T]) MGet(ctx context.Context, keys []string) (map[string]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]T)
	now := m.now()

	for _, key := range keys {
		if item, exists := m.items[key]; exists && now.Before(item.expiresAt) {
			result[key] = item.value
		}
	}

	return result, nil
}

// MSet stores multiple values in cache with TTL.
func (m *MemoryCache[T]) MSet(ctx context.Context, values map[string]T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(ttl)
	for key, value := range values {
		m.store(key, value, expiresAt)
	}

	return nil
}

// store inserts an item, evicting to stay within maxEntries. Caller holds the lock.
func (m *MemoryCache[T]) store(key string, value T, expiresAt time.Time) {
	if _, exists := m.items[key]; !exists && m.maxEntries > 0 && len(m.items) >= m.maxEntries {
		m.evict()
	}
	m.items[key] = cacheItem[T]{value: value, expiresAt: expiresAt}
}

// evict removes expired items, or the soonest-expiring one if none are expired.
func (m *MemoryCache[T]) evict() {
	now := m.now()
	var (
		victim   string
		earliest time.Time
	)
	for key, item := range m.items {
		if !now.Before(item.expiresAt) {
			delete(m.items, key)
			continue
		}
		if victim == "" || item.expiresAt.Before(earliest) {
			victim, earliest = key, item.expiresAt
		}
	}
	if len(m.items) >= m.maxEntries && victim != "" {
		delete(m.items, victim)
	}
}

// Len returns the number of stored items, expired ones included.
func (m *MemoryCache[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Delete removes a key from cache.
func (m *MemoryCache[T]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Close cleans up resources.
func (m *MemoryCache[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]cacheItem[T])
	return nil
}

// Health checks if the cache is healthy (always true for memory cache).
func (m *MemoryCache[T]) Health(ctx context.Context) error {
	return nil
}

// GetWithFetch retrieves a value using the cache-aside pattern.
// On cache miss, fetchFunc is called and the result is stored in cache.
// No stampede protection is provided (single-instance memory cache).
func (m *MemoryCache[T]) GetWithFetch(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetchFunc func(ctx context.Context, key string) (T, error),
) (T, error) {
	if value, err := m.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := fetchFunc(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	_ = m.Set(ctx, key, value, ttl)
	return value, nil
}

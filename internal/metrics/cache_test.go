package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/simonsobs/soauth/internal/cache"
	"github.com/simonsobs/soauth/internal/mocks"
)

// callFetchFn is a DoAndReturn helper that invokes the cache fetch function,
// simulating a cache miss where the real DB fetch is executed.
func callFetchFn[T any](
	_ context.Context,
	key string,
	_ time.Duration,
	fn func(context.Context, string) (T, error),
) (T, error) {
	return fn(context.Background(), key)
}

func TestCacheWrapper_ActiveRefreshRecords_CacheHit(t *testing.T) {
	ctx := context.Background()
	memCache := cache.NewMemoryCache[int64](0)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMetricsStore(ctrl)
	// No expectations: if the store is queried, gomock fails automatically

	wrapper := NewCacheWrapper(mockStore, memCache, 30*time.Minute)
	_ = memCache.Set(ctx, keyActiveRefreshRecords, 42, time.Minute)

	count, err := wrapper.GetActiveRefreshRecordsCount(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 42 {
		t.Errorf("Expected count 42, got %d", count)
	}
}

func TestCacheWrapper_ActiveRefreshRecords_CacheMiss(t *testing.T) {
	ctx := context.Background()
	memCache := cache.NewMemoryCache[int64](0)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMetricsStore(ctrl)
	mockStore.EXPECT().CountActiveRefreshRecords(gomock.Any()).Return(int64(100), nil).Times(1)

	wrapper := NewCacheWrapper(mockStore, memCache, 30*time.Minute)

	for range 2 {
		count, err := wrapper.GetActiveRefreshRecordsCount(ctx, time.Minute)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if count != 100 {
			t.Errorf("Expected count 100, got %d", count)
		}
	}
}

func TestCacheWrapper_PendingLoginRequests_UsesStaleWindow(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMetricsStore(ctrl)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mockStore.EXPECT().
		CountPendingLoginRequests(now.Add(-30*time.Minute)).
		Return(int64(5), nil).
		Times(1)

	wrapper := NewCacheWrapper(mockStore, cache.NewMemoryCache[int64](0), 30*time.Minute)
	wrapper.now = func() time.Time { return now }

	count, err := wrapper.GetPendingLoginRequestsCount(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 5 {
		t.Errorf("Expected count 5, got %d", count)
	}
}

func TestCacheWrapper_DBError(t *testing.T) {
	ctx := context.Background()
	memCache := cache.NewMemoryCache[int64](0)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMetricsStore(ctrl)

	dbErr := errors.New("database down")
	mockStore.EXPECT().CountActiveRefreshRecords(gomock.Any()).Return(int64(0), dbErr).Times(2)

	wrapper := NewCacheWrapper(mockStore, memCache, 30*time.Minute)

	// Errors are not cached
	for range 2 {
		if _, err := wrapper.GetActiveRefreshRecordsCount(ctx, time.Minute); !errors.Is(err, dbErr) {
			t.Fatalf("Expected database error, got %v", err)
		}
	}
}

func TestCacheWrapper_UsesGetWithFetch(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockMetricsStore(ctrl)
	mockStore.EXPECT().CountPendingLoginRequests(gomock.Any()).Return(int64(3), nil).Times(1)

	mockCache := mocks.NewMockCache[int64](ctrl)
	gomock.InOrder(
		mockCache.EXPECT().
			GetWithFetch(gomock.Any(), keyPendingLoginRequests, time.Minute, gomock.Any()).
			DoAndReturn(callFetchFn[int64]),
		mockCache.EXPECT().
			GetWithFetch(gomock.Any(), keyPendingLoginRequests, time.Minute, gomock.Any()).
			Return(int64(3), nil),
	)

	wrapper := NewCacheWrapper(mockStore, mockCache, 30*time.Minute)

	for range 2 {
		count, err := wrapper.GetPendingLoginRequestsCount(ctx, time.Minute)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if count != 3 {
			t.Errorf("Expected count 3, got %d", count)
		}
	}
}

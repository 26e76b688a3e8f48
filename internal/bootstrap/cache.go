package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/simonsobs/soauth/internal/cache"
	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/models"
)

// Key prefixes keep the caches apart when they share a Redis database
const (
	tokenCachePrefix   = "soauth:tokens:"
	metricsCachePrefix = "soauth:metrics:"
)

// metricsCacheEntries bounds the in-memory metrics cache; it only holds the gauge counts
const metricsCacheEntries = 16

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config) metrics.Recorder {
	prometheusMetrics := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}
	return prometheusMetrics
}

// initializeMetricsCache initializes the metrics cache based on configuration
func initializeMetricsCache(
	ctx context.Context,
	cfg *config.Config,
) (core.Cache[int64], func() error, error) {
	if !cfg.MetricsEnabled || !cfg.MetricsGaugeUpdateEnabled {
		return nil, nil, nil
	}

	c, err := newCache[int64](ctx, cfg, cacheSettings{
		label:      "Metrics cache",
		cacheType:  cfg.MetricsCacheType,
		prefix:     metricsCachePrefix,
		clientTTL:  cfg.MetricsGaugeUpdateInterval,
		maxEntries: metricsCacheEntries,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// initializeTokenCache initializes the decoded access token cache used by the
// bearer middleware. A zero TOKEN_CACHE_TTL disables it.
func initializeTokenCache(
	ctx context.Context,
	cfg *config.Config,
) (core.Cache[models.TokenUser], func() error, error) {
	if cfg.TokenCacheTTL <= 0 {
		log.Println("Token cache: disabled")
		return nil, nil, nil
	}

	c, err := newCache[models.TokenUser](ctx, cfg, cacheSettings{
		label:      "Token cache",
		cacheType:  cfg.TokenCacheType,
		prefix:     tokenCachePrefix,
		clientTTL:  cfg.TokenCacheTTL,
		maxEntries: cfg.TokenCacheSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

type cacheSettings struct {
	label      string
	cacheType  string
	prefix     string
	clientTTL  time.Duration
	maxEntries int
}

// newCache builds one cache backend of the configured type
func newCache[T any](
	ctx context.Context,
	cfg *config.Config,
	s cacheSettings,
) (core.Cache[T], error) {
	switch s.cacheType {
	case config.CacheTypeRedisAside:
		c, err := cache.NewRueidisAsideCache[T](
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			s.prefix,
			s.clientTTL,
			0,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis-aside %s: %w", s.label, err)
		}
		log.Printf(
			"%s: redis-aside (addr=%s, db=%d, client_ttl=%s)",
			s.label,
			cfg.RedisAddr,
			cfg.RedisDB,
			s.clientTTL,
		)
		return c, nil

	case config.CacheTypeRedis:
		ctx, cancel := context.WithTimeout(ctx, redisConnTimeout)
		defer cancel()

		c, err := cache.NewRueidisCache[T](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			s.prefix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis %s: %w", s.label, err)
		}
		log.Printf("%s: redis (addr=%s, db=%d)", s.label, cfg.RedisAddr, cfg.RedisDB)
		return c, nil

	default: // memory
		log.Printf("%s: memory (single instance only)", s.label)
		return cache.NewMemoryCache[T](s.maxEntries), nil
	}
}

package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitStoreType defines the type of rate limit store
type RateLimitStoreType string

const (
	// RateLimitStoreMemory uses in-memory storage (single instance only)
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis uses Redis storage (distributed, multi-pod support)
	RateLimitStoreRedis RateLimitStoreType = "redis"
)

// RateLimitConfig holds the configuration for one rate limited endpoint
type RateLimitConfig struct {
	Endpoint          string        // Used as the store prefix and in audit entries
	RequestsPerMinute int           // Number of requests allowed per minute per client IP
	CleanupInterval   time.Duration // How often expired counters are dropped (memory store)

	StoreType   RateLimitStoreType
	RedisClient *redis.Client // Required when StoreType is redis

	AuditService *services.AuditService // Optional
}

// NewRateLimiter creates a per-IP rate limiting middleware
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, error) {
	if config.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("invalid rate limit for %s: %d", config.Endpoint, config.RequestsPerMinute)
	}
	rate := limiter.Rate{
		Period: time.Minute,
		Limit:  int64(config.RequestsPerMinute),
	}

	prefix := "soauth:ratelimit:" + config.Endpoint
	var store limiter.Store
	switch config.StoreType {
	case RateLimitStoreRedis:
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis rate limit store for %s has no client", config.Endpoint)
		}
		var err error
		store, err = limiterRedis.NewStoreWithOptions(config.RedisClient, limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: config.CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}

	default:
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: config.CleanupInterval,
		})
	}

	instance := limiter.New(store, rate)
	middleware := mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		log.Printf("[RateLimit] %s exceeded by %s", config.Endpoint, c.ClientIP())
		config.AuditService.Log(c.Request.Context(), services.AuditLogEntry{
			EventType:     models.EventRateLimitExceeded,
			Severity:      models.SeverityWarning,
			Action:        "rate limit exceeded",
			Details:       models.AuditDetails{"endpoint": config.Endpoint},
			Success:       false,
			UserAgent:     c.Request.UserAgent(),
			RequestPath:   c.Request.URL.Path,
			RequestMethod: c.Request.Method,
		})
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate_limit_exceeded",
			"error_description": "Too many requests. Please try again later.",
		})
	}))

	return middleware, nil
}

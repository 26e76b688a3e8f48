package bootstrap

import (
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/middleware"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// rateLimitMiddlewares holds rate limiting middlewares for the public endpoints
type rateLimitMiddlewares struct {
	login    gin.HandlerFunc
	code     gin.HandlerFunc
	exchange gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration
// Accepts an optional go-redis client
func setupRateLimiting(
	cfg *config.Config,
	auditService *services.AuditService,
	redisClient *redis.Client,
) (rateLimitMiddlewares, error) {
	// Return no-op middlewares when rate limiting is disabled
	noOpMiddleware := func(c *gin.Context) { c.Next() }
	if !cfg.EnableRateLimit {
		log.Println("Rate limiting disabled")
		return rateLimitMiddlewares{
			login:    noOpMiddleware,
			code:     noOpMiddleware,
			exchange: noOpMiddleware,
		}, nil
	}
	return createRateLimiters(cfg, auditService, redisClient)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
func createRateLimiters(
	cfg *config.Config,
	auditService *services.AuditService,
	redisClient *redis.Client,
) (rateLimitMiddlewares, error) {
	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)
	if storeType == middleware.RateLimitStoreRedis {
		log.Printf("Using shared Redis client for rate limiting")
	} else {
		log.Printf("In-memory rate limiting configured (single instance only)")
	}

	var firstErr error
	createLimiter := func(requestsPerMinute int, endpoint string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			Endpoint:          endpoint,
			RequestsPerMinute: requestsPerMinute,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
			StoreType:         storeType,
			RedisClient:       redisClient, // nil for memory store
			AuditService:      auditService,
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to create rate limiter for %s: %w", endpoint, err)
		}
		return limiter
	}

	limiters := rateLimitMiddlewares{
		login:    createLimiter(cfg.LoginRateLimit, "login"),
		code:     createLimiter(cfg.CodeRateLimit, "code"),
		exchange: createLimiter(cfg.ExchangeRateLimit, "exchange"),
	}
	if firstErr != nil {
		return rateLimitMiddlewares{}, firstErr
	}
	return limiters, nil
}

package bootstrap

import (
	"context"
	"net/http"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                   *store.Store
	MetricsRecorder      metrics.Recorder
	MetricsCache         core.Cache[int64]
	MetricsCacheCloser   func() error
	TokenCache           core.Cache[models.TokenUser]
	TokenCacheCloser     func() error
	RateLimitRedisClient *redis.Client

	// Business layer
	Provider core.IdentityProvider
	Services serviceSet

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}
	ctx := context.Background()

	// Phase 1: Validate configuration
	if err := validateAllConfiguration(cfg); err != nil {
		return err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(ctx); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(ctx); err != nil {
		app.closeInfrastructure()
		return err
	}

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		app.closeInfrastructure()
		return err
	}

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, Redis, caches, and metrics
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	var err error

	// Database
	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	// Redis (for rate limiting)
	app.RateLimitRedisClient, err = initializeRateLimitRedisClient(ctx, app.Config)
	if err != nil {
		app.closeInfrastructure()
		return err
	}

	// Decoded access token cache
	app.TokenCache, app.TokenCacheCloser, err = initializeTokenCache(ctx, app.Config)
	if err != nil {
		app.closeInfrastructure()
		return err
	}

	// Metrics
	app.MetricsRecorder = initializeMetrics(app.Config)
	app.MetricsCache, app.MetricsCacheCloser, err = initializeMetricsCache(ctx, app.Config)
	if err != nil {
		app.closeInfrastructure()
		return err
	}

	return nil
}

// initializeBusinessLayer sets up the identity provider and services, and
// makes sure the management app exists
func (app *Application) initializeBusinessLayer(ctx context.Context) error {
	var err error
	app.Services, app.Provider, err = initializeServices(app.Config, app.DB, app.MetricsRecorder)
	if err != nil {
		return err
	}
	return ensureManagementApp(ctx, app.Services.app)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() error {
	app.HandlerSet = initializeHandlers(app.Config, app.Services)

	var err error
	app.Router, err = setupRouter(
		app.Config,
		app.DB,
		app.HandlerSet,
		app.Services,
		app.MetricsRecorder,
		app.TokenCache,
		app.RateLimitRedisClient,
	)
	if err != nil {
		return err
	}

	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}

// closeInfrastructure releases whatever initializeInfrastructure managed to open
func (app *Application) closeInfrastructure() {
	if app.MetricsCacheCloser != nil {
		_ = app.MetricsCacheCloser()
	}
	if app.TokenCacheCloser != nil {
		_ = app.TokenCacheCloser()
	}
	if app.RateLimitRedisClient != nil {
		_ = app.RateLimitRedisClient.Close()
	}
	if app.DB != nil {
		_ = app.DB.Close()
	}
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	// Add jobs
	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Config, app.Server)
	addRedisClientShutdownJob(m, app.RateLimitRedisClient)
	addAuditServiceShutdownJob(m, app.Config, app.Services.audit)
	addAuditLogCleanupJob(m, app.Config, app.Services.audit)
	addLoginSweepJob(m, app.Config, app.Services.login)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder, app.MetricsCache)
	addCacheCleanupJob(m, "Metrics cache", app.MetricsCacheCloser)
	addCacheCleanupJob(m, "Token cache", app.TokenCacheCloser)

	// Wait for graceful shutdown
	<-m.Done()
}

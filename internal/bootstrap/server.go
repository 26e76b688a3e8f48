package bootstrap

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
)

// auditCleanupInterval is how often expired audit logs are deleted
const auditCleanupInterval = 24 * time.Hour

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, cfg *config.Config, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		log.Println("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
			return err
		}
		log.Println("Redis connection closed")
		return nil
	})
}

// addAuditServiceShutdownJob flushes buffered audit entries on shutdown
func addAuditServiceShutdownJob(
	m *graceful.Manager,
	cfg *config.Config,
	auditService *services.AuditService,
) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AuditShutdownTimeout)
		defer cancel()

		if err := auditService.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit service: %v", err)
			return err
		}
		return nil
	})
}

// addAuditLogCleanupJob adds periodic audit log cleanup job
func addAuditLogCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	auditService *services.AuditService,
) {
	if !cfg.EnableAuditLogging || cfg.AuditLogRetention <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		runPeriodically(ctx, auditCleanupInterval, func() {
			cleanupAuditLogs(auditService, cfg.AuditLogRetention)
		})
		return nil
	})
}

func cleanupAuditLogs(auditService *services.AuditService, retention time.Duration) {
	if deleted, err := auditService.CleanupOldLogs(retention); err != nil {
		log.Printf("Failed to cleanup old audit logs: %v", err)
	} else if deleted > 0 {
		log.Printf("Cleaned up %d old audit logs", deleted)
	}
}

// loginSweeper is the part of LoginService the sweep job drives
type loginSweeper interface {
	Sweep(ctx context.Context, retention, staleAfter time.Duration) (int64, int64, error)
}

// addLoginSweepJob periodically deletes old login requests and marks
// abandoned ones stale
func addLoginSweepJob(m *graceful.Manager, cfg *config.Config, sweeper loginSweeper) {
	if cfg.LoginSweepInterval <= 0 {
		log.Println("Login request sweep disabled")
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		runPeriodically(ctx, cfg.LoginSweepInterval, func() {
			sweepLoginRequests(ctx, cfg, sweeper)
		})
		return nil
	})
}

func sweepLoginRequests(ctx context.Context, cfg *config.Config, sweeper loginSweeper) {
	if _, _, err := sweeper.Sweep(ctx, cfg.LoginRecordRetention, cfg.StaleLoginExpiry); err != nil {
		sweepErrorLogger.logIfNeeded("sweep_login_requests", err)
	}
}

// addMetricsGaugeUpdateJob adds periodic metrics gauge update job
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db core.MetricsStore,
	prometheusMetrics metrics.Recorder,
	metricsCache core.Cache[int64],
) {
	if !cfg.MetricsEnabled || !cfg.MetricsGaugeUpdateEnabled || metricsCache == nil {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		cacheWrapper := metrics.NewCacheWrapper(db, metricsCache, cfg.StaleLoginExpiry)
		runPeriodically(ctx, cfg.MetricsGaugeUpdateInterval, func() {
			updateGaugeMetricsWithCache(
				ctx,
				cacheWrapper,
				prometheusMetrics,
				cfg.MetricsGaugeUpdateInterval,
			)
		})
		return nil
	})
}

// addCacheCleanupJob adds cache cleanup on shutdown
func addCacheCleanupJob(m *graceful.Manager, name string, closer func() error) {
	if closer == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := closer(); err != nil {
			log.Printf("Error closing %s: %v", name, err)
		} else {
			log.Printf("%s closed", name)
		}
		return nil
	})
}

// runPeriodically calls fn immediately and then every interval until ctx is done
func runPeriodically(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// errorLogger handles rate-limited error logging
type errorLogger struct {
	lastErrorTimes  map[string]time.Time
	rateLimitWindow time.Duration
}

// newErrorLogger creates a new error logger with rate limiting
func newErrorLogger() *errorLogger {
	return &errorLogger{
		lastErrorTimes:  make(map[string]time.Time),
		rateLimitWindow: 5 * time.Minute, // Log at most once per 5 minutes per operation
	}
}

// logIfNeeded logs an error only if rate limit allows
func (e *errorLogger) logIfNeeded(operation string, err error) bool {
	now := time.Now()
	lastTime, exists := e.lastErrorTimes[operation]

	if !exists || now.Sub(lastTime) >= e.rateLimitWindow {
		log.Printf("%s failed: %v (further errors will be suppressed for %v)",
			operation, err, e.rateLimitWindow)
		e.lastErrorTimes[operation] = now
		return true
	}
	return false
}

// Each job logs from its own goroutine, so each gets its own logger
var (
	gaugeErrorLogger = newErrorLogger()
	sweepErrorLogger = newErrorLogger()
)

// updateGaugeMetricsWithCache updates gauge metrics using a cache-backed store.
// This reduces database load in multi-instance deployments by caching query results.
// The cache TTL should match the update interval to ensure consistent behavior.
func updateGaugeMetricsWithCache(
	ctx context.Context,
	cacheWrapper *metrics.CacheWrapper,
	m metrics.Recorder,
	cacheTTL time.Duration,
) {
	activeRefresh, err := cacheWrapper.GetActiveRefreshRecordsCount(ctx, cacheTTL)
	if err != nil {
		m.RecordDatabaseQueryError("count_active_refresh_records")
		gaugeErrorLogger.logIfNeeded("count_active_refresh_records", err)
	} else {
		m.SetActiveRefreshRecords(int(activeRefresh))
	}

	pendingLogins, err := cacheWrapper.GetPendingLoginRequestsCount(ctx, cacheTTL)
	if err != nil {
		m.RecordDatabaseQueryError("count_pending_login_requests")
		gaugeErrorLogger.logIfNeeded("count_pending_login_requests", err)
	} else {
		m.SetPendingLoginRequests(int(pendingLogins))
	}
}

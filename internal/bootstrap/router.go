package bootstrap

import (
	"log"
	"net/http"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/handlers"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/middleware"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/simonsobs/soauth/api" // swagger docs
)

// sessionCookieName is the cookie that binds /login to /callback
const sessionCookieName = "soauth_session"

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	s serviceSet,
	prometheusMetrics metrics.Recorder,
	tokenCache core.Cache[models.TokenUser],
	rateLimitRedisClient *redis.Client,
) (*gin.Engine, error) {
	// Setup Gin mode
	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(prometheusMetrics))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.IPMiddleware())

	// Setup session middleware
	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	var cacheHealth handlers.CacheHealth
	if tokenCache != nil {
		cacheHealth = tokenCache
	}
	r.GET("/health", handlers.NewHealthHandler(db, cacheHealth).Health)

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Setup rate limiting
	rateLimiters, err := setupRateLimiting(cfg, s.audit, rateLimitRedisClient)
	if err != nil {
		return nil, err
	}

	bearer := middleware.NewBearerAuth(s.access, tokenCache, cfg.TokenCacheTTL, prometheusMetrics)

	// Setup all routes
	setupAllRoutes(r, cfg, h, s, bearer, rateLimiters)

	// Log server startup info
	logServerStartup(cfg)

	return r, nil
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode, // Lax mode required for provider callbacks
	})
	r.Use(sessions.Sessions(sessionCookieName, sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	cfg *config.Config,
	h handlerSet,
	s serviceSet,
	bearer *middleware.BearerAuth,
	rateLimiters rateLimitMiddlewares,
) {
	// Login handshake (browser)
	r.GET("/login/:app_id", rateLimiters.login, h.login.Login)
	r.GET("/callback", h.login.Callback)
	r.GET("/callback/self", h.login.CallbackSelf)

	// Token endpoints (called by apps)
	r.POST("/code/:app_id", rateLimiters.code, h.login.Code)
	r.POST("/exchange", rateLimiters.exchange, h.token.Exchange)
	r.POST("/expire", h.token.Expire)
	r.DELETE("/expire/:id", bearer.RequireAuth(), h.token.ExpireByID)

	// Account routes (require a management token)
	me := r.Group("/api/me", bearer.RequireAuth())
	{
		me.GET("", h.account.Me)
		me.GET("/sessions", h.account.Sessions)
		me.GET("/apps", h.account.Apps)
		me.POST("/api-keys/:app_id", h.account.IssueAPIKey)
	}

	// Admin routes (require the admin grant)
	admin := r.Group("/api/admin", bearer.RequireAuth(), middleware.RequireAdmin())
	{
		admin.POST("/apps", h.admin.CreateApp)
		admin.GET("/apps", h.admin.ListApps)
		admin.GET("/apps/:id", h.admin.GetApp)
		admin.DELETE("/apps/:id", h.admin.DeleteApp)
		admin.POST("/apps/:id/keys", h.admin.RotateKeys)
		admin.POST("/apps/:id/secret", h.admin.RotateSecret)
		admin.GET("/apps/:id/sessions", h.admin.AppSessions)

		admin.POST("/groups", h.admin.CreateGroup)
		admin.GET("/groups", h.admin.ListGroups)
		admin.GET("/groups/:id", h.admin.GetGroup)
		admin.PUT("/groups/:id/grants", h.admin.SetGroupGrants)
		admin.DELETE("/groups/:id", h.admin.DeleteGroup)
		admin.POST("/groups/:id/members/:user_id", h.admin.AddGroupMember)
		admin.DELETE("/groups/:id/members/:user_id", h.admin.RemoveGroupMember)

		admin.GET("/users", h.admin.ListUsers)
		admin.GET("/users/:id", h.admin.GetUser)
		admin.GET("/users/:id/sessions", h.admin.UserSessions)
		admin.POST("/users/:id/grants", h.admin.AddGrant)
		admin.DELETE("/users/:id/grants/:grant", h.admin.RemoveGrant)

		admin.GET("/audit", h.audit.ListAuditLogs)
		admin.GET("/audit/stats", h.audit.GetAuditLogStats)
		admin.GET("/audit/export", h.audit.ExportAuditLogs)
	}

	// API documentation (admins only, browsers authenticate with the
	// management app cookie)
	r.GET(
		"/swagger/*any",
		bearer.RequireAuth(),
		middleware.RequireAdmin(),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)
	log.Printf("Swagger UI enabled at: %s/swagger/index.html", cfg.BaseURL)

	// Management app details (development only)
	if !cfg.IsProduction {
		r.GET("/developer_details", handlers.DeveloperDetails(s.app, cfg.KeyPairType))
		log.Printf("Developer details enabled at: %s/developer_details", cfg.BaseURL)
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	mode := ginModeMap[cfg.IsProduction]
	gin.SetMode(mode)
	log.Printf("Gin mode: %s", ginModeLogMessage[cfg.IsProduction])
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}

var ginModeLogMessage = map[bool]string{
	true:  "Release (production)",
	false: "Debug (development)",
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("Identity provider: %s", cfg.AuthProvider)
	log.Printf("soauth server starting on %s", cfg.ServerAddr)
	log.Printf("Login URL: %s/login/<app_id>", cfg.BaseURL)
	log.Printf("Management app domain: %s", cfg.ManagementAppDomain)
}

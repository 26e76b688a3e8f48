package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/simonsobs/soauth/internal/services"
	"github.com/simonsobs/soauth/internal/version"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// DatabaseHealth is satisfied by *store.Store.
type DatabaseHealth interface {
	Health() error
}

// CacheHealth is satisfied by every core.Cache implementation.
type CacheHealth interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db    DatabaseHealth
	cache CacheHealth
}

// NewHealthHandler creates the health handler. cache may be nil when token
// caching is disabled.
func NewHealthHandler(db DatabaseHealth, cache CacheHealth) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health godoc
//
//	@Summary		Health check
//	@Description	Check server, database and token cache health status
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	object{status=string,database=string,cache=string,version=string}	"Service is healthy"
//	@Failure		503	{object}	object{status=string,database=string,cache=string,version=string}	"Service is unhealthy"
//	@Router			/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":   "healthy",
		"database": "connected",
		"cache":    "disabled",
		"version":  version.Get().Version,
	}

	if err := h.db.Health(); err != nil {
		log.Printf("[Health] Database check failed: %v", err)
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "disconnected"
	}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.cache.Health(ctx); err != nil {
			log.Printf("[Health] Cache check failed: %v", err)
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["cache"] = "disconnected"
		} else {
			body["cache"] = "connected"
		}
	}

	c.JSON(status, body)
}

// DeveloperDetails exposes the management app id and public key so that a
// local client can be configured against a development server.
func DeveloperDetails(apps *services.AppService, keyPairType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := apps.ManagementApp(c.Request.Context())
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"authentication_app_id":     app.ID,
			"authentication_public_key": app.PublicKey,
			"authentication_key_type":   app.KeyPairType,
			"default_key_type":          keyPairType,
		})
	}
}

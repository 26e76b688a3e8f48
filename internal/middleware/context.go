package middleware

import (
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/util"

	"github.com/gin-gonic/gin"
)

// IPMiddleware stores the client IP in the request context for audit entries.
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Gin's ClientIP() handles X-Forwarded-For and other headers
		c.Request = c.Request.WithContext(util.SetIPContext(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// SetUser attaches the authenticated principal to the request context.
func SetUser(c *gin.Context, user *models.TokenUser) {
	c.Request = c.Request.WithContext(models.SetUserContext(c.Request.Context(), user))
}

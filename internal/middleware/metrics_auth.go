package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

// MetricsAuthMiddleware protects /metrics with a static bearer token.
// An empty token leaves the endpoint open.
func MetricsAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Bearer token required")
			return
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			unauthorized(c, "Invalid token")
			return
		}

		c.Next()
	}
}

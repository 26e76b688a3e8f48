package util

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey string

const clientIPKey contextKey = "client_ip"

// SetIPContext returns a copy of ctx carrying the client IP.
// An empty IP leaves ctx untouched.
func SetIPContext(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetIPFromContext extracts the client IP address from the context
func GetIPFromContext(ctx context.Context) string {
	// Gin's ClientIP() handles X-Forwarded-For and other headers
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return ginCtx.ClientIP()
	}

	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}

	return ""
}

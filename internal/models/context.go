package models

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey string

const userContextKey contextKey = "user"

// SetUserContext stores the authenticated principal in ctx.
func SetUserContext(ctx context.Context, user *TokenUser) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext returns the principal stored by SetUserContext or by the
// RequireAuth middleware on a gin context. Returns nil if none is present.
func GetUserFromContext(ctx context.Context) *TokenUser {
	if ctx == nil {
		return nil
	}
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if v, exists := ginCtx.Get(string(userContextKey)); exists {
			if user, ok := v.(*TokenUser); ok {
				return user
			}
		}
		if ginCtx.Request != nil {
			ctx = ginCtx.Request.Context()
		}
	}
	if user, ok := ctx.Value(userContextKey).(*TokenUser); ok {
		return user
	}
	return nil
}

// GetUserIDFromContext returns the principal's user ID, or empty string.
func GetUserIDFromContext(ctx context.Context) string {
	if user := GetUserFromContext(ctx); user != nil {
		return user.UserID
	}
	return ""
}

// GetUsernameFromContext returns the principal's username, or empty string.
func GetUsernameFromContext(ctx context.Context) string {
	if user := GetUserFromContext(ctx); user != nil {
		return user.Username
	}
	return ""
}

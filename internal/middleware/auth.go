package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/simonsobs/soauth/internal/cache"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/hashing"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/token"

	"github.com/gin-gonic/gin"
)

// minCacheTTL is the shortest lifetime worth caching a decoded token for
const minCacheTTL = time.Second

// Cookies set by /callback/self for browser sessions of the management app
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// AccessTokenVerifier decodes a bearer access token into its principal.
type AccessTokenVerifier interface {
	VerifyManagementToken(ctx context.Context, tokenString string) (*models.TokenUser, error)
}

// BearerAuth authenticates API requests with management-app access tokens.
// Decoded tokens are cached by digest until the earlier of the configured TTL
// and the token's own expiry.
type BearerAuth struct {
	verifier AccessTokenVerifier
	cache    core.Cache[models.TokenUser]
	ttl      time.Duration
	metrics  core.Recorder
	now      func() time.Time
}

// NewBearerAuth creates the bearer middleware. A nil cache or a zero ttl
// disables caching.
func NewBearerAuth(
	verifier AccessTokenVerifier,
	tokenCache core.Cache[models.TokenUser],
	ttl time.Duration,
	m core.Recorder,
) *BearerAuth {
	return &BearerAuth{
		verifier: verifier,
		cache:    tokenCache,
		ttl:      ttl,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal in the request context.
func (b *BearerAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			raw, ok = cookieToken(c)
		}
		if !ok {
			unauthorized(c, "Bearer token required")
			return
		}

		start := time.Now()
		user, result, err := b.authenticate(c.Request.Context(), raw)
		b.metrics.RecordTokenValidation(result, time.Since(start))
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				unauthorized(c, "Token expired")
				return
			}
			if !isClientTokenError(err) {
				log.Printf("[Auth] Token verification failed: %v", err)
			}
			unauthorized(c, "Invalid token")
			return
		}

		SetUser(c, user)
		c.Next()
	}
}

func (b *BearerAuth) authenticate(
	ctx context.Context,
	raw string,
) (*models.TokenUser, string, error) {
	key, err := hashing.Digest(raw, hashing.BLAKE3)
	if err != nil {
		return nil, "error", err
	}

	now := b.now()
	if b.cache != nil && b.ttl > 0 {
		cached, err := b.cache.Get(ctx, key)
		if err == nil && now.Before(cached.ExpiresAt) {
			return &cached, "cached", nil
		}
		if cache.IsDegraded(err) {
			log.Printf("[Auth] Token cache lookup failed, verifying directly: %v", err)
		}
	}

	user, err := b.verifier.VerifyManagementToken(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, "expired", err
		}
		return nil, "invalid", err
	}

	if b.cache != nil && b.ttl > 0 {
		ttl := min(b.ttl, user.ExpiresAt.Sub(now))
		if ttl >= minCacheTTL {
			if err := b.cache.Set(ctx, key, *user, ttl); err != nil {
				log.Printf("[Auth] Failed to cache decoded token: %v", err)
			}
		}
	}
	return user, "valid", nil
}

// RequireGrant rejects principals that do not hold grant. It must run after
// RequireAuth.
func RequireGrant(grant string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := models.GetUserFromContext(c)
		if user == nil {
			unauthorized(c, "Bearer token required")
			return
		}
		if !user.GrantSet().Has(grant) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "forbidden",
				"error_description": "Missing grant " + models.NormalizeGrant(grant),
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireGrant for the admin grant.
func RequireAdmin() gin.HandlerFunc {
	return RequireGrant(models.GrantAdmin)
}

// bearerToken extracts the credential from an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// cookieToken falls back to the access token cookie of a browser session.
func cookieToken(c *gin.Context) (string, bool) {
	value, err := c.Cookie(AccessTokenCookie)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func unauthorized(c *gin.Context, description string) {
	c.Header("WWW-Authenticate", `Bearer realm="soauth"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "unauthorized",
		"error_description": description,
	})
}

func isClientTokenError(err error) bool {
	return errors.Is(err, token.ErrTokenInvalid) ||
		errors.Is(err, token.ErrMalformedToken) ||
		errors.Is(err, token.ErrTokenExpired)
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/simonsobs/soauth/internal/cache"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/mocks"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeVerifier accepts tokens of the form "good-<user>" and counts calls.
type fakeVerifier struct {
	calls   atomic.Int32
	expires time.Time
	grants  []string
}

func (f *fakeVerifier) VerifyManagementToken(
	ctx context.Context,
	tokenString string,
) (*models.TokenUser, error) {
	f.calls.Add(1)
	switch tokenString {
	case "expired":
		return nil, fmt.Errorf("%w: exp passed", token.ErrTokenExpired)
	case "broken":
		return nil, errors.New("database is down")
	}
	if len(tokenString) < 5 || tokenString[:5] != "good-" {
		return nil, token.ErrTokenInvalid
	}
	return &models.TokenUser{
		UserID:    "id-" + tokenString[5:],
		Username:  tokenString[5:],
		AppID:     "mgmt",
		Grants:    f.grants,
		ExpiresAt: f.expires,
	}, nil
}

func newAuthRouter(b *BearerAuth, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{b.RequireAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		user := models.GetUserFromContext(c)
		c.String(http.StatusOK, user.Username)
	})
	r.GET("/api/me", handlers...)
	return r
}

func doBearer(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	verifier := &fakeVerifier{expires: time.Now().Add(time.Hour)}
	b := NewBearerAuth(verifier, nil, 0, metrics.NewNoopMetrics())
	r := newAuthRouter(b)

	tests := []struct {
		name        string
		token       string
		wantCode    int
		wantMessage string
	}{
		{"valid", "good-alice", http.StatusOK, "alice"},
		{"missing", "", http.StatusUnauthorized, "Bearer token required"},
		{"invalid", "forged", http.StatusUnauthorized, "Invalid token"},
		{"expired", "expired", http.StatusUnauthorized, "Token expired"},
		{"verifier failure", "broken", http.StatusUnauthorized, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doBearer(r, tt.token)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantMessage)
		})
	}
}

func TestRequireAuth_CookieFallback(t *testing.T) {
	verifier := &fakeVerifier{expires: time.Now().Add(time.Hour)}
	b := NewBearerAuth(verifier, nil, 0, metrics.NewNoopMetrics())
	r := newAuthRouter(b)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good-bob"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())

	// The header wins over the cookie
	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer good-alice")
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good-bob"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "alice", w.Body.String())
}

func TestRequireAuth_CachesDecodedTokens(t *testing.T) {
	verifier := &fakeVerifier{expires: time.Now().Add(time.Hour)}
	tokenCache := cache.NewMemoryCache[models.TokenUser](16)
	b := NewBearerAuth(verifier, tokenCache, 10*time.Minute, metrics.NewNoopMetrics())
	r := newAuthRouter(b)

	for range 3 {
		w := doBearer(r, "good-alice")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", w.Body.String())
	}
	assert.Equal(t, int32(1), verifier.calls.Load())

	// Failures are never cached
	for range 2 {
		assert.Equal(t, http.StatusUnauthorized, doBearer(r, "forged").Code)
	}
	assert.Equal(t, int32(3), verifier.calls.Load())
	assert.Equal(t, 1, tokenCache.Len())
}

func TestRequireAuth_CacheTTLBoundedByExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresIn time.Duration
		wantTTL   time.Duration
	}{
		{"configured ttl", time.Hour, 10 * time.Minute},
		{"token expiry", 2 * time.Minute, 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tokenCache := mocks.NewMockCache[models.TokenUser](ctrl)
			verifier := &fakeVerifier{expires: now.Add(tt.expiresIn)}

			b := NewBearerAuth(verifier, tokenCache, 10*time.Minute, metrics.NewNoopMetrics())
			b.now = func() time.Time { return now }

			tokenCache.EXPECT().Get(gomock.Any(), gomock.Any()).
				Return(models.TokenUser{}, cache.ErrCacheMiss)
			tokenCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), tt.wantTTL).Return(nil)

			assert.Equal(t, http.StatusOK, doBearer(newAuthRouter(b), "good-alice").Code)
		})
	}
}

func TestRequireAuth_SkipsCachingNearExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl := gomock.NewController(t)
	tokenCache := mocks.NewMockCache[models.TokenUser](ctrl)
	verifier := &fakeVerifier{expires: now.Add(500 * time.Millisecond)}

	b := NewBearerAuth(verifier, tokenCache, 10*time.Minute, metrics.NewNoopMetrics())
	b.now = func() time.Time { return now }

	tokenCache.EXPECT().Get(gomock.Any(), gomock.Any()).
		Return(models.TokenUser{}, cache.ErrCacheMiss)
	// No Set expected

	assert.Equal(t, http.StatusOK, doBearer(newAuthRouter(b), "good-alice").Code)
}

func TestRequireAuth_IgnoresExpiredCacheEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl := gomock.NewController(t)
	tokenCache := mocks.NewMockCache[models.TokenUser](ctrl)
	verifier := &fakeVerifier{expires: now.Add(time.Hour)}

	b := NewBearerAuth(verifier, tokenCache, 10*time.Minute, metrics.NewNoopMetrics())
	b.now = func() time.Time { return now }

	tokenCache.EXPECT().Get(gomock.Any(), gomock.Any()).
		Return(models.TokenUser{Username: "stale", ExpiresAt: now}, nil)
	tokenCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	w := doBearer(newAuthRouter(b), "good-alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
	assert.Equal(t, int32(1), verifier.calls.Load())
}

func TestRequireAuth_CacheUnavailableFallsBackToVerifier(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl := gomock.NewController(t)
	tokenCache := mocks.NewMockCache[models.TokenUser](ctrl)
	verifier := &fakeVerifier{expires: now.Add(time.Hour)}

	b := NewBearerAuth(verifier, tokenCache, 10*time.Minute, metrics.NewNoopMetrics())
	b.now = func() time.Time { return now }

	tokenCache.EXPECT().Get(gomock.Any(), gomock.Any()).
		Return(models.TokenUser{}, fmt.Errorf("%w: connection refused", cache.ErrCacheUnavailable))
	tokenCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cache.ErrCacheUnavailable)

	w := doBearer(newAuthRouter(b), "good-alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
	assert.Equal(t, int32(1), verifier.calls.Load())
}

func TestRequireGrant(t *testing.T) {
	verifier := &fakeVerifier{expires: time.Now().Add(time.Hour), grants: []string{"observer"}}
	b := NewBearerAuth(verifier, nil, 0, metrics.NewNoopMetrics())

	allowed := newAuthRouter(b, RequireGrant("Observer"))
	assert.Equal(t, http.StatusOK, doBearer(allowed, "good-alice").Code)

	denied := newAuthRouter(b, RequireAdmin())
	w := doBearer(denied, "good-alice")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "admin")

	verifier.grants = []string{"admin"}
	assert.Equal(t, http.StatusOK, doBearer(denied, "good-alice").Code)
}

func TestRequireGrant_WithoutPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/simonsobs/soauth/internal/auth"
	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/middleware"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://localhost:8080"

type handlerEnv struct {
	store   *store.Store
	config  *config.Config
	users   *services.UserService
	authz   *services.AuthorizationService
	refresh *services.RefreshService
	access  *services.AccessService
	login   *services.LoginService
	flow    *services.FlowService
	apps    *services.AppService
	groups  *services.GroupService
	audit   *services.AuditService
	router  *gin.Engine
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                testBaseURL,
		ManagementAppDomain:    testBaseURL,
		SessionSecret:          "test-session-secret-test-session-secret",
		SessionMaxAge:          3600,
		KeyPassword:            "test-key-password",
		KeyPairType:            "Ed25519",
		KeyScryptWorkFactor:    10,
		HashAlgorithm:          "blake3",
		RefreshTokenExpiration: 24 * time.Hour,
		AccessTokenExpiration:  time.Hour,
		StaleLoginExpiry:       30 * time.Minute,
		LoginRecordRetention:   14 * 24 * time.Hour,
		AuthProvider:           config.ProviderMock,
		MockUserName:           "mockuser",
		MockFullName:           "Mock User",
		MockEmail:              "mock@example.com",
		AdminUsers:             []string{"root"},
		EnableAuditLogging:     true,
	}
}

// newHandlerEnv wires real services against an in-memory store with the mock
// provider, and mounts every handler on a test router.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := testConfig()
	noop := metrics.NewNoopMetrics()
	codec := token.NewCodec()
	keyring := services.NewKeyring(cfg.KeyPassword)
	audit := services.NewAuditService(s, cfg.EnableAuditLogging, 100)
	t.Cleanup(func() { _ = audit.Shutdown(context.Background()) })

	authz := services.NewAuthorizationService(s, cfg, audit)
	users := services.NewUserService(s, cfg, authz)
	provider := auth.NewMockProvider(cfg.BaseURL, auth.MockProfile{
		Username: cfg.MockUserName,
		FullName: cfg.MockFullName,
		Email:    cfg.MockEmail,
	}, users)
	refresh := services.NewRefreshService(s, cfg, codec, keyring, audit, noop)
	access := services.NewAccessService(s, cfg, codec, keyring, authz, audit)
	login := services.NewLoginService(s, cfg, provider, audit, noop)
	flow := services.NewFlowService(s, refresh, access, authz, login, provider, noop)
	apps := services.NewAppService(s, cfg, audit)
	groups := services.NewGroupService(s, audit)

	_, _, err = apps.EnsureManagementApp(context.Background())
	require.NoError(t, err)

	env := &handlerEnv{
		store:   s,
		config:  cfg,
		users:   users,
		authz:   authz,
		refresh: refresh,
		access:  access,
		login:   login,
		flow:    flow,
		apps:    apps,
		groups:  groups,
		audit:   audit,
	}
	env.router = env.newRouter()
	return env
}

func (e *handlerEnv) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.IPMiddleware())
	sessionStore := cookie.NewStore([]byte(e.config.SessionSecret))
	r.Use(sessions.Sessions("soauth_session", sessionStore))

	bearer := middleware.NewBearerAuth(e.access, nil, 0, metrics.NewNoopMetrics())
	loginHandler := NewLoginHandler(e.login, e.flow, e.apps, e.config)
	tokenHandler := NewTokenHandler(e.flow, e.refresh)
	accountHandler := NewAccountHandler(e.users, e.authz, e.refresh, e.flow, e.apps)
	adminHandler := NewAdminHandler(e.apps, e.groups, e.users, e.authz, e.refresh)
	auditHandler := NewAuditHandler(e.audit)

	r.GET("/health", NewHealthHandler(e.store, nil).Health)
	r.GET("/login/:app_id", loginHandler.Login)
	r.GET("/callback", loginHandler.Callback)
	r.GET("/callback/self", loginHandler.CallbackSelf)
	r.POST("/code/:app_id", loginHandler.Code)
	r.POST("/exchange", tokenHandler.Exchange)
	r.POST("/expire", tokenHandler.Expire)
	r.DELETE("/expire/:id", bearer.RequireAuth(), tokenHandler.ExpireByID)

	me := r.Group("/api/me", bearer.RequireAuth())
	me.GET("", accountHandler.Me)
	me.GET("/sessions", accountHandler.Sessions)
	me.GET("/apps", accountHandler.Apps)
	me.POST("/api-keys/:app_id", accountHandler.IssueAPIKey)

	admin := r.Group("/api/admin", bearer.RequireAuth(), middleware.RequireAdmin())
	admin.POST("/apps", adminHandler.CreateApp)
	admin.GET("/apps", adminHandler.ListApps)
	admin.GET("/apps/:id", adminHandler.GetApp)
	admin.DELETE("/apps/:id", adminHandler.DeleteApp)
	admin.POST("/apps/:id/keys", adminHandler.RotateKeys)
	admin.POST("/apps/:id/secret", adminHandler.RotateSecret)
	admin.GET("/apps/:id/sessions", adminHandler.AppSessions)
	admin.POST("/groups", adminHandler.CreateGroup)
	admin.GET("/groups", adminHandler.ListGroups)
	admin.GET("/groups/:id", adminHandler.GetGroup)
	admin.PUT("/groups/:id/grants", adminHandler.SetGroupGrants)
	admin.DELETE("/groups/:id", adminHandler.DeleteGroup)
	admin.POST("/groups/:id/members/:user_id", adminHandler.AddGroupMember)
	admin.DELETE("/groups/:id/members/:user_id", adminHandler.RemoveGroupMember)
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/users/:id", adminHandler.GetUser)
	admin.GET("/users/:id/sessions", adminHandler.UserSessions)
	admin.POST("/users/:id/grants", adminHandler.AddGrant)
	admin.DELETE("/users/:id/grants/:grant", adminHandler.RemoveGrant)
	admin.GET("/audit", auditHandler.ListAuditLogs)
	admin.GET("/audit/stats", auditHandler.GetAuditLogStats)
	admin.GET("/audit/export", auditHandler.ExportAuditLogs)
	return r
}

func (e *handlerEnv) createUser(t *testing.T, username string, grants ...string) *models.User {
	t.Helper()
	user := &models.User{
		ID:         uuid.New().String(),
		Username:   username,
		FullName:   "Test " + username,
		Email:      username + "@example.com",
		Grants:     models.NewGrantSet(grants...),
		Provider:   "mock",
		ExternalID: uuid.New().String(),
	}
	require.NoError(t, e.store.CreateUser(user))
	return user
}

func (e *handlerEnv) createApp(t *testing.T, owner *models.User, apiAccess bool) (*models.App, string) {
	t.Helper()
	resp, err := e.apps.CreateApp(context.Background(), owner, services.CreateAppRequest{
		Name:        "Test App",
		Domain:      "https://app.example.com",
		RedirectURL: "https://app.example.com/callback",
		APIAccess:   apiAccess,
	})
	require.NoError(t, err)
	return resp.App, resp.ClientSecret
}

// bearerFor logs user in to the management app and returns the access token.
func (e *handlerEnv) bearerFor(t *testing.T, user *models.User) string {
	t.Helper()
	app, err := e.apps.ManagementApp(context.Background())
	require.NoError(t, err)
	pair, err := e.flow.Primary(context.Background(), user, app)
	require.NoError(t, err)
	return pair.AccessToken
}

// request performs a request against the test router. body may be nil, a
// url.Values form or a JSON string.
func (e *handlerEnv) request(
	t *testing.T,
	method, target string,
	body any,
	bearer string,
	cookies ...*http.Cookie,
) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, target, nil)
	case url.Values:
		req = httptest.NewRequest(method, target, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case string:
		req = httptest.NewRequest(method, target, strings.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	default:
		t.Fatalf("unsupported body type %T", body)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// redirectQuery parses the Location header of a redirect.
func redirectQuery(t *testing.T, w *httptest.ResponseRecorder) (*url.URL, url.Values) {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return loc, loc.Query()
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by the codec and the login service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	store         *store.Store
	config        *config.Config
	clock         *testClock
	codec         *token.Codec
	keyring       *Keyring
	authorization *AuthorizationService
	users         *UserService
	refresh       *RefreshService
	access        *AccessService
	login         *LoginService
	flow          *FlowService
	apps          *AppService
	groups        *GroupService
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:8080",
		ManagementAppDomain:    "http://localhost:8080",
		KeyPassword:            "test-key-password",
		KeyPairType:            "Ed25519",
		KeyScryptWorkFactor:    10,
		HashAlgorithm:          "blake3",
		RefreshTokenExpiration: 24 * time.Hour,
		AccessTokenExpiration:  time.Hour,
		StaleLoginExpiry:       30 * time.Minute,
		LoginRecordRetention:   14 * 24 * time.Hour,
		GitHubOrganizations:    []string{"simonsobs"},
		AdminUsers:             []string{"root"},
	}
}

// newTestEnv wires every service against a fresh in-memory store. Audit
// logging is disabled; provider may be nil for tests that never log in.
func newTestEnv(t *testing.T, provider core.IdentityProvider) *testEnv {
	t.Helper()

	s := setupTestStore(t)
	cfg := testConfig()
	clock := newTestClock()
	codec := token.NewCodec(token.WithClock(clock.Now))
	keyring := NewKeyring(cfg.KeyPassword)
	noop := metrics.NewNoopMetrics()

	authz := NewAuthorizationService(s, cfg, nil)
	refresh := NewRefreshService(s, cfg, codec, keyring, nil, noop)
	access := NewAccessService(s, cfg, codec, keyring, authz, nil)
	login := NewLoginService(s, cfg, provider, nil, noop)
	login.now = clock.Now

	return &testEnv{
		store:         s,
		config:        cfg,
		clock:         clock,
		codec:         codec,
		keyring:       keyring,
		authorization: authz,
		users:         NewUserService(s, cfg, authz),
		refresh:       refresh,
		access:        access,
		login:         login,
		flow:          NewFlowService(s, refresh, access, authz, login, provider, noop),
		apps:          NewAppService(s, cfg, nil),
		groups:        NewGroupService(s, nil),
	}
}

func (e *testEnv) createUser(t *testing.T, username string, grants ...string) *models.User {
	t.Helper()
	user := &models.User{
		ID:         uuid.New().String(),
		Username:   username,
		FullName:   "Test " + username,
		Email:      username + "@example.com",
		Grants:     models.NewGrantSet(grants...),
		Provider:   "github",
		ExternalID: uuid.New().String(),
	}
	require.NoError(t, e.store.CreateUser(user))
	return user
}

func (e *testEnv) createApp(t *testing.T, owner *models.User, mutate ...func(*CreateAppRequest)) *models.App {
	t.Helper()
	req := CreateAppRequest{
		Name:        "Test App",
		Domain:      "https://app.example.com",
		RedirectURL: "https://app.example.com/callback",
	}
	for _, fn := range mutate {
		fn(&req)
	}
	resp, err := e.apps.CreateApp(context.Background(), owner, req)
	require.NoError(t, err)
	return resp.App
}

func (e *testEnv) createAppWithSecret(t *testing.T, owner *models.User) (*models.App, string) {
	t.Helper()
	resp, err := e.apps.CreateApp(context.Background(), owner, CreateAppRequest{
		Name:        "Secret App",
		Domain:      "https://app.example.com",
		RedirectURL: "https://app.example.com/callback",
	})
	require.NoError(t, err)
	return resp.App, resp.ClientSecret
}

// activeRecords returns the live non-API-key records of a user at an app.
func (e *testEnv) activeRecords(t *testing.T, userID, appID string) []models.RefreshRecord {
	t.Helper()
	apiKey := false
	records, err := e.store.ListActiveRefreshRecords(store.RefreshRecordFilter{
		UserID: userID,
		AppID:  appID,
		APIKey: &apiKey,
	}, e.clock.Now())
	require.NoError(t, err)
	return records
}

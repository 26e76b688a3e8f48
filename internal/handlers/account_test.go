package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice", "lvl1")
	_, err := env.groups.CreateGroup(t.Context(), alice, services.CreateGroupRequest{
		Name:   "Data Team",
		Grants: []string{"lvl2"},
	})
	require.NoError(t, err)

	w := env.request(t, http.MethodGet, "/api/me", nil, env.bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, alice.ID, me.ID)
	assert.Equal(t, "alice", me.Username)
	assert.ElementsMatch(t, []string{"lvl1", "lvl2"}, me.EffectiveGrants)
	require.Len(t, me.Groups, 1)
	assert.Equal(t, "data_team", me.Groups[0].Name)
}

func TestMe_Unauthenticated(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")
	app, _ := env.createApp(t, alice, false)

	// Tokens for other apps do not authenticate the API
	pair, err := env.flow.Primary(t.Context(), alice, app)
	require.NoError(t, err)

	for name, bearer := range map[string]string{
		"missing":           "",
		"garbage":           "garbage",
		"third-party token": pair.AccessToken,
		"refresh token":     pair.RefreshToken,
	} {
		t.Run(name, func(t *testing.T) {
			w := env.request(t, http.MethodGet, "/api/me", nil, bearer)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, `Bearer realm="soauth"`, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestMe_DeletedUser(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")
	bearer := env.bearerFor(t, alice)
	require.NoError(t, env.store.DeleteUser(alice.ID))

	w := env.request(t, http.MethodGet, "/api/me", nil, bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMySessions(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	app, _ := env.createApp(t, alice, false)

	_, err := env.flow.Primary(t.Context(), alice, app)
	require.NoError(t, err)
	_, err = env.flow.Primary(t.Context(), bob, app)
	require.NoError(t, err)
	bearer := env.bearerFor(t, alice)

	w := env.request(t, http.MethodGet, "/api/me/sessions", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Sessions []models.RefreshRecord `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// The third-party app session plus the management session behind the bearer
	require.Len(t, resp.Sessions, 2)
	for _, s := range resp.Sessions {
		assert.Equal(t, alice.ID, s.UserID)
	}
	assert.NotContains(t, w.Body.String(), "hashed_content")
}

func TestIssueAPIKey(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")
	apiApp, _ := env.createApp(t, alice, true)
	plainApp, _ := env.createApp(t, alice, false)
	bearer := env.bearerFor(t, alice)

	session, err := env.flow.Primary(t.Context(), alice, apiApp)
	require.NoError(t, err)

	w := env.request(t, http.MethodPost, "/api/me/api-keys/"+apiApp.ID, nil, bearer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.RefreshToken)

	record, err := env.refresh.Get(t.Context(), pair.RefreshKeyID)
	require.NoError(t, err)
	assert.True(t, record.APIKey)

	// The interactive session survives
	record, err = env.refresh.Get(t.Context(), session.RefreshKeyID)
	require.NoError(t, err)
	assert.False(t, record.Revoked)

	w = env.request(t, http.MethodPost, "/api/me/api-keys/"+plainApp.ID, nil, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.request(t, http.MethodPost, "/api/me/api-keys/00000000-0000-0000-0000-000000000000", nil, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMyApps(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	mine, _ := env.createApp(t, alice, false)
	theirs, _ := env.createApp(t, bob, false)

	w := env.request(t, http.MethodGet, "/api/me/apps", nil, env.bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), mine.ID)
	assert.NotContains(t, w.Body.String(), theirs.ID)
	assert.NotContains(t, w.Body.String(), "PRIVATE KEY")
}

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

func TestAdmin_RequiresAdminGrant(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")

	w := env.request(t, http.MethodGet, "/api/admin/apps", nil, env.bearerFor(t, alice))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.request(t, http.MethodGet, "/api/admin/apps", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_AppLifecycle(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.createUser(t, "root", models.GrantAdmin)
	bearer := env.bearerFor(t, root)

	w := env.request(t, http.MethodPost, "/api/admin/apps", `{
		"name": "Portal",
		"domain": "https://portal.example.com/",
		"redirect_url": "https://portal.example.com/callback",
		"key_pair_type": "ECDSA-P256",
		"api_access": true
	}`, bearer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		AppID        string `json:"app_id"`
		Name         string `json:"name"`
		Domain       string `json:"domain"`
		KeyPairType  string `json:"key_pair_type"`
		PublicKey    string `json:"public_key"`
		OwnerID      string `json:"owner_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Portal", created.Name)
	assert.Equal(t, "ECDSA-P256", created.KeyPairType)
	assert.Equal(t, root.ID, created.OwnerID)
	assert.Contains(t, created.PublicKey, "PUBLIC KEY")
	assert.Contains(t, created.ClientSecret, models.ClientSecretPrefix)
	assert.NotContains(t, w.Body.String(), "PRIVATE KEY")

	w = env.request(t, http.MethodGet, "/api/admin/apps/"+created.AppID, nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "client_secret")

	w = env.request(t, http.MethodGet, "/api/admin/apps", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.AppID)

	// Sessions of the app, then a key rotation that ends them
	app, err := env.apps.GetApp(t.Context(), created.AppID)
	require.NoError(t, err)
	_, err = env.flow.Primary(t.Context(), root, app)
	require.NoError(t, err)

	w = env.request(t, http.MethodGet, "/api/admin/apps/"+created.AppID+"/sessions", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions struct {
		Sessions []models.RefreshRecord `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Len(t, sessions.Sessions, 1)

	w = env.request(t, http.MethodPost, "/api/admin/apps/"+created.AppID+"/keys", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), created.PublicKey)

	records, err := env.refresh.ListActiveForApp(t.Context(), created.AppID)
	require.NoError(t, err)
	assert.Empty(t, records)

	w = env.request(t, http.MethodPost, "/api/admin/apps/"+created.AppID+"/secret", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var rotated services.AppResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, created.ClientSecret, rotated.ClientSecret)

	w = env.request(t, http.MethodDelete, "/api/admin/apps/"+created.AppID, nil, bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.request(t, http.MethodGet, "/api/admin/apps/"+created.AppID, nil, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_CreateAppValidation(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.createUser(t, "root", models.GrantAdmin)
	bearer := env.bearerFor(t, root)

	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"name":"x"}`},
		{"relative domain", `{"name":"x","domain":"portal","redirect_url":"https://p.example.com/cb"}`},
		{"unknown key type", `{"name":"x","domain":"https://p.example.com","redirect_url":"https://p.example.com/cb","key_pair_type":"RSA"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/api/admin/apps", tt.body, bearer)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestAdmin_ManagementAppCannotBeDeleted(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.createUser(t, "root", models.GrantAdmin)
	mgmt, err := env.apps.ManagementApp(t.Context())
	require.NoError(t, err)

	w := env.request(t, http.MethodDelete, "/api/admin/apps/"+mgmt.ID, nil, env.bearerFor(t, root))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_Groups(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.createUser(t, "root", models.GrantAdmin)
	alice := env.createUser(t, "alice")
	bearer := env.bearerFor(t, root)

	w := env.request(t, http.MethodPost, "/api/admin/groups",
		`{"group_name":"Data Team","grants":["lvl2"]}`, bearer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var group models.Group
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	assert.Equal(t, "data_team", group.Name)
	assert.Equal(t, "Data Team", group.DisplayName)

	w = env.request(t, http.MethodPost, "/api/admin/groups", `{"group_name":"data team"}`, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code, "normalized names are unique")

	w = env.request(t, http.MethodPost, "/api/admin/groups/"+group.ID+"/members/"+alice.ID, nil, bearer)
	require.Equal(t, http.StatusNoContent, w.Code)

	ok, err := env.authz.HasGrant(t.Context(), alice, "lvl2")
	require.NoError(t, err)
	assert.True(t, ok)

	w = env.request(t, http.MethodGet, "/api/admin/groups/"+group.ID, nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Group   models.Group  `json:"group"`
		Members []models.User `json:"members"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Len(t, detail.Members, 2)

	w = env.request(t, http.MethodDelete, "/api/admin/groups/"+group.ID+"/members/"+alice.ID, nil, bearer)
	require.Equal(t, http.StatusNoContent, w.Code)
	ok, err = env.authz.HasGrant(t.Context(), alice, "lvl2")
	require.NoError(t, err)
	assert.False(t, ok)

	w = env.request(t, http.MethodPut, "/api/admin/groups/"+group.ID+"/grants", `{"grants":["lvl3"]}`, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ok, err = env.authz.HasGrant(t.Context(), root, "lvl3")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.authz.HasGrant(t.Context(), root, "lvl2")
	require.NoError(t, err)
	assert.False(t, ok)

	w = env.request(t, http.MethodPut, "/api/admin/groups/nope/grants", `{"grants":[]}`, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodPost, "/api/admin/groups/"+group.ID+"/members/nobody", nil, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodDelete, "/api/admin/groups/"+group.ID, nil, bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.request(t, http.MethodDelete, "/api/admin/groups/"+group.ID, nil, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_UserGrants(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.createUser(t, "root", models.GrantAdmin)
	alice := env.createUser(t, "alice")
	bearer := env.bearerFor(t, root)

	w := env.request(t, http.MethodPost, "/api/admin/users/"+alice.ID+"/grants", `{"grant":"Level 3"}`, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"changed":true,"grant":"level_3"}`, w.Body.String())

	w = env.request(t, http.MethodPost, "/api/admin/users/"+alice.ID+"/grants", `{"grant":"level_3"}`, bearer)
	assert.JSONEq(t, `{"changed":false,"grant":"level_3"}`, w.Body.String())

	w = env.request(t, http.MethodGet, "/api/admin/users/"+alice.ID, nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var profile ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Contains(t, profile.EffectiveGrants, "level_3")

	w = env.request(t, http.MethodDelete, "/api/admin/users/"+alice.ID+"/grants/level_3", nil, bearer)
	assert.JSONEq(t, `{"changed":true,"grant":"level_3"}`, w.Body.String())

	w = env.request(t, http.MethodPost, "/api/admin/users/"+alice.ID+"/grants", `{"grant":"   "}`, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPost, "/api/admin/users/nobody/grants", `{"grant":"lvl1"}`, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_UserSessionsAndList(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.createUser(t, "root", models.GrantAdmin)
	alice := env.createUser(t, "alice")
	app, _ := env.createApp(t, root, false)
	_, err := env.flow.Primary(t.Context(), alice, app)
	require.NoError(t, err)
	bearer := env.bearerFor(t, root)

	w := env.request(t, http.MethodGet, "/api/admin/users/"+alice.ID+"/sessions", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions struct {
		Sessions []models.RefreshRecord `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, app.ID, sessions.Sessions[0].AppID)

	w = env.request(t, http.MethodGet, "/api/admin/users/nobody/sessions", nil, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodGet, "/api/admin/users", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alice"`)
	assert.Contains(t, w.Body.String(), `"root"`)
}

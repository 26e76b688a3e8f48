package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/simonsobs/soauth/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refreshBody(token string) string {
	return fmt.Sprintf(`{"refresh_token":%q}`, token)
}

func TestExchange(t *testing.T) {
	env := newHandlerEnv(t)
	user := env.createUser(t, "alice")
	app, _ := env.createApp(t, user, false)

	pair, err := env.flow.Primary(t.Context(), user, app)
	require.NoError(t, err)

	w := env.request(t, http.MethodPost, "/exchange", refreshBody(pair.RefreshToken), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rotated services.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, pair.RefreshKeyID, rotated.RefreshKeyID)
	assert.Equal(t, "alice", rotated.ProfileData["user_name"])

	// The old token is spent
	w = env.request(t, http.MethodPost, "/exchange", refreshBody(pair.RefreshToken), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The new one works
	w = env.request(t, http.MethodPost, "/exchange", refreshBody(rotated.RefreshToken), "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestExchange_BadRequests(t *testing.T) {
	env := newHandlerEnv(t)
	user := env.createUser(t, "alice")
	app, _ := env.createApp(t, user, false)
	pair, err := env.flow.Primary(t.Context(), user, app)
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"not json", `refresh_token=abc`},
		{"garbage token", refreshBody("not-a-token")},
		{"access token", refreshBody(pair.AccessToken)},
		{"tampered signature", refreshBody(pair.RefreshToken[:len(pair.RefreshToken)-4] + "AAAA")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/exchange", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestExchange_Expired(t *testing.T) {
	env := newHandlerEnv(t)
	env.config.RefreshTokenExpiration = time.Second
	user := env.createUser(t, "alice")
	app, _ := env.createApp(t, user, false)
	pair, err := env.flow.Primary(t.Context(), user, app)
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	w := env.request(t, http.MethodPost, "/exchange", refreshBody(pair.RefreshToken), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "expired")
}

func TestExpire(t *testing.T) {
	env := newHandlerEnv(t)
	user := env.createUser(t, "alice")
	app, _ := env.createApp(t, user, false)
	pair, err := env.flow.Primary(t.Context(), user, app)
	require.NoError(t, err)

	w := env.request(t, http.MethodPost, "/expire", refreshBody(pair.RefreshToken), "")
	assert.Equal(t, http.StatusOK, w.Code)

	record, err := env.refresh.Get(t.Context(), pair.RefreshKeyID)
	require.NoError(t, err)
	assert.True(t, record.Revoked)

	// Revoked tokens can no longer be exchanged
	w = env.request(t, http.MethodPost, "/exchange", refreshBody(pair.RefreshToken), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Anything else is accepted silently
	for _, body := range []string{refreshBody(pair.RefreshToken), refreshBody("garbage"), `{}`} {
		w := env.request(t, http.MethodPost, "/expire", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestExpireByID(t *testing.T) {
	env := newHandlerEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	app, _ := env.createApp(t, alice, false)

	alicePair, err := env.flow.Primary(t.Context(), alice, app)
	require.NoError(t, err)
	bobPair, err := env.flow.Primary(t.Context(), bob, app)
	require.NoError(t, err)
	bearer := env.bearerFor(t, alice)

	t.Run("requires authentication", func(t *testing.T) {
		w := env.request(t, http.MethodDelete, "/expire/"+alicePair.RefreshKeyID, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("someone else's key", func(t *testing.T) {
		w := env.request(t, http.MethodDelete, "/expire/"+bobPair.RefreshKeyID, nil, bearer)
		assert.Equal(t, http.StatusNotFound, w.Code)

		record, err := env.refresh.Get(t.Context(), bobPair.RefreshKeyID)
		require.NoError(t, err)
		assert.False(t, record.Revoked)
	})

	t.Run("unknown key", func(t *testing.T) {
		w := env.request(t, http.MethodDelete, "/expire/00000000-0000-0000-0000-000000000000", nil, bearer)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("own key", func(t *testing.T) {
		w := env.request(t, http.MethodDelete, "/expire/"+alicePair.RefreshKeyID, nil, bearer)
		assert.Equal(t, http.StatusOK, w.Code)

		record, err := env.refresh.Get(t.Context(), alicePair.RefreshKeyID)
		require.NoError(t, err)
		assert.True(t, record.Revoked)
	})
}

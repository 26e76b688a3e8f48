package auth

import (
	"context"
	"net/url"
	"testing"

	"github.com/simonsobs/soauth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_Redirect(t *testing.T) {
	p := NewMockProvider("http://localhost:8080/", MockProfile{Username: "admin"}, newFakeDirectory())

	target, err := p.Redirect(context.Background(), &models.LoginRequest{ID: "req-1"})
	require.NoError(t, err)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", parsed.Host)
	assert.Equal(t, "/callback", parsed.Path)
	assert.Equal(t, MockCode, parsed.Query().Get("code"))
	assert.Equal(t, "req-1", parsed.Query().Get("state"))
}

func TestMockProvider_Login(t *testing.T) {
	dir := newFakeDirectory()
	p := NewMockProvider("http://localhost:8080", MockProfile{
		Username: "admin",
		FullName: "Admin User",
		Email:    "admin@localhost",
		Grants:   "admin Simons_Observatory",
	}, dir)

	user, err := p.Login(context.Background(), MockCode)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, "mock", user.Provider)
	assert.Equal(t, []string{"admin", "simons_observatory"}, user.Grants.Slice())

	again, err := p.Login(context.Background(), MockCode)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID, "repeated logins map to the same user")

	_, err = p.Login(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestMockProvider_Refresh(t *testing.T) {
	p := NewMockProvider("http://localhost:8080", MockProfile{Username: "admin"}, newFakeDirectory())
	user := &models.User{ID: "u1", Username: "admin"}

	got, err := p.Refresh(context.Background(), user)
	require.NoError(t, err)
	assert.Same(t, user, got)
}

package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_ClientSecret(t *testing.T) {
	app := &App{ID: "app-1"}

	secret, err := app.GenerateClientSecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, ClientSecretPrefix))
	assert.NotEqual(t, secret, app.ClientSecretHash, "only the hash is stored")
	assert.True(t, app.ValidateClientSecret([]byte(secret)))
	assert.False(t, app.ValidateClientSecret([]byte(secret+"x")))
	assert.False(t, app.ValidateClientSecret(nil))

	second, err := app.GenerateClientSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, second)
	assert.False(t, app.ValidateClientSecret([]byte(secret)), "old secret is replaced")
}

func TestApp_ValidateClientSecret_NoHash(t *testing.T) {
	app := &App{}
	assert.False(t, app.ValidateClientSecret([]byte("anything")))
}

func TestApp_DomainHost(t *testing.T) {
	app := &App{Domain: "https://Docs.Example.org:8443"}
	assert.Equal(t, "docs.example.org", app.DomainHost())
}

func TestApp_VisibleTo(t *testing.T) {
	open := &App{}
	assert.True(t, open.VisibleTo(NewGrantSet()))

	restricted := &App{VisibilityGrant: "simonsobs"}
	assert.False(t, restricted.VisibleTo(NewGrantSet("read")))
	assert.True(t, restricted.VisibleTo(NewGrantSet("SimonsObs")))
}

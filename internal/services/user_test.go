package services

import (
	"context"
	"testing"

	"github.com/simonsobs/soauth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertExternalUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.users.UpsertExternalUser(ctx, &models.User{
		Username:   "alice",
		FullName:   "Alice",
		Email:      "alice@example.com",
		Provider:   "github",
		ExternalID: "1001",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.IsAdmin())

	again, err := env.users.UpsertExternalUser(ctx, &models.User{
		Username:   "alice",
		FullName:   "Alice Renamed",
		Email:      "alice@example.org",
		Provider:   "github",
		ExternalID: "1001",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "Alice Renamed", again.FullName)

	users, err := env.users.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUpsertExternalUser_AdminGrant(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.users.UpsertExternalUser(ctx, &models.User{
		Username:   "Root",
		Provider:   "github",
		ExternalID: "1",
	})
	require.NoError(t, err)
	assert.True(t, user.IsAdmin())

	stored, err := env.users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin())
}

func TestUpsertExternalUser_UsernameConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.createUser(t, "alice")

	_, err := env.users.UpsertExternalUser(ctx, &models.User{
		Username:   "alice",
		Provider:   "github",
		ExternalID: "other",
	})
	assert.ErrorIs(t, err, ErrUserSyncFailed)
}

func TestGetUser_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.users.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.users.GetUserByUsername(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

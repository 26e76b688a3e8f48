package auth

import (
	"context"

	"github.com/simonsobs/soauth/internal/models"
)

// UserDirectory stores the users that providers authenticate.
type UserDirectory interface {
	// UpsertExternalUser creates or updates a user from provider profile data.
	UpsertExternalUser(ctx context.Context, in *models.User) (*models.User, error)

	// SyncOrganizations mirrors the user's provider organizations into grants and groups.
	SyncOrganizations(
		ctx context.Context,
		user *models.User,
		provider string,
		memberships []string,
	) error
}

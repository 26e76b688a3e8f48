package core

import (
	"context"

	"github.com/simonsobs/soauth/internal/models"
)

// IdentityProvider is an external identity source users log in through.
type IdentityProvider interface {
	// Name identifies the provider, e.g. "github".
	Name() string

	// Redirect returns the URL that starts the provider's own login for req.
	// The provider must echo req.ID back to /callback as the state parameter.
	Redirect(ctx context.Context, req *models.LoginRequest) (string, error)

	// Login exchanges the provider's callback code for a stored user.
	Login(ctx context.Context, code string) (*models.User, error)

	// Refresh re-validates a user at token rotation and returns the
	// possibly updated user. An error means the session must not continue.
	Refresh(ctx context.Context, user *models.User) (*models.User, error)
}

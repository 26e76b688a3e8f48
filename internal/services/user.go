package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"
)

// ErrUserSyncFailed is returned when an external identity cannot be stored
var ErrUserSyncFailed = errors.New("failed to sync user from external provider")

// UserService stores the identities that providers hand back and serves user
// lookups for the rest of the system.
type UserService struct {
	store         *store.Store
	config        *config.Config
	authorization *AuthorizationService
}

func NewUserService(
	s *store.Store,
	cfg *config.Config,
	authorization *AuthorizationService,
) *UserService {
	return &UserService{
		store:         s,
		config:        cfg,
		authorization: authorization,
	}
}

// UpsertExternalUser creates or refreshes a user from provider profile data.
// Users listed in ADMIN_USERS are given the admin grant.
func (s *UserService) UpsertExternalUser(
	ctx context.Context,
	in *models.User,
) (*models.User, error) {
	user, err := s.store.UpsertExternalUser(in)
	if err != nil {
		if errors.Is(err, store.ErrUsernameConflict) {
			log.Printf("[User] Username conflict for %s user %s", in.Provider, in.Username)
		}
		return nil, fmt.Errorf("%w: %w", ErrUserSyncFailed, err)
	}

	if s.config.IsAdminUser(user.Username) && !user.Grants.Has(models.GrantAdmin) {
		if _, err := s.authorization.AddGrant(ctx, user.ID, models.GrantAdmin); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUserSyncFailed, err)
		}
		if user.Grants == nil {
			user.Grants = models.NewGrantSet()
		}
		user.Grants.Add(models.GrantAdmin)
		log.Printf("[User] Granted %s to %s", models.GrantAdmin, user.Username)
	}
	return user, nil
}

// SyncOrganizations delegates to the authorization service.
func (s *UserService) SyncOrganizations(
	ctx context.Context,
	user *models.User,
	provider string,
	memberships []string,
) error {
	return s.authorization.SyncOrganizations(ctx, user, provider, memberships)
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.GetUserByID(id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetUserByUsername returns a user by username.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every user.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers()
}

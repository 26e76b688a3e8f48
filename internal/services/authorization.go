package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/google/uuid"
)

// AuthorizationService resolves what a user may do: their direct grants plus
// the grants of every group they belong to.
type AuthorizationService struct {
	store         *store.Store
	config        *config.Config
	auditService  *AuditService
	organizations []string
}

func NewAuthorizationService(
	s *store.Store,
	cfg *config.Config,
	auditService *AuditService,
) *AuthorizationService {
	orgs := make([]string, 0, len(cfg.GitHubOrganizations))
	for _, org := range cfg.GitHubOrganizations {
		if org = models.NormalizeGrant(org); org != "" {
			orgs = append(orgs, org)
		}
	}
	return &AuthorizationService{
		store:         s,
		config:        cfg,
		auditService:  auditService,
		organizations: orgs,
	}
}

// OrganizationGrant names the grant and group mirrored from an external organization.
func OrganizationGrant(provider, org string) string {
	return models.NormalizeGrant(provider + "_org_" + org)
}

// Resolve returns the effective grants of user and the groups they belong to.
func (s *AuthorizationService) Resolve(
	ctx context.Context,
	user *models.User,
) (models.GrantSet, []models.Group, error) {
	groups, err := s.store.ListGroupsForUser(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load groups: %w", err)
	}

	grants := user.Grants.Union(nil)
	for i := range groups {
		grants = grants.Union(groups[i].Grants)
	}
	return grants, groups, nil
}

// EffectiveGrants returns the user's direct grants, unioned with their
// groups' grants when includeGroups is set.
func (s *AuthorizationService) EffectiveGrants(
	ctx context.Context,
	user *models.User,
	includeGroups bool,
) (models.GrantSet, error) {
	if !includeGroups {
		return user.Grants.Union(nil), nil
	}
	grants, _, err := s.Resolve(ctx, user)
	return grants, err
}

// HasGrant reports whether user holds grant directly or through a group.
func (s *AuthorizationService) HasGrant(
	ctx context.Context,
	user *models.User,
	grant string,
) (bool, error) {
	if user.Grants.Has(grant) {
		return true, nil
	}
	grants, err := s.EffectiveGrants(ctx, user, true)
	if err != nil {
		return false, err
	}
	return grants.Has(grant), nil
}

// AddGrant gives a user a direct grant. It reports whether anything changed.
func (s *AuthorizationService) AddGrant(ctx context.Context, userID, grant string) (bool, error) {
	return s.changeGrant(ctx, userID, grant, true)
}

// RemoveGrant takes a direct grant away from a user. It reports whether anything changed.
func (s *AuthorizationService) RemoveGrant(
	ctx context.Context,
	userID, grant string,
) (bool, error) {
	return s.changeGrant(ctx, userID, grant, false)
}

func (s *AuthorizationService) changeGrant(
	ctx context.Context,
	userID, grant string,
	add bool,
) (bool, error) {
	grant = models.NormalizeGrant(grant)
	if grant == "" {
		return false, fmt.Errorf("%w: empty grant", ErrAuthorization)
	}

	var changed bool
	err := s.store.RunInTransaction(func(tx *store.Store) error {
		user, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		if user.Grants == nil {
			user.Grants = models.NewGrantSet()
		}
		if add {
			changed = user.Grants.Add(grant)
		} else {
			changed = user.Grants.Remove(grant)
		}
		if !changed {
			return nil
		}
		return tx.UpdateUserGrants(user.ID, user.Grants)
	})
	if errors.Is(err, store.ErrRecordNotFound) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, err
	}

	if changed {
		action := "grant added"
		if !add {
			action = "grant removed"
		}
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventUserGrantChanged,
			ResourceType: models.ResourceUser,
			ResourceID:   userID,
			Action:       action,
			Details:      models.AuditDetails{"grant": grant},
			Success:      true,
		})
	}
	return changed, nil
}

// SyncOrganizations mirrors external organization membership into grants and
// groups. For every configured organization the user gets (or loses) the grant
// "<provider>_org_<org>" and membership in the group of the same name.
// Organizations that are not configured are ignored.
func (s *AuthorizationService) SyncOrganizations(
	ctx context.Context,
	user *models.User,
	provider string,
	memberships []string,
) error {
	if len(s.organizations) == 0 {
		return nil
	}

	member := make(map[string]bool, len(memberships))
	for _, org := range memberships {
		member[models.NormalizeGrant(org)] = true
	}

	var added, removed []string
	err := s.store.RunInTransaction(func(tx *store.Store) error {
		locked, err := tx.LockUser(user.ID)
		if err != nil {
			return err
		}
		grants := locked.Grants.Union(nil)

		for _, org := range s.organizations {
			name := OrganizationGrant(provider, org)
			if member[org] {
				if grants.Add(name) {
					added = append(added, name)
				}
				if err := ensureGroupMember(tx, name, locked.ID); err != nil {
					return err
				}
				continue
			}

			if grants.Remove(name) {
				removed = append(removed, name)
			}
			group, err := tx.GetGroupByName(name)
			if errors.Is(err, store.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.RemoveGroupMember(group.ID, locked.ID); err != nil {
				return err
			}
		}

		if len(added) == 0 && len(removed) == 0 {
			user.Grants = grants
			return nil
		}
		if err := tx.UpdateUserGrants(locked.ID, grants); err != nil {
			return err
		}
		user.Grants = grants
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sync organizations: %w", err)
	}

	if len(added) > 0 || len(removed) > 0 {
		log.Printf("[Authorization] Synced %s organizations for %s: +%v -%v",
			provider, user.Username, added, removed)
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventUserGrantChanged,
			ResourceType: models.ResourceUser,
			ResourceID:   user.ID,
			ResourceName: user.Username,
			Action:       "organization sync",
			Details: models.AuditDetails{
				"provider": provider,
				"added":    added,
				"removed":  removed,
			},
			Success: true,
		})
	}
	return nil
}

// ensureGroupMember adds userID to the group called name, creating the group
// when it does not exist yet.
func ensureGroupMember(tx *store.Store, name, userID string) error {
	group, err := tx.GetGroupByName(name)
	if errors.Is(err, store.ErrRecordNotFound) {
		group = &models.Group{
			ID:          uuid.New().String(),
			Name:        name,
			DisplayName: name,
			CreatedBy:   userID,
			Grants:      models.NewGrantSet(),
		}
		if err := tx.CreateGroup(group); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return tx.AddGroupMember(group.ID, userID)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/google/uuid"
)

// CreateGroupRequest holds the fields of a new group.
type CreateGroupRequest struct {
	Name        string   `json:"group_name"   binding:"required"`
	DisplayName string   `json:"display_name"`
	Grants      []string `json:"grants"`
}

// GroupService manages groups and their members.
type GroupService struct {
	store        *store.Store
	auditService *AuditService
}

func NewGroupService(s *store.Store, auditService *AuditService) *GroupService {
	return &GroupService{store: s, auditService: auditService}
}

// CreateGroup creates a group with a unique normalized name. The creator
// becomes its first member.
func (s *GroupService) CreateGroup(
	ctx context.Context,
	creator *models.User,
	req CreateGroupRequest,
) (*models.Group, error) {
	name := models.NormalizeGrant(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidGroup)
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = strings.TrimSpace(req.Name)
	}

	group := &models.Group{
		ID:          uuid.New().String(),
		Name:        name,
		DisplayName: displayName,
		CreatedBy:   creator.ID,
		Grants:      models.NewGrantSet(req.Grants...),
	}

	err := s.store.RunInTransaction(func(tx *store.Store) error {
		if _, err := tx.GetGroupByName(name); err == nil {
			return fmt.Errorf("%w: %q already exists", ErrInvalidGroup, name)
		} else if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		if err := tx.CreateGroup(group); err != nil {
			return err
		}
		return tx.AddGroupMember(group.ID, creator.ID)
	})
	if err != nil {
		return nil, err
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventGroupCreated,
		ResourceType: models.ResourceGroup,
		ResourceID:   group.ID,
		ResourceName: group.Name,
		Action:       "group created",
		Details:      models.AuditDetails{"grants": group.Grants.Slice()},
		Success:      true,
	})
	return group, nil
}

// GetGroup returns a group by id.
func (s *GroupService) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.store.GetGroup(id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	return group, err
}

// ListGroups returns every group.
func (s *GroupService) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.store.ListGroups()
}

// ListMembers returns the members of a group.
func (s *GroupService) ListMembers(ctx context.Context, id string) ([]models.User, error) {
	if _, err := s.GetGroup(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListGroupMembers(id)
}

// DeleteGroup deletes a group and its memberships.
func (s *GroupService) DeleteGroup(ctx context.Context, id string) error {
	if err := s.store.DeleteGroup(id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return err
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventGroupDeleted,
		ResourceType: models.ResourceGroup,
		ResourceID:   id,
		Action:       "group deleted",
		Success:      true,
	})
	return nil
}

// SetGrants replaces the grants every member of a group receives.
func (s *GroupService) SetGrants(
	ctx context.Context,
	id string,
	grants []string,
) (*models.Group, error) {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := group.Grants.Slice()
	group.Grants = models.NewGrantSet(grants...)
	if err := s.store.UpdateGroup(group); err != nil {
		return nil, err
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventGroupUpdated,
		ResourceType: models.ResourceGroup,
		ResourceID:   group.ID,
		ResourceName: group.Name,
		Action:       "group grants replaced",
		Details: models.AuditDetails{
			"previous_grants": previous,
			"grants":          group.Grants.Slice(),
		},
		Success: true,
	})
	return group, nil
}

// AddMember adds a user to a group. Adding an existing member is a no-op.
func (s *GroupService) AddMember(ctx context.Context, groupID, userID string) error {
	if err := s.checkMembershipTargets(groupID, userID); err != nil {
		return err
	}
	if err := s.store.AddGroupMember(groupID, userID); err != nil {
		return err
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventGroupMemberAdded,
		ResourceType: models.ResourceGroup,
		ResourceID:   groupID,
		Action:       "member added",
		Details:      models.AuditDetails{"user_id": userID},
		Success:      true,
	})
	return nil
}

// RemoveMember removes a user from a group. Removing a non-member is a no-op.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID string) error {
	if err := s.checkMembershipTargets(groupID, userID); err != nil {
		return err
	}
	if err := s.store.RemoveGroupMember(groupID, userID); err != nil {
		return err
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventGroupMemberRemoved,
		ResourceType: models.ResourceGroup,
		ResourceID:   groupID,
		Action:       "member removed",
		Details:      models.AuditDetails{"user_id": userID},
		Success:      true,
	})
	return nil
}

func (s *GroupService) checkMembershipTargets(groupID, userID string) error {
	if _, err := s.store.GetGroup(groupID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	if _, err := s.store.GetUserByID(userID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

package store

import (
	"github.com/simonsobs/soauth/internal/models"

	"gorm.io/gorm/clause"
)

// Group operations
func (s *Store) CreateGroup(group *models.Group) error {
	if group.Grants == nil {
		group.Grants = models.NewGrantSet()
	}
	return s.db.Create(group).Error
}

func (s *Store) GetGroup(id string) (*models.Group, error) {
	var group models.Group
	if err := s.first(&group, "id = ?", id); err != nil {
		return nil, err
	}
	return &group, nil
}

// GetGroupByName looks a group up by its normalized name.
func (s *Store) GetGroupByName(name string) (*models.Group, error) {
	var group models.Group
	if err := s.first(&group, "name = ?", models.NormalizeGrant(name)); err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *Store) ListGroups() ([]models.Group, error) {
	var groups []models.Group
	if err := s.db.Order("name ASC").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) UpdateGroup(group *models.Group) error {
	return s.db.Save(group).Error
}

// DeleteGroup removes a group and all of its memberships.
func (s *Store) DeleteGroup(id string) error {
	return s.RunInTransaction(func(tx *Store) error {
		if err := tx.db.Where("group_id = ?", id).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		res := tx.db.Where("id = ?", id).Delete(&models.Group{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

// AddGroupMember adds userID to groupID. Adding an existing member is a no-op.
func (s *Store) AddGroupMember(groupID, userID string) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMembership{GroupID: groupID, UserID: userID}).Error
}

// RemoveGroupMember removes userID from groupID. Removing a non-member is a no-op.
func (s *Store) RemoveGroupMember(groupID, userID string) error {
	return s.db.Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMembership{}).Error
}

// IsGroupMember reports whether userID belongs to groupID.
func (s *Store) IsGroupMember(groupID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListGroupsForUser returns every group userID is a member of.
func (s *Store) ListGroupsForUser(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.
		Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
		Where("group_memberships.user_id = ?", userID).
		Order("groups.name ASC").
		Find(&groups).Error
	return groups, err
}

// ListGroupMembers returns the users belonging to groupID.
func (s *Store) ListGroupMembers(groupID string) ([]models.User, error) {
	var users []models.User
	err := s.db.
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ?", groupID).
		Order("users.username ASC").
		Find(&users).Error
	return users, err
}

package models

import "time"

// Group is a named set of users sharing a grant set.
type Group struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"     json:"group_id"`
	Name        string    `gorm:"uniqueIndex;not null"            json:"group_name"` // normalized
	DisplayName string    `gorm:"type:varchar(255)"               json:"display_name"`
	CreatedBy   string    `gorm:"type:varchar(36);index;not null" json:"created_by"`
	Grants      GrantSet  `gorm:"type:json"                       json:"grants"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName overrides the table name used by Group to `groups`
func (Group) TableName() string {
	return "groups"
}

// GroupMembership links a user to a group.
type GroupMembership struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	GroupID   string `gorm:"type:varchar(36);uniqueIndex:idx_group_member;not null"`
	UserID    string `gorm:"type:varchar(36);uniqueIndex:idx_group_member;index;not null"`
	CreatedAt time.Time
}

// TableName overrides the table name used by GroupMembership to `group_memberships`
func (GroupMembership) TableName() string {
	return "group_memberships"
}

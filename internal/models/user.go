package models

import (
	"time"
)

// Provider names recorded on users
const (
	UserProviderLocal = "local"
)

type User struct {
	ID        string   `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	Username  string   `gorm:"uniqueIndex;not null"        json:"user_name"`
	FullName  string   `                                   json:"full_name"`
	Email     string   `gorm:"index"                       json:"email"`
	AvatarURL string   `                                   json:"profile_image,omitempty"`
	Grants    GrantSet `gorm:"type:json"                   json:"grants"`

	// External identity
	Provider    string `gorm:"type:varchar(32);not null;default:'local'" json:"provider"`
	ExternalID  string `gorm:"index"                                     json:"-"`
	GitHubToken string `gorm:"type:text"                                json:"-"` // sealed provider token

	// Access token bookkeeping
	LastAccessToken      string     `json:"-"` // digest of the latest minted access token
	LastAccessTime       *time.Time `json:"last_access_time,omitempty"`
	NumberOfAccessTokens int64      `gorm:"not null;default:0" json:"number_of_access_tokens"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin returns true if the user directly holds the admin grant
func (u *User) IsAdmin() bool {
	return u.Grants.Has(GrantAdmin)
}

// IsExternal returns true if user authenticates via external provider
func (u *User) IsExternal() bool {
	return u.Provider != UserProviderLocal && u.Provider != ""
}

// GrantAdmin grants access to the administration API.
const GrantAdmin = "admin"

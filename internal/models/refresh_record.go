package models

import "time"

// RefreshRecord is one issued refresh session. The ID is also the token's uuid claim.
// Only a digest of the signed token is stored.
type RefreshRecord struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"                               json:"refresh_key_id"`
	UserID        string    `gorm:"type:varchar(36);index:idx_refresh_scope;not null"         json:"user_id"`
	AppID         string    `gorm:"type:varchar(36);index:idx_refresh_scope;not null"         json:"app_id"`
	APIKey        bool      `gorm:"index:idx_refresh_scope;not null;default:false"            json:"api_key"`
	Revoked       bool      `gorm:"index:idx_refresh_scope;not null;default:false"            json:"revoked"`
	HashAlgorithm string    `gorm:"type:varchar(32);not null"                                 json:"hash_algorithm"`
	HashedContent string    `gorm:"type:varchar(128);not null"                                json:"-"`
	Used          int64     `gorm:"not null;default:0"                                        json:"used"`
	Previous      *string   `gorm:"type:varchar(36);index"                                    json:"previous,omitempty"`
	CreatedAt     time.Time `gorm:"not null"                                                  json:"created_at"`
	LastUsedAt    time.Time `gorm:"not null"                                                  json:"last_used"`
	ExpiresAt     time.Time `gorm:"index;not null"                                            json:"expires_at"`
}

// TableName overrides the table name used by RefreshRecord to `refresh_records`
func (RefreshRecord) TableName() string {
	return "refresh_records"
}

// IsExpired reports whether the record's lifetime has passed at now.
func (r *RefreshRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsActive reports whether the record can still be rotated at now.
func (r *RefreshRecord) IsActive(now time.Time) bool {
	return !r.Revoked && !r.IsExpired(now)
}

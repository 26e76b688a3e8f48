package models

import "time"

// LoginRequest is one in-flight provider handshake.
type LoginRequest struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"     json:"login_request_id"`
	AppID       string     `gorm:"type:varchar(36);index;not null" json:"app_id"`
	UserID      *string    `gorm:"type:varchar(36);index"          json:"user_id,omitempty"`
	RedirectTo  *string    `gorm:"type:text"                       json:"redirect_to,omitempty"`
	SecretCode  string     `gorm:"uniqueIndex;not null"            json:"-"`
	InitiatedAt time.Time  `gorm:"index;not null"                  json:"initiated_at"`
	CompletedAt *time.Time `                                       json:"completed_at,omitempty"`
	CodeUsedAt  *time.Time `                                       json:"-"`
	Stale       bool       `gorm:"index;not null;default:false"    json:"stale"`
}

// TableName overrides the table name used by LoginRequest to `login_requests`
func (LoginRequest) TableName() string {
	return "login_requests"
}

// IsStale reports whether the request is flagged stale or older than staleAfter.
func (r *LoginRequest) IsStale(now time.Time, staleAfter time.Duration) bool {
	return r.Stale || now.Sub(r.InitiatedAt) > staleAfter
}

// IsCompleted reports whether the handshake has finished.
func (r *LoginRequest) IsCompleted() bool {
	return r.CompletedAt != nil
}

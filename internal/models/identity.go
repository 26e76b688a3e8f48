package models

import "time"

// TokenUser is the principal decoded from a verified access token.
// It is what the bearer middleware caches per token digest.
type TokenUser struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"user_name"`
	AppID     string    `json:"app_id"`
	Grants    []string  `json:"grants"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GrantSet returns the token grants as a set.
func (t *TokenUser) GrantSet() GrantSet {
	return NewGrantSet(t.Grants...)
}

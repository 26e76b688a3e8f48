package token

import (
	"encoding/json"
	"time"
)

// Header and claim names
const (
	HeaderAppID = "aid"

	ClaimExpiresAt = "exp"
	ClaimNotBefore = "nbf"
	ClaimIssuedAt  = "iat"
	ClaimID        = "uuid"
	ClaimIssuer    = "iss"
	ClaimAudience  = "aud"
)

// reservedClaims are managed by the codec and may not appear in caller payloads.
var reservedClaims = []string{
	ClaimExpiresAt,
	ClaimNotBefore,
	ClaimIssuedAt,
	ClaimID,
	ClaimIssuer,
	ClaimAudience,
}

// IsReserved reports whether name is a codec-managed claim.
func IsReserved(name string) bool {
	for _, r := range reservedClaims {
		if r == name {
			return true
		}
	}
	return false
}

// Claims is the signed body of a token.
// Numeric dates are held as float64 seconds, the form they take after decoding.
type Claims map[string]any

// ID returns the per-token unique id.
func (c Claims) ID() string {
	return c.String(ClaimID)
}

// ExpiresAt returns the exp claim, or the zero time if absent.
func (c Claims) ExpiresAt() time.Time {
	return c.Time(ClaimExpiresAt)
}

// IssuedAt returns the iat claim, or the zero time if absent.
func (c Claims) IssuedAt() time.Time {
	return c.Time(ClaimIssuedAt)
}

// NotBefore returns the nbf claim, or the zero time if absent.
func (c Claims) NotBefore() time.Time {
	return c.Time(ClaimNotBefore)
}

// String returns a string claim, or empty string if absent or of another type.
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Strings returns a list-of-strings claim. Non-string members are skipped.
func (c Claims) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time returns a numeric date claim as a UTC time.Time.
func (c Claims) Time(key string) time.Time {
	switch v := c[key].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	case int:
		return time.Unix(int64(v), 0).UTC()
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0).UTC()
		}
	}
	return time.Time{}
}

// Payload returns a copy of the claims without the reserved entries.
func (c Claims) Payload() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		if !IsReserved(k) {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy of the claims.
func (c Claims) Clone() Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func numericDate(t time.Time) float64 {
	return float64(t.Unix())
}

package auth

import "errors"

var (
	// ErrInvalidCode is returned when the provider rejects a callback code
	ErrInvalidCode = errors.New("invalid provider callback code")

	// ErrProviderAPI is returned for unexpected provider API responses
	ErrProviderAPI = errors.New("identity provider API error")

	// ErrProviderTokenRevoked is returned when a stored provider token is no longer accepted
	ErrProviderTokenRevoked = errors.New("provider token revoked")

	// ErrMissingEmail is returned when the provider account has no usable email
	ErrMissingEmail = errors.New("provider account has no verified email address")
)

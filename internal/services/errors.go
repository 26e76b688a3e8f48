package services

import "errors"

var (
	// ErrAuthorization is returned when a token or principal may not perform
	// the requested operation. Callers cannot tell which check failed.
	ErrAuthorization = errors.New("authorization failed")

	// ErrStaleRequest is returned for login requests that are unknown, used,
	// expired, or otherwise unusable.
	ErrStaleRequest = errors.New("login request is stale or invalid")

	// ErrRedirectInvalid is returned when a post-login redirect leaves the app domain
	ErrRedirectInvalid = errors.New("redirect target is not on the app domain")

	// ErrProviderLogin is returned when the identity provider rejects a login
	ErrProviderLogin = errors.New("identity provider login failed")

	// ErrInvalidApp is returned for app registrations with unusable fields
	ErrInvalidApp = errors.New("invalid app registration")

	// ErrAppNotFound is returned when an app id does not exist
	ErrAppNotFound = errors.New("app not found")

	// ErrUserNotFound is returned when a user id does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrGroupNotFound is returned when a group id does not exist
	ErrGroupNotFound = errors.New("group not found")

	// ErrInvalidGroup is returned for empty or duplicate group names
	ErrInvalidGroup = errors.New("invalid group")
)

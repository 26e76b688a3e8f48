package store

import "errors"

var (
	// ErrUsernameConflict is returned when a username already exists
	ErrUsernameConflict = errors.New("username already exists")

	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrAlreadyRevoked is returned by ConsumeRefreshRecord when a concurrent
	// request revoked the record first (0 rows updated).
	ErrAlreadyRevoked = errors.New("refresh record already revoked")

	// ErrCodeAlreadyUsed is returned by ConsumeLoginCode when the code was
	// already exchanged by a concurrent request (0 rows updated).
	ErrCodeAlreadyUsed = errors.New("login code already used")

	// ErrLoginAlreadyCompleted is returned by CompleteLoginRequest when the
	// request is no longer pending.
	ErrLoginAlreadyCompleted = errors.New("login request already completed")
)

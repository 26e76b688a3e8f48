package token

import "errors"

var (
	// ErrTokenGeneration indicates token signing failed
	ErrTokenGeneration = errors.New("failed to generate token")

	// ErrReservedClaim indicates the caller supplied a centrally managed claim
	ErrReservedClaim = errors.New("reserved claim in payload")

	// ErrMalformedToken indicates the unverified header could not be read
	ErrMalformedToken = errors.New("malformed token")

	// ErrTokenInvalid indicates a signature, format, or not-yet-valid failure
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired indicates the token is past its expiry
	ErrTokenExpired = errors.New("token expired")
)

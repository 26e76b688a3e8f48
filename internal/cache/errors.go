package cache

import "errors"

// Backends wrap ErrCacheUnavailable and ErrInvalidValue with the underlying
// cause. Callers fall back to the database on any cache error.
var (
	ErrCacheMiss        = errors.New("cache: key not found")
	ErrCacheUnavailable = errors.New("cache: backend unavailable")
	ErrInvalidValue     = errors.New("cache: invalid value")
)

// IsDegraded reports whether err comes from a failing backend or a corrupt
// entry rather than an ordinary miss.
func IsDegraded(err error) bool {
	return errors.Is(err, ErrCacheUnavailable) || errors.Is(err, ErrInvalidValue)
}

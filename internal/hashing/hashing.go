// Package hashing produces one-way fingerprints of issued token material.
package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Supported digest algorithms
const (
	BLAKE3 = "blake3"
	SHA256 = "sha256"
)

// ErrUnsupportedAlgorithm is returned for unknown digest algorithms
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

var algorithms = map[string]func() hash.Hash{
	BLAKE3: func() hash.Hash { return blake3.New() },
	SHA256: sha256.New,
}

// IsSupported reports whether algorithm is a known digest algorithm.
func IsSupported(algorithm string) bool {
	_, ok := algorithms[algorithm]
	return ok
}

// Digest returns the lowercase hex digest of content.
func Digest(content, algorithm string) (string, error) {
	newHash, ok := algorithms[algorithm]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	h := newHash()
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether content hashes to digest under algorithm.
func Verify(content, algorithm, digest string) bool {
	computed, err := Digest(content, algorithm)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

package util

import (
	"crypto/rand"
	"encoding/base64"
)

// CryptoRandomBytes generates cryptographically secure random bytes
func CryptoRandomBytes(length int64) ([]byte, error) {
	buf := make([]byte, length)
	_, err := rand.Read(buf)
	return buf, err
}

// CryptoRandomURLToken returns n random bytes encoded as unpadded URL-safe base64.
// Used for single-use exchange codes that travel in query strings.
func CryptoRandomURLToken(n int64) (string, error) {
	bytes, err := CryptoRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

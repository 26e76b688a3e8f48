// Package keys generates and opens the asymmetric key pairs apps sign tokens with.
//
// Public keys are PEM-encoded SubjectPublicKeyInfo. Private keys are PKCS#8 PEM,
// encrypted at rest with an age scrypt recipient derived from the server key
// password and then ASCII-armored.
package keys

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/golang-jwt/jwt/v5"
)

// Supported key pair types
const (
	Ed25519   = "Ed25519"
	ECDSAP256 = "ECDSA-P256"
)

// DefaultWorkFactor is the scrypt work factor (log2 N) used to encrypt private keys.
const DefaultWorkFactor = 15

// maxWorkFactor bounds the work factor accepted when decrypting.
const maxWorkFactor = 22

var (
	// ErrUnsupportedAlgorithm is returned for unknown key pair types
	ErrUnsupportedAlgorithm = errors.New("unsupported key pair algorithm")

	// ErrKeyMaterial is returned when a key cannot be decrypted or parsed
	ErrKeyMaterial = errors.New("unusable key material")
)

// KeyPair is a freshly generated key pair ready to be stored on an app.
type KeyPair struct {
	Algorithm           string
	PublicKey           string
	EncryptedPrivateKey string
}

type scheme struct {
	generate func() (crypto.Signer, error)
	method   jwt.SigningMethod
	accepts  func(crypto.PublicKey) bool
}

var schemes = map[string]scheme{
	Ed25519: {
		generate: func() (crypto.Signer, error) {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			return priv, err
		},
		method: jwt.SigningMethodEdDSA,
		accepts: func(pub crypto.PublicKey) bool {
			_, ok := pub.(ed25519.PublicKey)
			return ok
		},
	},
	ECDSAP256: {
		generate: func() (crypto.Signer, error) {
			return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		},
		method: jwt.SigningMethodES256,
		accepts: func(pub crypto.PublicKey) bool {
			k, ok := pub.(*ecdsa.PublicKey)
			return ok && k.Curve == elliptic.P256()
		},
	},
}

// Algorithms returns the supported key pair types in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether algorithm names a known key pair type.
func IsSupported(algorithm string) bool {
	_, ok := schemes[algorithm]
	return ok
}

// SigningMethod maps a key pair type to the JWT signing method used with it.
func SigningMethod(algorithm string) (jwt.SigningMethod, error) {
	s, ok := schemes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return s.method, nil
}

// GenerateKeyPair creates a key pair of the given type with the private half
// encrypted under password.
func GenerateKeyPair(algorithm, password string) (*KeyPair, error) {
	return GenerateKeyPairWithCost(algorithm, password, DefaultWorkFactor)
}

// GenerateKeyPairWithCost is GenerateKeyPair with an explicit scrypt work factor.
func GenerateKeyPairWithCost(algorithm, password string, workFactor int) (*KeyPair, error) {
	s, ok := schemes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	signer, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", algorithm, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	encrypted, err := encrypt(
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		password,
		workFactor,
	)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Algorithm:           algorithm,
		PublicKey:           string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		EncryptedPrivateKey: encrypted,
	}, nil
}

// OpenPrivateKey decrypts and parses an encrypted private key.
func OpenPrivateKey(encrypted, password string) (crypto.Signer, error) {
	plain, err := decrypt(encrypted, password)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(plain)
	if block == nil {
		return nil, fmt.Errorf("%w: private key is not PEM encoded", ErrKeyMaterial)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok || !supportedPublicKey(signer.Public()) {
		return nil, fmt.Errorf("%w: unsupported private key type %T", ErrKeyMaterial, key)
	}
	return signer, nil
}

// OpenPublicKey parses a PEM-encoded public key.
func OpenPublicKey(public string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(public))
	if block == nil {
		return nil, fmt.Errorf("%w: public key is not PEM encoded", ErrKeyMaterial)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	if !supportedPublicKey(key) {
		return nil, fmt.Errorf("%w: unsupported public key type %T", ErrKeyMaterial, key)
	}
	return key, nil
}

// Matches reports whether pub is a key of the given key pair type.
func Matches(algorithm string, pub crypto.PublicKey) bool {
	s, ok := schemes[algorithm]
	return ok && s.accepts(pub)
}

func supportedPublicKey(pub crypto.PublicKey) bool {
	for _, s := range schemes {
		if s.accepts(pub) {
			return true
		}
	}
	return false
}

func encrypt(plain []byte, password string, workFactor int) (string, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	recipient.SetWorkFactor(workFactor)

	var buf bytes.Buffer
	armored := armor.NewWriter(&buf)
	w, err := age.Encrypt(armored, recipient)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt private key: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return "", fmt.Errorf("failed to encrypt private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to encrypt private key: %w", err)
	}
	if err := armored.Close(); err != nil {
		return "", fmt.Errorf("failed to armor private key: %w", err)
	}
	return buf.String(), nil
}

func decrypt(encrypted, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	identity.SetMaxWorkFactor(maxWorkFactor)

	r, err := age.Decrypt(armor.NewReader(strings.NewReader(encrypted)), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return plain, nil
}

// Seal encrypts an arbitrary secret with the same scheme used for private keys.
func Seal(plain, password string, workFactor int) (string, error) {
	if workFactor <= 0 {
		workFactor = DefaultWorkFactor
	}
	return encrypt([]byte(plain), password, workFactor)
}

// Unseal reverses Seal.
func Unseal(sealed, password string) (string, error) {
	plain, err := decrypt(sealed, password)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

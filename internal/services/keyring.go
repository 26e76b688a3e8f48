package services

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/simonsobs/soauth/internal/cache"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/hashing"
	"github.com/simonsobs/soauth/internal/keys"
	"github.com/simonsobs/soauth/internal/models"
)

const (
	keyringSize = 128
	keyringTTL  = time.Hour
)

// Keyring opens app private keys and keeps the decrypted signers in memory.
// Entries are keyed by the encrypted key material, so rotating an app's keys
// produces a new entry.
type Keyring struct {
	password string
	signers  core.Cache[crypto.Signer]
}

// NewKeyring creates a keyring for keys encrypted under password.
func NewKeyring(password string) *Keyring {
	return &Keyring{
		password: password,
		signers:  cache.NewMemoryCache[crypto.Signer](keyringSize),
	}
}

// Signer returns the decrypted private key of app.
func (k *Keyring) Signer(ctx context.Context, app *models.App) (crypto.Signer, error) {
	fingerprint, err := hashing.Digest(app.PrivateKey, hashing.BLAKE3)
	if err != nil {
		return nil, err
	}

	return k.signers.GetWithFetch(
		ctx,
		app.ID+":"+fingerprint,
		keyringTTL,
		func(context.Context, string) (crypto.Signer, error) {
			signer, err := keys.OpenPrivateKey(app.PrivateKey, k.password)
			if err != nil {
				return nil, fmt.Errorf("app %s: %w", app.ID, err)
			}
			return signer, nil
		},
	)
}

// PublicKey parses the public key of app.
func (k *Keyring) PublicKey(app *models.App) (crypto.PublicKey, error) {
	pub, err := keys.OpenPublicKey(app.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", app.ID, err)
	}
	return pub, nil
}

package keys

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWorkFactor keeps scrypt fast in tests.
const testWorkFactor = 10

func TestGenerateKeyPair(t *testing.T) {
	for _, alg := range Algorithms() {
		t.Run(alg, func(t *testing.T) {
			kp, err := GenerateKeyPairWithCost(alg, "hunter2", testWorkFactor)
			require.NoError(t, err)
			assert.Equal(t, alg, kp.Algorithm)
			assert.True(t, strings.HasPrefix(kp.PublicKey, "-----BEGIN PUBLIC KEY-----"))
			assert.True(t, strings.HasPrefix(kp.EncryptedPrivateKey, "-----BEGIN AGE ENCRYPTED FILE-----"))
			assert.NotContains(t, kp.EncryptedPrivateKey, "PRIVATE KEY")

			signer, err := OpenPrivateKey(kp.EncryptedPrivateKey, "hunter2")
			require.NoError(t, err)

			pub, err := OpenPublicKey(kp.PublicKey)
			require.NoError(t, err)
			assert.True(t, Matches(alg, pub))
			assert.True(t, Matches(alg, signer.Public()))

			method, err := SigningMethod(alg)
			require.NoError(t, err)
			sig, err := method.Sign("payload", signer)
			require.NoError(t, err)
			assert.NoError(t, method.Verify("payload", sig, pub))
		})
	}
}

func TestGenerateKeyPair_Ed25519KeyType(t *testing.T) {
	kp, err := GenerateKeyPairWithCost(Ed25519, "pw", testWorkFactor)
	require.NoError(t, err)

	pub, err := OpenPublicKey(kp.PublicKey)
	require.NoError(t, err)
	_, ok := pub.(ed25519.PublicKey)
	assert.True(t, ok)
}

func TestGenerateKeyPair_Unsupported(t *testing.T) {
	_, err := GenerateKeyPair("RSA-512", "pw")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = SigningMethod("nope")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	assert.False(t, IsSupported("nope"))
}

func TestOpenPrivateKey_WrongPassword(t *testing.T) {
	kp, err := GenerateKeyPairWithCost(Ed25519, "correct", testWorkFactor)
	require.NoError(t, err)

	_, err = OpenPrivateKey(kp.EncryptedPrivateKey, "wrong")
	assert.ErrorIs(t, err, ErrKeyMaterial)
}

func TestOpenPrivateKey_Corrupt(t *testing.T) {
	_, err := OpenPrivateKey("not an age file", "pw")
	assert.ErrorIs(t, err, ErrKeyMaterial)
}

func TestOpenPublicKey_Corrupt(t *testing.T) {
	_, err := OpenPublicKey("garbage")
	assert.ErrorIs(t, err, ErrKeyMaterial)

	_, err = OpenPublicKey("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n")
	assert.ErrorIs(t, err, ErrKeyMaterial)
}

func TestEmptyPassword(t *testing.T) {
	_, err := GenerateKeyPairWithCost(Ed25519, "", testWorkFactor)
	assert.ErrorIs(t, err, ErrKeyMaterial)
}

func TestSealUnseal(t *testing.T) {
	sealed, err := Seal("gho_secret", "pw", testWorkFactor)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "gho_secret")

	plain, err := Unseal(sealed, "pw")
	require.NoError(t, err)
	assert.Equal(t, "gho_secret", plain)

	_, err = Unseal(sealed, "other")
	assert.ErrorIs(t, err, ErrKeyMaterial)
}

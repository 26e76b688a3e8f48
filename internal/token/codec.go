package token

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simonsobs/soauth/internal/keys"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Codec builds, signs, and verifies app-scoped JWTs.
// It holds no state besides its clock and is safe for concurrent use.
type Codec struct {
	now func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source used for issuing and validating tokens
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a new token codec
func NewCodec(opts ...Option) *Codec {
	c := &Codec{now: utcNow}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Sign adds the reserved claims to payload and signs the result with the app's key.
// The app id travels in the unverified header so verifiers can pick the right
// public key before trusting anything else in the token.
func (c *Codec) Sign(
	appID string,
	signingKey crypto.Signer,
	algorithm string,
	payload map[string]any,
	expiresAt time.Time,
) (string, Claims, error) {
	for key := range payload {
		if IsReserved(key) {
			return "", nil, fmt.Errorf("%w: %q", ErrReservedClaim, key)
		}
	}

	now := c.now()
	claims := make(Claims, len(payload)+4)
	for k, v := range payload {
		claims[k] = v
	}
	claims[ClaimIssuedAt] = numericDate(now)
	claims[ClaimNotBefore] = numericDate(now)
	claims[ClaimExpiresAt] = numericDate(expiresAt)
	claims[ClaimID] = uuid.New().String()

	signed, err := c.SignClaims(appID, signingKey, algorithm, claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// SignClaims signs an already complete claim set, as produced by Sign or RefreshClaims.
func (c *Codec) SignClaims(
	appID string,
	signingKey crypto.Signer,
	algorithm string,
	claims Claims,
) (string, error) {
	method, err := keys.SigningMethod(algorithm)
	if err != nil {
		return "", err
	}
	if claims.ID() == "" || claims.ExpiresAt().IsZero() {
		return "", fmt.Errorf("%w: claim set is missing %s or %s",
			ErrTokenGeneration, ClaimID, ClaimExpiresAt)
	}

	t := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	t.Header[HeaderAppID] = appID

	signed, err := t.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, nil
}

// PeekAppID reads the app id from the token header without verifying anything.
// The result must only be used to select a verification key.
func PeekAppID(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: token contains an invalid number of segments", ErrMalformedToken)
	}

	raw, err := jwt.NewParser().DecodeSegment(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var header map[string]any
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	appID, ok := header[HeaderAppID].(string)
	if !ok || appID == "" {
		return "", fmt.Errorf("%w: header has no %s", ErrMalformedToken, HeaderAppID)
	}
	return appID, nil
}

// Verify checks the signature and time claims and returns the claim set.
// Expiry is reported as ErrTokenExpired; every other failure as ErrTokenInvalid.
func (c *Codec) Verify(
	tokenString string,
	verificationKey crypto.PublicKey,
	algorithm string,
) (Claims, error) {
	method, err := keys.SigningMethod(algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	mapClaims := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(tokenString, mapClaims, func(*jwt.Token) (any, error) {
		return verificationKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims := Claims(mapClaims)
	if claims.ID() == "" {
		return nil, fmt.Errorf("%w: missing %s claim", ErrTokenInvalid, ClaimID)
	}
	return claims, nil
}

// RefreshClaims returns a copy of old with a new unique id and fresh iat/nbf.
// Expiry is carried over unchanged. Only refresh tokens are rotated this way.
func (c *Codec) RefreshClaims(old Claims) Claims {
	now := c.now()
	fresh := old.Clone()
	fresh[ClaimID] = uuid.New().String()
	fresh[ClaimIssuedAt] = numericDate(now)
	fresh[ClaimNotBefore] = numericDate(now)
	return fresh
}

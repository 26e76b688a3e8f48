package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/hashing"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/token"
)

// Refresh token payload claims
const (
	ClaimUserID = "user_id"
	ClaimAppID  = "app_id"
)

// RefreshService keeps the ledger of issued refresh tokens. For a given
// (user, app) pair at most one non-API-key token is live at any time.
type RefreshService struct {
	store        *store.Store
	config       *config.Config
	codec        *token.Codec
	keyring      *Keyring
	auditService *AuditService
	metrics      core.Recorder
}

func NewRefreshService(
	s *store.Store,
	cfg *config.Config,
	codec *token.Codec,
	keyring *Keyring,
	auditService *AuditService,
	m core.Recorder,
) *RefreshService {
	return &RefreshService{
		store:        s,
		config:       cfg,
		codec:        codec,
		keyring:      keyring,
		auditService: auditService,
		metrics:      m,
	}
}

// Create issues a refresh token for user at app. Unless apiKey is set, every
// other live non-API-key token of the pair is revoked in the same transaction.
func (s *RefreshService) Create(
	ctx context.Context,
	user *models.User,
	app *models.App,
	apiKey bool,
) (string, *models.RefreshRecord, error) {
	signer, err := s.keyring.Signer(ctx, app)
	if err != nil {
		return "", nil, err
	}

	var (
		signed  string
		record  *models.RefreshRecord
		revoked int64
	)
	err = s.store.RunInTransaction(func(tx *store.Store) error {
		// Serializes concurrent creates for the same user
		if _, err := tx.LockUser(user.ID); err != nil {
			return err
		}

		now := s.codec.Now()
		if !apiKey {
			n, err := tx.RevokeActiveRefreshRecords(user.ID, app.ID, false, now)
			if err != nil {
				return fmt.Errorf("failed to revoke previous refresh tokens: %w", err)
			}
			revoked = n
		}

		var claims token.Claims
		signed, claims, err = s.codec.Sign(
			app.ID,
			signer,
			app.KeyPairType,
			map[string]any{ClaimUserID: user.ID, ClaimAppID: app.ID},
			now.Add(s.config.RefreshTokenExpiration),
		)
		if err != nil {
			return err
		}

		record, err = s.newRecord(signed, claims, user.ID, app.ID, apiKey, nil)
		if err != nil {
			return err
		}
		return tx.CreateRefreshRecord(record)
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: unknown user", ErrAuthorization)
		}
		return "", nil, err
	}

	if revoked > 0 {
		s.metrics.RecordTokenRevoked("superseded")
	}
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventRefreshTokenIssued,
		ActorUserID:   user.ID,
		ActorUsername: user.Username,
		ResourceType:  models.ResourceRefreshRecord,
		ResourceID:    record.ID,
		ResourceName:  app.Name,
		Action:        "refresh token issued",
		Details: models.AuditDetails{
			"app_id":     app.ID,
			"api_key":    apiKey,
			"superseded": revoked,
		},
		Success: true,
	})
	return signed, record, nil
}

// newRecord builds the ledger row for a freshly signed token.
func (s *RefreshService) newRecord(
	signed string,
	claims token.Claims,
	userID, appID string,
	apiKey bool,
	previous *models.RefreshRecord,
) (*models.RefreshRecord, error) {
	digest, err := hashing.Digest(signed, s.config.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	now := claims.IssuedAt()
	record := &models.RefreshRecord{
		ID:            claims.ID(),
		UserID:        userID,
		AppID:         appID,
		APIKey:        apiKey,
		HashAlgorithm: s.config.HashAlgorithm,
		HashedContent: digest,
		CreatedAt:     now,
		LastUsedAt:    now,
		ExpiresAt:     claims.ExpiresAt(),
	}
	if previous != nil {
		id := previous.ID
		record.Previous = &id
		record.ExpiresAt = previous.ExpiresAt
	}
	return record, nil
}

// Decode verifies a refresh token against the key of the app named in its
// header. It has no ledger side effects.
func (s *RefreshService) Decode(ctx context.Context, tokenString string) (token.Claims, error) {
	appID, err := token.PeekAppID(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorization, err)
	}

	app, err := s.store.GetApp(appID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown app %s", ErrAuthorization, appID)
		}
		return nil, err
	}

	pub, err := s.keyring.PublicKey(app)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorization, err)
	}

	claims, err := s.codec.Verify(tokenString, pub, app.KeyPairType)
	if err != nil {
		return nil, err
	}

	if claims.String(ClaimAppID) != app.ID || claims.String(ClaimUserID) == "" {
		return nil, fmt.Errorf("%w: not a refresh token for app %s", ErrAuthorization, app.ID)
	}
	return claims, nil
}

// Rotate consumes the record behind claims and issues its successor. The new
// token keeps the original expiry. Of several concurrent rotations of the same
// token exactly one succeeds.
func (s *RefreshService) Rotate(
	ctx context.Context,
	claims token.Claims,
) (string, *models.RefreshRecord, error) {
	app, err := s.store.GetApp(claims.String(ClaimAppID))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: unknown app", ErrAuthorization)
		}
		return "", nil, err
	}
	signer, err := s.keyring.Signer(ctx, app)
	if err != nil {
		return "", nil, err
	}

	var (
		signed string
		record *models.RefreshRecord
		old    *models.RefreshRecord
	)
	err = s.store.RunInTransaction(func(tx *store.Store) error {
		old, err = tx.GetRefreshRecord(claims.ID())
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return fmt.Errorf("%w: unknown refresh token", ErrAuthorization)
			}
			return err
		}
		if old.UserID != claims.String(ClaimUserID) || old.AppID != app.ID {
			return fmt.Errorf("%w: refresh token does not match its record", ErrAuthorization)
		}
		if _, err := tx.LockUser(old.UserID); err != nil {
			return err
		}

		now := s.codec.Now()
		if err := tx.ConsumeRefreshRecord(old.ID, now); err != nil {
			if errors.Is(err, store.ErrAlreadyRevoked) {
				return fmt.Errorf("%w: refresh token already used or revoked", ErrAuthorization)
			}
			return err
		}

		fresh := s.codec.RefreshClaims(claims)
		signed, err = s.codec.SignClaims(app.ID, signer, app.KeyPairType, fresh)
		if err != nil {
			return err
		}

		record, err = s.newRecord(signed, fresh, old.UserID, app.ID, old.APIKey, old)
		if err != nil {
			return err
		}
		return tx.CreateRefreshRecord(record)
	})
	if err != nil {
		if errors.Is(err, ErrAuthorization) {
			s.metrics.RecordTokenRefresh("rejected")
			log.Printf("[Refresh] Rotation rejected for %s: %v", claims.ID(), err)
		} else {
			s.metrics.RecordTokenRefresh("error")
		}
		return "", nil, err
	}

	s.metrics.RecordTokenRefresh("success")
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventRefreshTokenRotated,
		ActorUserID:  record.UserID,
		ResourceType: models.ResourceRefreshRecord,
		ResourceID:   record.ID,
		ResourceName: app.Name,
		Action:       "refresh token rotated",
		Details: models.AuditDetails{
			"app_id":   app.ID,
			"previous": old.ID,
			"used":     old.Used + 1,
		},
		Success: true,
	})
	return signed, record, nil
}

// RevokeByID revokes a record. Unknown and already revoked ids are not an error.
func (s *RefreshService) RevokeByID(ctx context.Context, id string) error {
	if err := s.store.RevokeRefreshRecord(id, s.codec.Now()); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.metrics.RecordTokenRevoked("logout")
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventRefreshTokenRevoked,
		ResourceType: models.ResourceRefreshRecord,
		ResourceID:   id,
		Action:       "refresh token revoked",
		Success:      true,
	})
	return nil
}

// RevokeByClaims revokes the record behind decoded claims.
func (s *RefreshService) RevokeByClaims(ctx context.Context, claims token.Claims) error {
	return s.RevokeByID(ctx, claims.ID())
}

// RevokeOwned revokes a record on behalf of its owner. Records owned by anyone
// else are reported as not found.
func (s *RefreshService) RevokeOwned(ctx context.Context, id, userID string) error {
	record, err := s.store.GetRefreshRecord(id)
	if err != nil {
		return err
	}
	if record.UserID != userID {
		return store.ErrRecordNotFound
	}
	return s.RevokeByID(ctx, id)
}

// Get returns a record by id.
func (s *RefreshService) Get(ctx context.Context, id string) (*models.RefreshRecord, error) {
	return s.store.GetRefreshRecord(id)
}

// ListActiveForUser lists the live records of a user.
func (s *RefreshService) ListActiveForUser(
	ctx context.Context,
	userID string,
) ([]models.RefreshRecord, error) {
	return s.store.ListActiveRefreshRecords(store.RefreshRecordFilter{UserID: userID}, s.codec.Now())
}

// ListActiveForApp lists the live records issued for an app.
func (s *RefreshService) ListActiveForApp(
	ctx context.Context,
	appID string,
) ([]models.RefreshRecord, error) {
	return s.store.ListActiveRefreshRecords(store.RefreshRecordFilter{AppID: appID}, s.codec.Now())
}

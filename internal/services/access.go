package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/hashing"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/token"
)

// Access token payload claims
const (
	ClaimUserName   = "user_name"
	ClaimFullName   = "full_name"
	ClaimEmail      = "email"
	ClaimGrants     = "grants"
	ClaimGroupNames = "group_names"
	ClaimGroupIDs   = "group_ids"
)

// AccessService mints short-lived access tokens against a live refresh record.
// Access tokens are never stored; only the user's bookkeeping is updated.
type AccessService struct {
	store         *store.Store
	config        *config.Config
	codec         *token.Codec
	keyring       *Keyring
	authorization *AuthorizationService
	auditService  *AuditService
}

func NewAccessService(
	s *store.Store,
	cfg *config.Config,
	codec *token.Codec,
	keyring *Keyring,
	authorization *AuthorizationService,
	auditService *AuditService,
) *AccessService {
	return &AccessService{
		store:         s,
		config:        cfg,
		codec:         codec,
		keyring:       keyring,
		authorization: authorization,
		auditService:  auditService,
	}
}

// Mint signs an access token for the owner of record with the record's app key.
// A non-positive validity uses the configured access token lifetime.
func (s *AccessService) Mint(
	ctx context.Context,
	record *models.RefreshRecord,
	user *models.User,
	validity time.Duration,
) (string, time.Time, token.Claims, error) {
	if user != nil && user.ID != record.UserID {
		return "", time.Time{}, nil, fmt.Errorf("%w: user does not own refresh token", ErrAuthorization)
	}
	if validity <= 0 {
		validity = s.config.AccessTokenExpiration
	}

	// Grants may have changed since the caller loaded the user
	fresh, err := s.store.GetUserByID(record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", time.Time{}, nil, fmt.Errorf("%w: unknown user", ErrAuthorization)
		}
		return "", time.Time{}, nil, err
	}
	app, err := s.store.GetApp(record.AppID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", time.Time{}, nil, fmt.Errorf("%w: unknown app", ErrAuthorization)
		}
		return "", time.Time{}, nil, err
	}

	grants, groups, err := s.authorization.Resolve(ctx, fresh)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	groupNames := make([]string, 0, len(groups))
	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		groupNames = append(groupNames, g.Name)
		groupIDs = append(groupIDs, g.ID)
	}

	signer, err := s.keyring.Signer(ctx, app)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	now := s.codec.Now()
	signed, claims, err := s.codec.Sign(app.ID, signer, app.KeyPairType, map[string]any{
		ClaimUserID:     fresh.ID,
		ClaimUserName:   fresh.Username,
		ClaimFullName:   fresh.FullName,
		ClaimEmail:      fresh.Email,
		ClaimGrants:     grants.Slice(),
		ClaimGroupNames: groupNames,
		ClaimGroupIDs:   groupIDs,
	}, now.Add(validity))
	if err != nil {
		return "", time.Time{}, nil, err
	}

	digest, err := hashing.Digest(signed, s.config.HashAlgorithm)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	err = s.store.RunInTransaction(func(tx *store.Store) error {
		if err := tx.MarkRefreshRecordUsed(record.ID, now); err != nil {
			return err
		}
		return tx.RecordAccessToken(fresh.ID, digest, now)
	})
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("failed to record access token: %w", err)
	}

	record.Used++
	record.LastUsedAt = now
	if user != nil {
		user.Grants = fresh.Grants
		user.LastAccessToken = digest
		user.LastAccessTime = &now
		user.NumberOfAccessTokens = fresh.NumberOfAccessTokens + 1
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventAccessTokenMinted,
		ActorUserID:   fresh.ID,
		ActorUsername: fresh.Username,
		ResourceType:  models.ResourceRefreshRecord,
		ResourceID:    record.ID,
		ResourceName:  app.Name,
		Action:        "access token minted",
		Details:       models.AuditDetails{"app_id": app.ID, "grants": grants.Slice()},
		Success:       true,
	})
	return signed, claims.ExpiresAt(), claims, nil
}

// VerifyManagementToken checks an access token issued for the management app
// and returns the principal it names. Refresh tokens are rejected.
func (s *AccessService) VerifyManagementToken(
	ctx context.Context,
	tokenString string,
) (*models.TokenUser, error) {
	appID, err := token.PeekAppID(tokenString)
	if err != nil {
		return nil, err
	}
	app, err := s.store.GetManagedApp()
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no management app registered", token.ErrTokenInvalid)
		}
		return nil, err
	}
	if appID != app.ID {
		return nil, fmt.Errorf("%w: issued for app %s", token.ErrTokenInvalid, appID)
	}

	pub, err := s.keyring.PublicKey(app)
	if err != nil {
		return nil, err
	}
	claims, err := s.codec.Verify(tokenString, pub, app.KeyPairType)
	if err != nil {
		return nil, err
	}

	userID := claims.String(ClaimUserID)
	if userID == "" || claims.String(ClaimAppID) != "" {
		return nil, fmt.Errorf("%w: not an access token", token.ErrTokenInvalid)
	}
	return &models.TokenUser{
		UserID:    userID,
		Username:  claims.String(ClaimUserName),
		AppID:     app.ID,
		Grants:    claims.Strings(ClaimGrants),
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

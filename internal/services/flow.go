package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"
)

// Token flows, used as metric labels
const (
	FlowPrimary   = "primary"
	FlowSecondary = "secondary"
	FlowAPIKey    = "api_key"
)

// TokenPair is what a client receives after a successful login or refresh.
type TokenPair struct {
	AccessToken         string         `json:"access_token"`
	RefreshToken        string         `json:"refresh_token"`
	ProfileData         map[string]any `json:"profile_data"`
	AccessTokenExpires  time.Time      `json:"access_token_expires"`
	RefreshTokenExpires time.Time      `json:"refresh_token_expires"`
	RefreshKeyID        string         `json:"refresh_key_id"`
}

// FlowService composes the ledger, the minter and the provider into the
// operations the HTTP layer exposes.
type FlowService struct {
	store         *store.Store
	refresh       *RefreshService
	access        *AccessService
	authorization *AuthorizationService
	login         *LoginService
	provider      core.IdentityProvider
	metrics       core.Recorder
}

func NewFlowService(
	s *store.Store,
	refresh *RefreshService,
	access *AccessService,
	authorization *AuthorizationService,
	login *LoginService,
	provider core.IdentityProvider,
	m core.Recorder,
) *FlowService {
	return &FlowService{
		store:         s,
		refresh:       refresh,
		access:        access,
		authorization: authorization,
		login:         login,
		provider:      provider,
		metrics:       m,
	}
}

// Primary issues the first token pair of a session.
func (s *FlowService) Primary(
	ctx context.Context,
	user *models.User,
	app *models.App,
) (*TokenPair, error) {
	return s.issue(ctx, user, app, false, FlowPrimary)
}

// IssueAPIKey issues a long-lived token pair outside the one-session-per-app
// rule. The app must allow API access.
func (s *FlowService) IssueAPIKey(
	ctx context.Context,
	user *models.User,
	app *models.App,
) (*TokenPair, error) {
	if !app.APIAccess {
		return nil, fmt.Errorf("%w: app %s does not allow API keys", ErrAuthorization, app.ID)
	}
	return s.issue(ctx, user, app, true, FlowAPIKey)
}

func (s *FlowService) issue(
	ctx context.Context,
	user *models.User,
	app *models.App,
	apiKey bool,
	flow string,
) (*TokenPair, error) {
	start := time.Now()
	if err := s.checkVisibility(ctx, user, app); err != nil {
		return nil, err
	}

	refreshToken, record, err := s.refresh.Create(ctx, user, app, apiKey)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued("refresh", flow, time.Since(start))

	pair, err := s.mint(ctx, record, user, flow)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = refreshToken
	return pair, nil
}

// Secondary rotates a refresh token and mints a fresh access token. The
// provider is consulted first so that revoked upstream identities and lost
// organization memberships take effect.
func (s *FlowService) Secondary(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.refresh.Decode(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	record, err := s.store.GetRefreshRecord(claims.ID())
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown refresh token", ErrAuthorization)
		}
		return nil, err
	}
	if record.Revoked {
		s.metrics.RecordTokenRefresh("rejected")
		return nil, fmt.Errorf("%w: refresh token already used or revoked", ErrAuthorization)
	}

	user, err := s.store.GetUserByID(record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrAuthorization)
		}
		return nil, err
	}

	user, err = s.provider.Refresh(ctx, user)
	if err != nil {
		log.Printf("[Flow] Provider refresh failed for %s: %v", record.UserID, err)
		return nil, fmt.Errorf("%w: %w", ErrAuthorization, err)
	}

	app, err := s.store.GetApp(record.AppID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown app", ErrAuthorization)
		}
		return nil, err
	}
	if err := s.checkVisibility(ctx, user, app); err != nil {
		return nil, err
	}

	start := time.Now()
	rotated, newRecord, err := s.refresh.Rotate(ctx, claims)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued("refresh", FlowSecondary, time.Since(start))

	pair, err := s.mint(ctx, newRecord, user, FlowSecondary)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = rotated
	return pair, nil
}

// Logout revokes the record behind a refresh token.
func (s *FlowService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.refresh.Decode(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.refresh.RevokeByClaims(ctx, claims)
}

// ExchangeCode finishes a login handshake for a third-party app: the code
// and secret are checked, the redirect is validated and a token pair issued.
func (s *FlowService) ExchangeCode(
	ctx context.Context,
	appID, code, secret string,
) (*TokenPair, string, error) {
	req, err := s.login.ExchangeByCode(ctx, appID, code, secret)
	if err != nil {
		return nil, "", err
	}
	return s.finishLogin(ctx, req)
}

// ExchangeOwnCode finishes a login handshake for the management app.
func (s *FlowService) ExchangeOwnCode(
	ctx context.Context,
	app *models.App,
	code string,
) (*TokenPair, string, error) {
	req, err := s.login.ExchangeOwnCode(ctx, app, code)
	if err != nil {
		return nil, "", err
	}
	return s.finishLogin(ctx, req)
}

func (s *FlowService) finishLogin(
	ctx context.Context,
	req *models.LoginRequest,
) (*TokenPair, string, error) {
	user, err := s.store.GetUserByID(*req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, "", ErrStaleRequest
		}
		return nil, "", err
	}
	app, err := s.store.GetApp(req.AppID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, "", ErrStaleRequest
		}
		return nil, "", err
	}

	redirect, err := s.login.Complete(ctx, req, user)
	if err != nil {
		return nil, "", err
	}

	pair, err := s.Primary(ctx, user, app)
	if err != nil {
		return nil, "", err
	}
	return pair, redirect, nil
}

func (s *FlowService) mint(
	ctx context.Context,
	record *models.RefreshRecord,
	user *models.User,
	flow string,
) (*TokenPair, error) {
	start := time.Now()
	accessToken, expires, claims, err := s.access.Mint(ctx, record, user, 0)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued("access", flow, time.Since(start))

	return &TokenPair{
		AccessToken:         accessToken,
		ProfileData:         claims.Payload(),
		AccessTokenExpires:  expires,
		RefreshTokenExpires: record.ExpiresAt,
		RefreshKeyID:        record.ID,
	}, nil
}

func (s *FlowService) checkVisibility(
	ctx context.Context,
	user *models.User,
	app *models.App,
) error {
	if app.VisibilityGrant == "" {
		return nil
	}
	grants, err := s.authorization.EffectiveGrants(ctx, user, true)
	if err != nil {
		return err
	}
	if !app.VisibleTo(grants) {
		return fmt.Errorf("%w: %s lacks %q for app %s",
			ErrAuthorization, user.Username, app.VisibilityGrant, app.ID)
	}
	return nil
}

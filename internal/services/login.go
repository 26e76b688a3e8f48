package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/util"

	"github.com/google/uuid"
)

const (
	// secretCodeBytes is the entropy of the one-time code handed to apps
	secretCodeBytes = 32

	// maxStateLength bounds the state parameter echoed to apps
	maxStateLength = 256
)

// LoginService drives the browser handshake: an app sends the user to
// /login, the provider sends them back to /callback, and the app exchanges the
// one-time code it received for tokens.
type LoginService struct {
	store        *store.Store
	config       *config.Config
	provider     core.IdentityProvider
	auditService *AuditService
	metrics      core.Recorder
	now          func() time.Time
}

func NewLoginService(
	s *store.Store,
	cfg *config.Config,
	provider core.IdentityProvider,
	auditService *AuditService,
	m core.Recorder,
) *LoginService {
	return &LoginService{
		store:        s,
		config:       cfg,
		provider:     provider,
		auditService: auditService,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a login request for app. The post-login redirect is taken from
// next (a path under the app domain), then the referer, and otherwise left
// unset so that it falls back to the app domain.
func (s *LoginService) Start(
	ctx context.Context,
	app *models.App,
	next, referer string,
) (*models.LoginRequest, error) {
	code, err := util.CryptoRandomURLToken(secretCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate login code: %w", err)
	}

	var redirect *string
	switch {
	case next != "":
		target := util.JoinDomainPath(app.Domain, next)
		redirect = &target
	case referer != "":
		redirect = &referer
	}

	req := &models.LoginRequest{
		ID:          uuid.New().String(),
		AppID:       app.ID,
		RedirectTo:  redirect,
		SecretCode:  code,
		InitiatedAt: s.now(),
	}
	if err := s.store.CreateLoginRequest(req); err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}

	s.metrics.RecordLoginStarted(s.provider.Name())
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventLoginStarted,
		ResourceType: models.ResourceLoginRequest,
		ResourceID:   req.ID,
		ResourceName: app.Name,
		Action:       "login started",
		Details:      models.AuditDetails{"app_id": app.ID, "provider": s.provider.Name()},
		Success:      true,
	})
	return req, nil
}

// ProviderRedirect returns the provider URL that continues req.
func (s *LoginService) ProviderRedirect(ctx context.Context, req *models.LoginRequest) (string, error) {
	return s.provider.Redirect(ctx, req)
}

// Resume loads a pending request coming back from the provider.
func (s *LoginService) Resume(ctx context.Context, id string) (*models.LoginRequest, error) {
	req, err := s.store.GetLoginRequest(id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrStaleRequest
		}
		return nil, err
	}
	if req.IsCompleted() || req.IsStale(s.now(), s.config.StaleLoginExpiry) {
		return nil, ErrStaleRequest
	}
	return req, nil
}

// Authenticate completes the provider side of req and records who logged in.
func (s *LoginService) Authenticate(
	ctx context.Context,
	req *models.LoginRequest,
	code string,
) (*models.User, error) {
	providerName := s.provider.Name()
	start := time.Now()

	user, err := s.provider.Login(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(providerName, false, time.Since(start))
		log.Printf("[Login] Provider %s rejected login for request %s: %v", providerName, req.ID, err)
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventLoginFailed,
			Severity:     models.SeverityWarning,
			ResourceType: models.ResourceLoginRequest,
			ResourceID:   req.ID,
			Action:       "provider login failed",
			Details:      models.AuditDetails{"provider": providerName},
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrProviderLogin, err)
	}
	s.metrics.RecordLogin(providerName, true, time.Since(start))

	if err := s.store.SetLoginRequestUser(req.ID, user.ID); err != nil {
		if errors.Is(err, store.ErrLoginAlreadyCompleted) {
			return nil, ErrStaleRequest
		}
		return nil, err
	}
	userID := user.ID
	req.UserID = &userID
	return user, nil
}

// ExchangeByCode trades the one-time code handed to an app for the request it
// belongs to. Every failure is ErrStaleRequest so that callers learn nothing
// about which check failed. A code can be exchanged once.
func (s *LoginService) ExchangeByCode(
	ctx context.Context,
	appID, code, secret string,
) (*models.LoginRequest, error) {
	req, err := s.checkCode(appID, code)
	if err != nil {
		return nil, s.rejectExchange(ctx, appID, err)
	}

	app, err := s.store.GetApp(appID)
	if err != nil {
		return nil, s.rejectExchange(ctx, appID, err)
	}
	if !app.ValidateClientSecret([]byte(secret)) {
		return nil, s.rejectExchange(ctx, appID, errors.New("client secret mismatch"))
	}

	return s.consumeCode(ctx, req)
}

// ExchangeOwnCode is ExchangeByCode for the server's own management app, whose
// callback runs in-process and so never presents a client secret.
func (s *LoginService) ExchangeOwnCode(
	ctx context.Context,
	app *models.App,
	code string,
) (*models.LoginRequest, error) {
	if !app.Managed {
		return nil, s.rejectExchange(ctx, app.ID, errors.New("app is not managed"))
	}
	req, err := s.checkCode(app.ID, code)
	if err != nil {
		return nil, s.rejectExchange(ctx, app.ID, err)
	}
	return s.consumeCode(ctx, req)
}

func (s *LoginService) checkCode(appID, code string) (*models.LoginRequest, error) {
	if code == "" {
		return nil, errors.New("empty code")
	}
	req, err := s.store.GetLoginRequestByCode(code)
	if err != nil {
		return nil, err
	}
	switch {
	case req.AppID != appID:
		return nil, errors.New("code issued for another app")
	case req.UserID == nil:
		return nil, errors.New("request has no authenticated user")
	case req.CodeUsedAt != nil:
		return nil, store.ErrCodeAlreadyUsed
	case req.IsStale(s.now(), s.config.StaleLoginExpiry):
		return nil, errors.New("request is stale")
	}
	return req, nil
}

func (s *LoginService) consumeCode(
	ctx context.Context,
	req *models.LoginRequest,
) (*models.LoginRequest, error) {
	now := s.now()
	if err := s.store.ConsumeLoginCode(req.ID, now); err != nil {
		return nil, s.rejectExchange(ctx, req.AppID, err)
	}
	req.CodeUsedAt = &now
	s.metrics.RecordCodeExchange("success")
	return req, nil
}

func (s *LoginService) rejectExchange(ctx context.Context, appID string, cause error) error {
	s.metrics.RecordCodeExchange("rejected")
	log.Printf("[Login] Code exchange rejected for app %s: %v", appID, cause)
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventLoginFailed,
		Severity:     models.SeverityWarning,
		ResourceType: models.ResourceApp,
		ResourceID:   appID,
		Action:       "code exchange rejected",
		Success:      false,
		ErrorMessage: cause.Error(),
	})
	return ErrStaleRequest
}

// Complete finishes req for user and returns where the browser should land.
// The target must be on the app's domain.
func (s *LoginService) Complete(
	ctx context.Context,
	req *models.LoginRequest,
	user *models.User,
) (string, error) {
	if req == nil || user == nil {
		return "", ErrStaleRequest
	}
	current, err := s.store.GetLoginRequest(req.ID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrStaleRequest
		}
		return "", err
	}
	if current.IsStale(s.now(), s.config.StaleLoginExpiry) {
		return "", ErrStaleRequest
	}

	app, err := s.store.GetApp(current.AppID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrStaleRequest
		}
		return "", err
	}

	redirect := app.Domain
	if current.RedirectTo != nil && *current.RedirectTo != "" {
		redirect = *current.RedirectTo
	}
	if !util.SameHost(redirect, app.Domain) {
		log.Printf("[Login] Redirect %q for request %s is outside %s", redirect, current.ID, app.Domain)
		return "", ErrRedirectInvalid
	}

	now := s.now()
	if err := s.store.CompleteLoginRequest(current.ID, user.ID, now); err != nil {
		if errors.Is(err, store.ErrLoginAlreadyCompleted) {
			return "", ErrStaleRequest
		}
		return "", err
	}
	req.CompletedAt = &now

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventLoginCompleted,
		ActorUserID:   user.ID,
		ActorUsername: user.Username,
		ResourceType:  models.ResourceLoginRequest,
		ResourceID:    current.ID,
		ResourceName:  app.Name,
		Action:        "login completed",
		Details:       models.AuditDetails{"app_id": app.ID},
		Success:       true,
	})
	return redirect, nil
}

// CallbackURL is where the browser is sent once the provider login succeeded:
// the app's redirect URL carrying the one-time code and the request id as state.
func (s *LoginService) CallbackURL(app *models.App, req *models.LoginRequest) string {
	state := req.ID
	if len(state) > maxStateLength {
		state = state[:maxStateLength]
	}
	return util.AppendQuery(app.RedirectURL, url.Values{
		"code":  {req.SecretCode},
		"state": {state},
	})
}

// Sweep deletes requests older than retention and flags pending requests older
// than staleAfter as stale.
func (s *LoginService) Sweep(
	ctx context.Context,
	retention, staleAfter time.Duration,
) (deleted, staled int64, err error) {
	now := s.now()
	deleted, err = s.store.DeleteLoginRequestsBefore(now.Add(-retention))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete old login requests: %w", err)
	}
	staled, err = s.store.MarkLoginRequestsStale(now.Add(-staleAfter))
	if err != nil {
		return deleted, 0, fmt.Errorf("failed to mark stale login requests: %w", err)
	}

	s.metrics.RecordLoginRequestsSwept(deleted, staled)
	if deleted > 0 || staled > 0 {
		log.Printf("[Sweep] Deleted %d login requests, marked %d stale", deleted, staled)
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventLoginRequestsSwept,
			ResourceType: models.ResourceLoginRequest,
			Action:       "login requests swept",
			Details:      models.AuditDetails{"deleted": deleted, "staled": staled},
			Success:      true,
		})
	}
	return deleted, staled, nil
}

// ProviderName returns the configured identity provider name.
func (s *LoginService) ProviderName() string {
	return strings.ToLower(s.provider.Name())
}

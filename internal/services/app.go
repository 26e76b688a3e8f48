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
	"github.com/simonsobs/soauth/internal/keys"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/google/uuid"
)

// ManagementAppName is the name of the server's own app
const ManagementAppName = "soauth"

// SystemOwnerID owns apps created by the server itself
const SystemOwnerID = "system"

// CreateAppRequest holds the fields of a new app registration.
type CreateAppRequest struct {
	Name            string `json:"name"             binding:"required"`
	Domain          string `json:"domain"           binding:"required"`
	RedirectURL     string `json:"redirect_url"     binding:"required"`
	KeyPairType     string `json:"key_pair_type"`
	APIAccess       bool   `json:"api_access"`
	VisibilityGrant string `json:"visibility_grant"`
}

// AppResponse carries an app and, on creation or secret rotation, its plain secret.
type AppResponse struct {
	*models.App
	ClientSecret string `json:"client_secret,omitempty"`
}

// AppService registers apps and manages their key pairs and secrets.
type AppService struct {
	store        *store.Store
	config       *config.Config
	auditService *AuditService
}

func NewAppService(s *store.Store, cfg *config.Config, auditService *AuditService) *AppService {
	return &AppService{store: s, config: cfg, auditService: auditService}
}

// CreateApp registers an app owned by owner with a fresh key pair and secret.
func (s *AppService) CreateApp(
	ctx context.Context,
	owner *models.User,
	req CreateAppRequest,
) (*AppResponse, error) {
	app, err := s.newApp(req)
	if err != nil {
		return nil, err
	}
	app.OwnerID = owner.ID

	secret, err := app.GenerateClientSecret()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateApp(app); err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventAppCreated,
		ActorUserID:   owner.ID,
		ActorUsername: owner.Username,
		ResourceType:  models.ResourceApp,
		ResourceID:    app.ID,
		ResourceName:  app.Name,
		Action:        "app created",
		Details: models.AuditDetails{
			"domain":        app.Domain,
			"key_pair_type": app.KeyPairType,
			"api_access":    app.APIAccess,
		},
		Success: true,
	})
	return &AppResponse{App: app, ClientSecret: secret}, nil
}

func (s *AppService) newApp(req CreateAppRequest) (*models.App, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidApp)
	}
	domain := strings.TrimRight(strings.TrimSpace(req.Domain), "/")
	if err := validateAbsoluteURL(domain); err != nil {
		return nil, fmt.Errorf("%w: domain: %v", ErrInvalidApp, err)
	}
	redirectURL := strings.TrimSpace(req.RedirectURL)
	if err := validateAbsoluteURL(redirectURL); err != nil {
		return nil, fmt.Errorf("%w: redirect_url: %v", ErrInvalidApp, err)
	}

	keyPairType := req.KeyPairType
	if keyPairType == "" {
		keyPairType = s.config.KeyPairType
	}
	pair, err := s.generateKeyPair(keyPairType)
	if err != nil {
		return nil, err
	}

	return &models.App{
		ID:              uuid.New().String(),
		Name:            name,
		Domain:          domain,
		RedirectURL:     redirectURL,
		KeyPairType:     pair.Algorithm,
		PublicKey:       pair.PublicKey,
		PrivateKey:      pair.EncryptedPrivateKey,
		APIAccess:       req.APIAccess,
		VisibilityGrant: models.NormalizeGrant(req.VisibilityGrant),
	}, nil
}

func (s *AppService) generateKeyPair(keyPairType string) (*keys.KeyPair, error) {
	if !keys.IsSupported(keyPairType) {
		return nil, fmt.Errorf("%w: unsupported key pair type %q", ErrInvalidApp, keyPairType)
	}
	pair, err := keys.GenerateKeyPairWithCost(
		keyPairType,
		s.config.KeyPassword,
		s.config.KeyScryptWorkFactor,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return pair, nil
}

func validateAbsoluteURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if parsed.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// GetApp returns an app by id.
func (s *AppService) GetApp(ctx context.Context, id string) (*models.App, error) {
	app, err := s.store.GetApp(id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrAppNotFound
	}
	return app, err
}

// ListApps returns every app.
func (s *AppService) ListApps(ctx context.Context) ([]models.App, error) {
	return s.store.ListApps()
}

// ListAppsByOwner returns the apps registered by one user.
func (s *AppService) ListAppsByOwner(ctx context.Context, ownerID string) ([]models.App, error) {
	return s.store.ListAppsByOwner(ownerID)
}

// RotateKeys replaces an app's key pair. Every token signed with the old key
// is revoked, so all of the app's users have to log in again.
func (s *AppService) RotateKeys(ctx context.Context, id string) (*models.App, error) {
	app, err := s.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	pair, err := s.generateKeyPair(app.KeyPairType)
	if err != nil {
		return nil, err
	}

	var revoked int64
	err = s.store.RunInTransaction(func(tx *store.Store) error {
		app.PublicKey = pair.PublicKey
		app.PrivateKey = pair.EncryptedPrivateKey
		if err := tx.UpdateApp(app); err != nil {
			return err
		}
		n, err := tx.RevokeRefreshRecordsForApp(app.ID, time.Now().UTC())
		revoked = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rotate keys: %w", err)
	}

	log.Printf("[App] Rotated keys of %s, revoked %d refresh tokens", app.ID, revoked)
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventAppKeysRotated,
		Severity:     models.SeverityWarning,
		ResourceType: models.ResourceApp,
		ResourceID:   app.ID,
		ResourceName: app.Name,
		Action:       "app keys rotated",
		Details:      models.AuditDetails{"revoked": revoked},
		Success:      true,
	})
	return app, nil
}

// RotateSecret replaces an app's client secret and returns the new plain secret.
func (s *AppService) RotateSecret(ctx context.Context, id string) (*AppResponse, error) {
	app, err := s.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	secret, err := app.GenerateClientSecret()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateApp(app); err != nil {
		return nil, fmt.Errorf("failed to rotate secret: %w", err)
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventAppSecretRotated,
		Severity:     models.SeverityWarning,
		ResourceType: models.ResourceApp,
		ResourceID:   app.ID,
		ResourceName: app.Name,
		Action:       "app secret rotated",
		Success:      true,
	})
	return &AppResponse{App: app, ClientSecret: secret}, nil
}

// DeleteApp deletes an app with its refresh records and login requests.
// The management app cannot be deleted.
func (s *AppService) DeleteApp(ctx context.Context, id string) error {
	app, err := s.GetApp(ctx, id)
	if err != nil {
		return err
	}
	if app.Managed {
		return fmt.Errorf("%w: the management app cannot be deleted", ErrInvalidApp)
	}
	if err := s.store.DeleteApp(id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrAppNotFound
		}
		return err
	}

	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventAppDeleted,
		Severity:     models.SeverityWarning,
		ResourceType: models.ResourceApp,
		ResourceID:   app.ID,
		ResourceName: app.Name,
		Action:       "app deleted",
		Success:      true,
	})
	return nil
}

// ManagementApp returns the server's own app.
func (s *AppService) ManagementApp(ctx context.Context) (*models.App, error) {
	app, err := s.store.GetManagedApp()
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrAppNotFound
	}
	return app, err
}

// EnsureManagementApp registers the server's own app on first start. Tokens
// issued for it authenticate the account and admin API. The plain secret is
// only returned when the app was created by this call.
func (s *AppService) EnsureManagementApp(ctx context.Context) (*AppResponse, bool, error) {
	app, err := s.ManagementApp(ctx)
	if err == nil {
		return &AppResponse{App: app}, false, nil
	}
	if !errors.Is(err, ErrAppNotFound) {
		return nil, false, err
	}

	domain := s.config.ManagementAppDomain
	app, err = s.newApp(CreateAppRequest{
		Name:        ManagementAppName,
		Domain:      domain,
		RedirectURL: strings.TrimRight(s.config.BaseURL, "/") + "/callback/self",
		APIAccess:   true,
	})
	if err != nil {
		return nil, false, err
	}
	app.OwnerID = SystemOwnerID
	app.Managed = true

	secret, err := app.GenerateClientSecret()
	if err != nil {
		return nil, false, err
	}
	if err := s.store.CreateApp(app); err != nil {
		return nil, false, fmt.Errorf("failed to create management app: %w", err)
	}

	log.Printf("[App] Created management app %s for %s", app.ID, domain)
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:    models.EventAppCreated,
		ResourceType: models.ResourceApp,
		ResourceID:   app.ID,
		ResourceName: app.Name,
		Action:       "management app created",
		Success:      true,
	})
	return &AppResponse{App: app, ClientSecret: secret}, true, nil
}

package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/metrics"
	"github.com/simonsobs/soauth/internal/services"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/token"
)

// serviceSet holds every business service
type serviceSet struct {
	audit   *services.AuditService
	authz   *services.AuthorizationService
	user    *services.UserService
	refresh *services.RefreshService
	access  *services.AccessService
	login   *services.LoginService
	flow    *services.FlowService
	app     *services.AppService
	group   *services.GroupService
}

// initializeServices initializes all business services and the identity
// provider they log users in with
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	prometheusMetrics metrics.Recorder,
) (serviceSet, core.IdentityProvider, error) {
	var s serviceSet

	// Audit service (required by other services)
	s.audit = services.NewAuditService(db, cfg.EnableAuditLogging, cfg.AuditLogBufferSize)

	codec := token.NewCodec()
	keyring := services.NewKeyring(cfg.KeyPassword)

	s.authz = services.NewAuthorizationService(db, cfg, s.audit)
	s.user = services.NewUserService(db, cfg, s.authz)
	provider, err := initializeProvider(cfg, s.user, prometheusMetrics)
	if err != nil {
		return serviceSet{}, nil, err
	}

	s.refresh = services.NewRefreshService(db, cfg, codec, keyring, s.audit, prometheusMetrics)
	s.access = services.NewAccessService(db, cfg, codec, keyring, s.authz, s.audit)
	s.login = services.NewLoginService(db, cfg, provider, s.audit, prometheusMetrics)
	s.flow = services.NewFlowService(
		db,
		s.refresh,
		s.access,
		s.authz,
		s.login,
		provider,
		prometheusMetrics,
	)
	s.app = services.NewAppService(db, cfg, s.audit)
	s.group = services.NewGroupService(db, s.audit)

	return s, provider, nil
}

// ensureManagementApp registers the server's own app on first start and logs
// its credentials once
func ensureManagementApp(ctx context.Context, apps *services.AppService) error {
	resp, created, err := apps.EnsureManagementApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure management app: %w", err)
	}
	if !created {
		log.Printf("Management app: %s", resp.ID)
		return nil
	}

	log.Printf("Management app created: %s (%s)", resp.ID, resp.Domain)
	log.Printf("Management app secret (shown once): %s", resp.ClientSecret)
	return nil
}

package bootstrap

import (
	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/handlers"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	login   *handlers.LoginHandler
	token   *handlers.TokenHandler
	account *handlers.AccountHandler
	admin   *handlers.AdminHandler
	audit   *handlers.AuditHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(cfg *config.Config, s serviceSet) handlerSet {
	return handlerSet{
		login:   handlers.NewLoginHandler(s.login, s.flow, s.app, cfg),
		token:   handlers.NewTokenHandler(s.flow, s.refresh),
		account: handlers.NewAccountHandler(s.user, s.authz, s.refresh, s.flow, s.app),
		admin:   handlers.NewAdminHandler(s.app, s.group, s.user, s.authz, s.refresh),
		audit:   handlers.NewAuditHandler(s.audit),
	}
}

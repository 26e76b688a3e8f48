package bootstrap

import (
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/auth"
	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/metrics"
)

// initializeProvider creates the configured identity provider. Validate has
// already rejected unknown provider names.
func initializeProvider(
	cfg *config.Config,
	users auth.UserDirectory,
	prometheusMetrics metrics.Recorder,
) (core.IdentityProvider, error) {
	switch cfg.AuthProvider {
	case config.ProviderMock:
		log.Printf("Identity provider: mock (every login is %s)", cfg.MockUserName)
		return auth.NewMockProvider(cfg.BaseURL, auth.MockProfile{
			Username: cfg.MockUserName,
			FullName: cfg.MockFullName,
			Email:    cfg.MockEmail,
			Grants:   cfg.MockGrants,
		}, users), nil
	default:
		redirectURL := cfg.BaseURL + "/callback"
		log.Printf(
			"Identity provider: github (redirect=%s, organizations=%v)",
			redirectURL,
			cfg.GitHubOrganizations,
		)
		provider, err := auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:        cfg.GitHubClientID,
			ClientSecret:    cfg.GitHubClientSecret,
			RedirectURL:     redirectURL,
			Scopes:          cfg.GitHubScopes,
			Organizations:   cfg.GitHubOrganizations,
			APIURL:          cfg.GitHubAPIURL,
			TokenPassword:   cfg.KeyPassword,
			TokenWorkFactor: cfg.KeyScryptWorkFactor,
			Timeout:         cfg.ProviderTimeout,
			MaxRetries:      cfg.GitHubMaxRetries,
			Metrics:         prometheusMetrics,
		}, users)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GitHub provider: %w", err)
		}
		return provider, nil
	}
}

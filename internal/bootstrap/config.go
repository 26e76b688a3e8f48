package bootstrap

import (
	"fmt"
	"log"

	"github.com/simonsobs/soauth/internal/config"
)

// validateAllConfiguration validates all configuration settings and warns
// about development defaults
func validateAllConfiguration(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, warning := range configurationWarnings(cfg) {
		log.Printf("WARNING: %s", warning)
	}
	return nil
}

// configurationWarnings lists settings that are valid but unsafe outside
// development
func configurationWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.SessionSecret == "session-secret-change-in-production" {
		warnings = append(warnings, "SESSION_SECRET is using the default value")
	}
	if cfg.AuthProvider == config.ProviderMock {
		warnings = append(warnings, "AUTH_PROVIDER=mock logs everyone in as "+cfg.MockUserName)
	}
	if cfg.MetricsEnabled && cfg.MetricsToken == "" && cfg.IsProduction {
		warnings = append(warnings, "METRICS_TOKEN is empty, /metrics is unauthenticated")
	}
	if !cfg.EnableRateLimit && cfg.IsProduction {
		warnings = append(warnings, "rate limiting is disabled")
	}
	return warnings
}

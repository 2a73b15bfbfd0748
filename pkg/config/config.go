// Package config loads and validates TrustLens configuration: audit tier
// budgets, transport settings, OSINT source registry, and trust-score
// weights. Configuration is loaded once at startup, frozen, and passed by
// reference.
package config

import "github.com/trustlens/trustlens/pkg/models"

// Config is the umbrella configuration object returned by Initialize()
// and threaded through the audit process.
type Config struct {
	configDir string

	// System-wide audit defaults
	Defaults *Defaults

	// Progress-event transport configuration
	Transport *TransportConfig

	// OSINT fanout engine configuration and source registry
	OSINT *OSINTConfig

	// Trust-score weights and override rules
	Trust *TrustConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// BudgetFor returns the budget caps for a tier. Unknown tiers fall back
// to the standard tier (callers validate tiers at the CLI boundary).
func (c *Config) BudgetFor(tier models.Tier) models.Budget {
	if b, ok := c.Defaults.Budgets[tier]; ok {
		return b
	}
	return c.Defaults.Budgets[models.TierStandard]
}

// Stats contains statistics about loaded configuration, for startup logs.
type Stats struct {
	Sources       int
	SiteProfiles  int
	OverrideRules int
}

// Stats returns configuration statistics for logging.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.OSINT != nil {
		s.Sources = len(c.OSINT.Sources)
	}
	if c.Trust != nil {
		s.SiteProfiles = len(c.Trust.SiteTypeWeights)
		s.OverrideRules = len(c.Trust.Overrides)
	}
	return s
}

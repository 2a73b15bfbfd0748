package config

import (
	"time"

	"github.com/trustlens/trustlens/pkg/models"
)

// Defaults contains system-wide audit defaults. Values here are used when
// the YAML config and environment don't specify their own.
type Defaults struct {
	// Budgets maps each tier to its hard caps.
	Budgets map[models.Tier]models.Budget `yaml:"budgets,omitempty"`

	// VerdictMode default for new audits.
	VerdictMode models.VerdictMode `yaml:"verdict_mode,omitempty"`

	// ConfidenceThreshold is the minimum finding confidence to retain.
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty"`

	// SiteTypeThreshold is the minimum site-type confidence required to
	// switch from the default weight vector to the site-type vector.
	SiteTypeThreshold float64 `yaml:"site_type_threshold,omitempty"`

	// Per-phase timeouts. Scout is per page; graph covers the whole
	// fanout; AuditTimeout bounds everything else.
	ScoutTimeout time.Duration `yaml:"scout_timeout,omitempty"`
	GraphTimeout time.Duration `yaml:"graph_timeout,omitempty"`
	AuditTimeout time.Duration `yaml:"audit_timeout,omitempty"`

	// EnabledAnalyzers is the security-module set run by the security
	// phase. Empty means all built-ins.
	EnabledAnalyzers []string `yaml:"enabled_analyzers,omitempty"`
}

// DefaultDefaults returns the built-in audit defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		Budgets: map[models.Tier]models.Budget{
			models.TierQuick:    {MaxIterations: 1, MaxPages: 1, MaxAICalls: 10},
			models.TierStandard: {MaxIterations: 2, MaxPages: 5, MaxAICalls: 25},
			models.TierDeep:     {MaxIterations: 3, MaxPages: 10, MaxAICalls: 60},
		},
		VerdictMode:         models.VerdictModeSimple,
		ConfidenceThreshold: 0.3,
		SiteTypeThreshold:   0.6,
		ScoutTimeout:        20 * time.Second,
		GraphTimeout:        45 * time.Second,
		AuditTimeout:        5 * time.Minute,
	}
}

// TransportConfig controls the progress-event transport.
type TransportConfig struct {
	// Mode forces a transport mode: "queue", "stdout", or "" (rollout).
	Mode string `yaml:"mode,omitempty"`

	// Rollout is the fraction of audits that use the structured queue
	// transport when no explicit mode is set. 0..1.
	Rollout float64 `yaml:"rollout,omitempty"`

	// QueueCapacity bounds the in-flight event buffer.
	QueueCapacity int `yaml:"queue_capacity,omitempty"`

	// SendTimeout bounds a single queue push before drop-oldest kicks in.
	SendTimeout time.Duration `yaml:"send_timeout,omitempty"`
}

// DefaultTransportConfig returns the built-in transport defaults.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		Rollout:       0.10,
		QueueCapacity: 1000,
		SendTimeout:   1 * time.Second,
	}
}

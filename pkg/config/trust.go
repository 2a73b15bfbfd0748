package config

import "github.com/trustlens/trustlens/pkg/models"

// OverrideKind is how a hard-override rule adjusts the trust score.
type OverrideKind string

const (
	// OverrideClamp caps the score at Value.
	OverrideClamp OverrideKind = "clamp"
	// OverridePenalty subtracts Value points (floored at 0).
	OverridePenalty OverrideKind = "penalty"
)

// OverrideRule post-adjusts the trust score when its flag is raised.
// Rules are applied in declaration order and recorded by name.
type OverrideRule struct {
	Name           string       `yaml:"name"`
	Kind           OverrideKind `yaml:"kind"`
	Value          int          `yaml:"value"`
	Recommendation string       `yaml:"recommendation,omitempty"`
}

// Hard-override flag names raised by evidence collection.
const (
	FlagPhishingListHit    = "phishing_list_hit"
	FlagDarknetMarketHit   = "darknet_marketplace_match"
	FlagSSLAbsent          = "ssl_absent"
	FlagSelfSignedCert     = "self_signed_cert"
	FlagYoungDomain        = "young_domain"
	FlagCriticalPattern    = "critical_dark_pattern"
	FlagConfirmedMalicious = "confirmed_malicious_consensus"
)

// TrustConfig holds the score weights and ordered override rules.
type TrustConfig struct {
	// DefaultWeights is the weight vector used when no site-type vector
	// applies. Normalized to sum 1 at computation time.
	DefaultWeights map[models.SignalName]float64 `yaml:"default_weights,omitempty"`

	// SiteTypeWeights overrides the default vector per site type when the
	// classification confidence meets Defaults.SiteTypeThreshold.
	SiteTypeWeights map[string]map[models.SignalName]float64 `yaml:"site_type_weights,omitempty"`

	// Overrides are applied in order after the weighted sum.
	Overrides []OverrideRule `yaml:"overrides,omitempty"`
}

// DefaultTrustConfig returns the built-in weights and override rules.
func DefaultTrustConfig() *TrustConfig {
	return &TrustConfig{
		DefaultWeights: map[models.SignalName]float64{
			models.SignalVisual:     0.20,
			models.SignalStructural: 0.15,
			models.SignalTemporal:   0.10,
			models.SignalGraph:      0.25,
			models.SignalMeta:       0.10,
			models.SignalSecurity:   0.20,
		},
		SiteTypeWeights: map[string]map[models.SignalName]float64{
			models.SiteTypeEcommerce: {
				models.SignalVisual:     0.25,
				models.SignalStructural: 0.15,
				models.SignalTemporal:   0.10,
				models.SignalGraph:      0.20,
				models.SignalMeta:       0.05,
				models.SignalSecurity:   0.25,
			},
			models.SiteTypeBanking: {
				models.SignalVisual:     0.10,
				models.SignalStructural: 0.10,
				models.SignalTemporal:   0.10,
				models.SignalGraph:      0.30,
				models.SignalMeta:       0.05,
				models.SignalSecurity:   0.35,
			},
			models.SiteTypeLanding: {
				models.SignalVisual:     0.30,
				models.SignalStructural: 0.20,
				models.SignalTemporal:   0.15,
				models.SignalGraph:      0.15,
				models.SignalMeta:       0.10,
				models.SignalSecurity:   0.10,
			},
		},
		Overrides: []OverrideRule{
			// A blocklist hit lands the score inside the likely_fraudulent
			// bucket (below 20), not on its boundary.
			{Name: FlagPhishingListHit, Kind: OverrideClamp, Value: 15,
				Recommendation: "This URL appears on a phishing blocklist. Do not enter credentials or payment details."},
			{Name: FlagDarknetMarketHit, Kind: OverrideClamp, Value: 25,
				Recommendation: "The domain or its branding appears in dark-market threat feeds. Avoid transacting here."},
			{Name: FlagConfirmedMalicious, Kind: OverrideClamp, Value: 30,
				Recommendation: "Multiple intelligence sources agree this site is malicious."},
			{Name: FlagSSLAbsent, Kind: OverridePenalty, Value: 15,
				Recommendation: "The site does not use HTTPS. Anything you submit can be intercepted."},
			{Name: FlagSelfSignedCert, Kind: OverridePenalty, Value: 10,
				Recommendation: "The site presents a self-signed certificate."},
			{Name: FlagYoungDomain, Kind: OverridePenalty, Value: 10,
				Recommendation: "The domain was registered very recently, a common trait of scam sites."},
			{Name: FlagCriticalPattern, Kind: OverridePenalty, Value: 15,
				Recommendation: "Critical dark patterns were detected on this site."},
		},
	}
}

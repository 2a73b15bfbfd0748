package config

import "time"

// Source trust levels.
const (
	TrustHigh    = "high"
	TrustMedium  = "medium"
	TrustLow     = "low"
	TrustUnknown = "unknown"
)

// Source categories.
const (
	CategoryDNS         = "dns"
	CategoryWhois       = "whois"
	CategorySSL         = "ssl"
	CategoryThreatIntel = "threat_intel"
	CategoryReputation  = "reputation"
	CategorySocial      = "social"
	CategoryDarknetFeed = "darknet-feed"
)

// SourceSpec declares one registered OSINT source.
type SourceSpec struct {
	Name         string        `yaml:"name"`
	Category     string        `yaml:"category"`
	PriorityTier int           `yaml:"priority_tier"` // 1 = unlimited/fast .. 4 = skip if budget tight
	RPM          int           `yaml:"rpm"`           // 0 = unlimited
	RPH          int           `yaml:"rph"`           // 0 = unlimited
	RequiresKey  bool          `yaml:"requires_key"`
	APIKey       string        `yaml:"api_key,omitempty"` // from {{.<SOURCE>_API_KEY}} expansion or env
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Timeout      time.Duration `yaml:"timeout"`
	TrustLevel   string        `yaml:"trust_level"`
	BaseWeight   float64       `yaml:"base_weight"`
	// ConfidenceBias multiplies malicious votes from this source in the
	// consensus. 1.0 = neutral.
	ConfidenceBias float64 `yaml:"confidence_bias"`
	Endpoint       string  `yaml:"endpoint,omitempty"`
}

// Enabled reports whether the source can be queried: key-gated sources
// need their API key present.
func (s *SourceSpec) Enabled() bool {
	return !s.RequiresKey || s.APIKey != ""
}

// OSINTConfig configures the fanout engine.
type OSINTConfig struct {
	// Parallelism caps concurrent queries within a priority tier.
	Parallelism int `yaml:"parallelism,omitempty"`

	// TierPacing is the delay between priority tiers.
	TierPacing time.Duration `yaml:"tier_pacing,omitempty"`

	// BreakerFailureThreshold opens a source's circuit after this many
	// consecutive failures.
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold,omitempty"`

	// BreakerBackoff is the open → half-open backoff period.
	BreakerBackoff time.Duration `yaml:"breaker_backoff,omitempty"`

	// HighConfidence is the single-high-trust-source confidence needed
	// for a "confirmed" consensus verdict.
	HighConfidence float64 `yaml:"high_confidence,omitempty"`

	// FeedsDir holds pre-downloaded threat feeds (phishing CSV,
	// malicious domains, dark-market domains/keywords).
	FeedsDir string `yaml:"feeds_dir,omitempty"`

	// CacheDir enables the file cache when non-empty.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// RedisAddr enables the shared redis cache backend when non-empty.
	RedisAddr string `yaml:"redis_addr,omitempty"`

	// Sources is the source registry keyed by source name.
	Sources map[string]*SourceSpec `yaml:"sources,omitempty"`
}

// DefaultOSINTConfig returns the built-in fanout defaults with the
// key-less built-in sources registered.
func DefaultOSINTConfig() *OSINTConfig {
	return &OSINTConfig{
		Parallelism:             4,
		TierPacing:              250 * time.Millisecond,
		BreakerFailureThreshold: 3,
		BreakerBackoff:          60 * time.Second,
		HighConfidence:          0.85,
		FeedsDir:                "./feeds",
		Sources: map[string]*SourceSpec{
			"dns": {
				Name: "dns", Category: CategoryDNS, PriorityTier: 1,
				CacheTTL: 10 * time.Minute, Timeout: 5 * time.Second,
				TrustLevel: TrustHigh, BaseWeight: 1.0, ConfidenceBias: 1.0,
			},
			"ssl": {
				Name: "ssl", Category: CategorySSL, PriorityTier: 1,
				CacheTTL: 30 * time.Minute, Timeout: 8 * time.Second,
				TrustLevel: TrustHigh, BaseWeight: 1.0, ConfidenceBias: 1.0,
			},
			"phishing_feed": {
				Name: "phishing_feed", Category: CategoryThreatIntel, PriorityTier: 1,
				CacheTTL: 5 * time.Minute, Timeout: 2 * time.Second,
				TrustLevel: TrustHigh, BaseWeight: 1.2, ConfidenceBias: 1.3,
			},
			"malicious_domains": {
				Name: "malicious_domains", Category: CategoryThreatIntel, PriorityTier: 2,
				CacheTTL: 5 * time.Minute, Timeout: 2 * time.Second,
				TrustLevel: TrustMedium, BaseWeight: 0.9, ConfidenceBias: 1.2,
			},
			"darknet_feed": {
				Name: "darknet_feed", Category: CategoryDarknetFeed, PriorityTier: 3,
				CacheTTL: 15 * time.Minute, Timeout: 2 * time.Second,
				TrustLevel: TrustMedium, BaseWeight: 0.8, ConfidenceBias: 1.2,
			},
		},
	}
}

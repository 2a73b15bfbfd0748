package config

import (
	"fmt"

	"github.com/trustlens/trustlens/pkg/models"
)

// Validate checks the merged configuration for internal consistency.
// Called once from Initialize; returns the first problem found.
func Validate(cfg *Config) error {
	if err := validateDefaults(cfg.Defaults); err != nil {
		return err
	}
	if err := validateTransport(cfg.Transport); err != nil {
		return err
	}
	if err := validateOSINT(cfg.OSINT); err != nil {
		return err
	}
	return validateTrust(cfg.Trust)
}

func validateDefaults(d *Defaults) error {
	if d == nil {
		return NewValidationError("defaults", "defaults", "", ErrMissingRequiredField)
	}
	for tier, b := range d.Budgets {
		if !models.ValidTier(tier) {
			return NewValidationError("defaults", string(tier), "budgets",
				fmt.Errorf("%w: unknown tier", ErrInvalidValue))
		}
		if b.MaxIterations < 1 || b.MaxPages < 1 {
			return NewValidationError("defaults", string(tier), "budgets",
				fmt.Errorf("%w: max_iterations and max_pages must be at least 1", ErrInvalidValue))
		}
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return NewValidationError("defaults", "defaults", "confidence_threshold",
			fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if d.SiteTypeThreshold < 0 || d.SiteTypeThreshold > 1 {
		return NewValidationError("defaults", "defaults", "site_type_threshold",
			fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if d.ScoutTimeout <= 0 || d.GraphTimeout <= 0 || d.AuditTimeout <= 0 {
		return NewValidationError("defaults", "defaults", "timeouts",
			fmt.Errorf("%w: timeouts must be positive", ErrInvalidValue))
	}
	return nil
}

func validateTransport(t *TransportConfig) error {
	if t == nil {
		return NewValidationError("transport", "transport", "", ErrMissingRequiredField)
	}
	switch t.Mode {
	case "", "queue", "stdout":
	default:
		return NewValidationError("transport", "transport", "mode",
			fmt.Errorf("%w: must be queue or stdout", ErrInvalidValue))
	}
	if t.Rollout < 0 || t.Rollout > 1 {
		return NewValidationError("transport", "transport", "rollout",
			fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if t.QueueCapacity < 1 {
		return NewValidationError("transport", "transport", "queue_capacity",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if t.SendTimeout <= 0 {
		return NewValidationError("transport", "transport", "send_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validOSINTCategory(c string) bool {
	switch c {
	case CategoryDNS, CategoryWhois, CategorySSL, CategoryThreatIntel,
		CategoryReputation, CategorySocial, CategoryDarknetFeed:
		return true
	}
	return false
}

func validTrustLevel(t string) bool {
	switch t {
	case TrustHigh, TrustMedium, TrustLow, TrustUnknown:
		return true
	}
	return false
}

func validateOSINT(o *OSINTConfig) error {
	if o == nil {
		return NewValidationError("osint", "osint", "", ErrMissingRequiredField)
	}
	if o.Parallelism < 1 {
		return NewValidationError("osint", "osint", "parallelism",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if o.BreakerFailureThreshold < 1 {
		return NewValidationError("osint", "osint", "breaker_failure_threshold",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if o.BreakerBackoff <= 0 {
		return NewValidationError("osint", "osint", "breaker_backoff",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	for name, spec := range o.Sources {
		if spec == nil {
			return NewValidationError("source", name, "", ErrMissingRequiredField)
		}
		if spec.PriorityTier < 1 || spec.PriorityTier > 4 {
			return NewValidationError("source", name, "priority_tier",
				fmt.Errorf("%w: must be 1-4", ErrInvalidValue))
		}
		if !validOSINTCategory(spec.Category) {
			return NewValidationError("source", name, "category",
				fmt.Errorf("%w: %q", ErrInvalidValue, spec.Category))
		}
		if !validTrustLevel(spec.TrustLevel) {
			return NewValidationError("source", name, "trust_level",
				fmt.Errorf("%w: %q", ErrInvalidValue, spec.TrustLevel))
		}
		if spec.BaseWeight <= 0 {
			return NewValidationError("source", name, "base_weight",
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if spec.RPM < 0 || spec.RPH < 0 {
			return NewValidationError("source", name, "rate_limit",
				fmt.Errorf("%w: rpm/rph cannot be negative", ErrInvalidValue))
		}
	}
	return nil
}

func validateTrust(t *TrustConfig) error {
	if t == nil {
		return NewValidationError("trust", "trust", "", ErrMissingRequiredField)
	}
	if err := validateWeights("default_weights", t.DefaultWeights); err != nil {
		return err
	}
	for siteType, weights := range t.SiteTypeWeights {
		if err := validateWeights("site_type_weights."+siteType, weights); err != nil {
			return err
		}
	}
	for i, rule := range t.Overrides {
		if rule.Name == "" {
			return NewValidationError("trust", fmt.Sprintf("override[%d]", i), "name",
				ErrMissingRequiredField)
		}
		if rule.Kind != OverrideClamp && rule.Kind != OverridePenalty {
			return NewValidationError("trust", rule.Name, "kind",
				fmt.Errorf("%w: must be clamp or penalty", ErrInvalidValue))
		}
		if rule.Value < 0 || rule.Value > 100 {
			return NewValidationError("trust", rule.Name, "value",
				fmt.Errorf("%w: must be 0-100", ErrInvalidValue))
		}
	}
	return nil
}

func validateWeights(field string, weights map[models.SignalName]float64) error {
	sum := 0.0
	for name, w := range weights {
		if w < 0 {
			return NewValidationError("trust", string(name), field,
				fmt.Errorf("%w: weight cannot be negative", ErrInvalidValue))
		}
		sum += w
	}
	if len(weights) > 0 && sum == 0 {
		return NewValidationError("trust", "trust", field,
			fmt.Errorf("%w: weights cannot all be zero", ErrInvalidValue))
	}
	return nil
}

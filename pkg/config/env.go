package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Environment variables recognized by ApplyEnvOverrides.
const (
	EnvQueueIPCMode        = "QUEUE_IPC_MODE"    // queue | stdout | fallback
	EnvQueueIPCRollout     = "QUEUE_IPC_ROLLOUT" // float 0..1
	EnvMaxIterations       = "MAX_ITERATIONS"
	EnvMaxPages            = "MAX_PAGES_PER_AUDIT"
	EnvAICallBudget        = "NIM_CALL_BUDGET"
	EnvConfidenceThreshold = "CONFIDENCE_THRESHOLD"
	EnvOSINTRedisAddr      = "OSINT_REDIS_ADDR"
	EnvOSINTCacheDir       = "OSINT_CACHE_DIR"
	EnvFeedsDir            = "THREAT_FEEDS_DIR"
)

// ApplyEnvOverrides applies recognized environment variables on top of
// the merged configuration. Budget overrides apply to every tier: the
// supervisor sets them per audit process, which only ever runs one tier.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := envInt(EnvMaxIterations); ok {
		for tier, b := range cfg.Defaults.Budgets {
			b.MaxIterations = v
			cfg.Defaults.Budgets[tier] = b
		}
	}
	if v, ok := envInt(EnvMaxPages); ok {
		for tier, b := range cfg.Defaults.Budgets {
			b.MaxPages = v
			cfg.Defaults.Budgets[tier] = b
		}
	}
	if v, ok := envInt(EnvAICallBudget); ok {
		for tier, b := range cfg.Defaults.Budgets {
			b.MaxAICalls = v
			cfg.Defaults.Budgets[tier] = b
		}
	}
	if v, ok := envFloat(EnvConfidenceThreshold); ok {
		cfg.Defaults.ConfidenceThreshold = v
	}

	switch os.Getenv(EnvQueueIPCMode) {
	case "queue":
		cfg.Transport.Mode = "queue"
	case "stdout", "fallback":
		cfg.Transport.Mode = "stdout"
	}
	if v, ok := envFloat(EnvQueueIPCRollout); ok {
		cfg.Transport.Rollout = v
	}

	if v := os.Getenv(EnvOSINTRedisAddr); v != "" {
		cfg.OSINT.RedisAddr = v
	}
	if v := os.Getenv(EnvOSINTCacheDir); v != "" {
		cfg.OSINT.CacheDir = v
	}
	if v := os.Getenv(EnvFeedsDir); v != "" {
		cfg.OSINT.FeedsDir = v
	}

	// Per-source overrides: <SOURCE>_API_KEY enables a key-gated source,
	// <SOURCE>_REQUESTS_PER_MINUTE overrides its RPM.
	for name, spec := range cfg.OSINT.Sources {
		prefix := strings.ToUpper(name)
		if key := os.Getenv(prefix + "_API_KEY"); key != "" {
			spec.APIKey = key
		}
		if v, ok := envInt(prefix + "_REQUESTS_PER_MINUTE"); ok {
			spec.RPM = v
		}
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring non-integer environment override", "var", name, "value", raw)
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment override", "var", name, "value", raw)
		return 0, false
	}
	return v, true
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// TrustLensYAMLConfig represents the complete trustlens.yaml file
// structure. Every section is optional; missing sections fall back to
// built-in defaults.
type TrustLensYAMLConfig struct {
	Defaults  *Defaults        `yaml:"defaults"`
	Transport *TransportConfig `yaml:"transport"`
	OSINT     *OSINTConfig     `yaml:"osint"`
	Trust     *TrustConfig     `yaml:"trust"`
}

// ConfigFileName is the expected file name inside the config directory.
const ConfigFileName = "trustlens.yaml"

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. Precedence: environment overrides > trustlens.yaml >
// built-in defaults. The returned Config is frozen; callers never
// mutate it after startup.
func Initialize(configDir string) (*Config, error) {
	cfg := &Config{
		configDir: configDir,
		Defaults:  DefaultDefaults(),
		Transport: DefaultTransportConfig(),
		OSINT:     DefaultOSINTConfig(),
		Trust:     DefaultTrustConfig(),
	}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No config file found, using built-in defaults", "path", path)
	case err != nil:
		return nil, NewLoadError(path, err)
	default:
		fileCfg := &TrustLensYAMLConfig{}
		if err := yaml.Unmarshal(ExpandEnv(data), fileCfg); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		if err := mergeFileConfig(cfg, fileCfg); err != nil {
			return nil, NewLoadError(path, err)
		}
		slog.Info("Loaded configuration", "path", path)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	stats := cfg.Stats()
	slog.Info("Configuration initialized",
		"sources", stats.Sources,
		"site_profiles", stats.SiteProfiles,
		"override_rules", stats.OverrideRules)
	return cfg, nil
}

// mergeFileConfig overlays non-zero file values onto the defaults.
// File values win; defaults fill whatever the file omits.
func mergeFileConfig(cfg *Config, file *TrustLensYAMLConfig) error {
	if file.Defaults != nil {
		if err := mergo.Merge(file.Defaults, cfg.Defaults); err != nil {
			return fmt.Errorf("merging defaults: %w", err)
		}
		cfg.Defaults = file.Defaults
	}
	if file.Transport != nil {
		if err := mergo.Merge(file.Transport, cfg.Transport); err != nil {
			return fmt.Errorf("merging transport: %w", err)
		}
		cfg.Transport = file.Transport
	}
	if file.OSINT != nil {
		if err := mergo.Merge(file.OSINT, cfg.OSINT); err != nil {
			return fmt.Errorf("merging osint: %w", err)
		}
		// Per-source specs from the file replace built-ins of the same
		// name wholesale; mergo fills only absent source names.
		cfg.OSINT = file.OSINT
	}
	if file.Trust != nil {
		if err := mergo.Merge(file.Trust, cfg.Trust); err != nil {
			return fmt.Errorf("merging trust: %w", err)
		}
		cfg.Trust = file.Trust
	}
	// Source specs carry their map key as Name when the file omits it.
	for name, spec := range cfg.OSINT.Sources {
		if spec.Name == "" {
			spec.Name = name
		}
	}
	return nil
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"gopkg.in/yaml.v3"
)

// RostersYAMLConfig represents the optional rosters.yaml file structure.
// Its absence is not an error: the built-in rosters are used as-is.
type RostersYAMLConfig struct {
	Rosters map[string]RosterConfig `yaml:"rosters"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Resolve queue/retention/Azure settings from environment variables
//  2. Load rosters.yaml from configDir, if present
//  3. Merge built-in + user-defined rosters
//  4. Optionally augment with remote App Configuration overrides (non-fatal)
//  5. Build the roster registry
//  6. Validate all configuration
//  7. Return Config ready for use
//
// cred is used only to reach an optional remote config source; pass nil to
// skip remote augmentation even when APP_CONFIG_ENDPOINT is set.
func Initialize(ctx context.Context, configDir string, cred azcore.TokenCredential) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized successfully", "rosters", stats.Rosters)

	return cfg, nil
}

func load(ctx context.Context, configDir string, cred azcore.TokenCredential) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	userRosters, err := loader.loadRostersYAML()
	if err != nil {
		return nil, NewLoadError("rosters.yaml", err)
	}

	merged := mergeRosters(BuiltinRosters(), userRosters)

	azureCfg := AzureConfigFromEnv()
	if azureCfg.AppConfigEndpoint != "" && cred != nil {
		if overrides, err := fetchRemoteRosterOverrides(ctx, azureCfg.AppConfigEndpoint, cred); err != nil {
			slog.Warn("remote configuration augmentation failed, continuing with local rosters only",
				"endpoint", azureCfg.AppConfigEndpoint, "error", err)
		} else if len(overrides) > 0 {
			merged = mergeRosters(toValueMap(merged), overrides)
		}
	}

	rosterRegistry := NewRosterRegistry(merged)

	return &Config{
		configDir:      configDir,
		Queue:          QueueConfigFromEnv(),
		Retention:      DefaultRetentionConfig(),
		Azure:          azureCfg,
		Defaults:       DefaultDefaults(),
		RosterRegistry: rosterRegistry,
	}, nil
}

func fetchRemoteRosterOverrides(ctx context.Context, endpoint string, cred azcore.TokenCredential) (map[string]RosterConfig, error) {
	source, err := NewAppConfigSource(endpoint, cred)
	if err != nil {
		return nil, err
	}
	return source.RosterOverrides(ctx)
}

func toValueMap(rosters map[string]*RosterConfig) map[string]RosterConfig {
	out := make(map[string]RosterConfig, len(rosters))
	for k, v := range rosters {
		out[k] = *v
	}
	return out
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	if cfg.Azure.QueueName == "" {
		return NewValidationError("azure", "queue", "name", ErrMissingRequiredField)
	}
	if cfg.Queue.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", "", ErrInvalidValue)
	}
	if cfg.RosterRegistry.Len() == 0 {
		return NewValidationError("roster", "*", "", ErrMissingRequiredField)
	}
	for _, phase := range []string{"analysis", "design", "yaml_generation", "documentation"} {
		if !cfg.RosterRegistry.Has(phase) {
			return fmt.Errorf("%w: no roster configured for phase %q", ErrChainNotFound, phase)
		}
	}
	return nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // optional file: absence is not an error
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func yamlUnmarshalString(s string, target any) error {
	return yaml.Unmarshal([]byte(s), target)
}

func (l *configLoader) loadRostersYAML() (map[string]RosterConfig, error) {
	var cfg RostersYAMLConfig
	cfg.Rosters = make(map[string]RosterConfig)

	if err := l.loadYAML("rosters.yaml", &cfg); err != nil {
		return nil, err
	}

	return cfg.Rosters, nil
}

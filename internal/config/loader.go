package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file.
// A file that cannot be opened yields ErrConfigNotFound; anything wrong with
// its content yields ErrConfigMalformed.
func Load(configPath string) (*ServiceConfig, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrConfigNotFound, configPath, err)
	}

	// Parse TOML
	var cfg ServiceConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrConfigMalformed, configPath, err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigMalformed, configPath, err)
	}

	// Additional input security validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigMalformed, configPath, err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *ServiceConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	// NOTE: TOML can't distinguish 0 from unset, so an explicit 0 also
	// gets the default. There is no way to disable the timeout.
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

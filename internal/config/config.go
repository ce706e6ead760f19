package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConfigNotFound is returned when the configuration file cannot be opened
	ErrConfigNotFound = errors.New("config not found")
	// ErrConfigMalformed is returned when the configuration file cannot be parsed
	// or a required field is missing
	ErrConfigMalformed = errors.New("config malformed")
)

const (
	// DefaultPath is the configuration file looked up in the working directory.
	// The file holds TOML despite its extension.
	DefaultPath = ".openAi.yml"
	// DefaultEndpoint is the chat completions URL used when none is configured
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	// DefaultTimeoutSeconds bounds a single request when timeout_seconds is unset
	DefaultTimeoutSeconds = 60
	// MaxTimeoutSeconds is the largest accepted timeout_seconds value
	MaxTimeoutSeconds = 600
)

// ServiceConfig holds the credentials and target model for the chat service
type ServiceConfig struct {
	APIKey             string `toml:"api_key"`
	Model              string `toml:"model"`
	Endpoint           string `toml:"endpoint"`              // Optional: chat completions URL (default: OpenAI)
	TimeoutSeconds     int    `toml:"timeout_seconds"`       // Optional: per-request timeout (default 60)
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"` // Optional: client-side pacing, 0 = disabled
}

// Timeout returns the per-request timeout as a duration
func (c *ServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks that required fields are present and optional fields are in range
func (c *ServiceConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api_key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if c.TimeoutSeconds < 0 || c.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be between 0 and %d (got %d)", MaxTimeoutSeconds, c.TimeoutSeconds)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate_limit_per_minute must not be negative (got %d)", c.RateLimitPerMinute)
	}
	return nil
}

// Redacted returns the API key with everything but a short prefix masked
func (c *ServiceConfig) Redacted() string {
	const visible = 3
	key := []rune(c.APIKey)
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return string(key[:visible]) + strings.Repeat("*", len(key)-visible)
}

package config

import (
	"fmt"
	"net/url"
	"unicode"
)

const (
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxEndpointLength is the maximum allowed length for the endpoint URL
	MaxEndpointLength = 2048
)

// ValidateInputs performs additional validation on fields that end up in the
// outgoing request. The API key is deliberately left alone here: its header
// safety is checked when the Authorization header is built.
func (c *ServiceConfig) ValidateInputs() error {
	if err := validateModelName(c.Model); err != nil {
		return err
	}
	if err := validateEndpoint(c.Endpoint); err != nil {
		return err
	}
	return nil
}

// validateModelName checks model name for security issues
func validateModelName(modelName string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("model name exceeds maximum length of %d (got %d)",
			MaxModelNameLength, len(modelName))
	}

	// Model identifiers never legitimately contain control characters
	for _, r := range modelName {
		if unicode.IsControl(r) {
			return fmt.Errorf("model name contains invalid control characters")
		}
	}

	return nil
}

// validateEndpoint checks that the endpoint is an absolute http(s) URL
func validateEndpoint(endpoint string) error {
	if len(endpoint) > MaxEndpointLength {
		return fmt.Errorf("endpoint exceeds maximum length of %d (got %d)",
			MaxEndpointLength, len(endpoint))
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	// Check scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https scheme (got %q)", u.Scheme)
	}

	// Check host is present
	if u.Host == "" {
		return fmt.Errorf("endpoint must have a host")
	}

	return nil
}

package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".openAi.yml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api_key = "sk-x"
model = "gpt-4"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "sk-x" {
		t.Errorf("Expected api_key 'sk-x', got '%s'", cfg.APIKey)
	}
	if cfg.Model != "gpt-4" {
		t.Errorf("Expected model 'gpt-4', got '%s'", cfg.Model)
	}
	if cfg.Endpoint != DefaultEndpoint {
		t.Errorf("Expected default endpoint, got '%s'", cfg.Endpoint)
	}
	if cfg.Timeout() != DefaultTimeoutSeconds*time.Second {
		t.Errorf("Expected default timeout, got %v", cfg.Timeout())
	}
}

func TestLoad_OptionalFields(t *testing.T) {
	path := writeConfig(t, `
api_key = "sk-x"
model = "gpt-4"
endpoint = "http://localhost:8080/v1/chat/completions"
timeout_seconds = 5
rate_limit_per_minute = 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoint != "http://localhost:8080/v1/chat/completions" {
		t.Errorf("Unexpected endpoint '%s'", cfg.Endpoint)
	}
	if cfg.Timeout() != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.Timeout())
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Errorf("Expected rate limit 30, got %d", cfg.RateLimitPerMinute)
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("Expected ErrConfigNotFound, got %v", err)
	}
	if errors.Is(err, ErrConfigMalformed) {
		t.Error("Missing file must not be reported as malformed")
	}
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing model",
			content: `api_key = "sk-x"`,
		},
		{
			name:    "missing api key",
			content: `model = "gpt-4"`,
		},
		{
			name: "blank api key",
			content: `api_key = "   "
model = "gpt-4"`,
		},
		{
			name: "newline api key",
			content: `api_key = "\n"
model = "gpt-4"`,
		},
		{
			name:    "not toml",
			content: `{"api_key": "sk-x", "model": "gpt-4"}`,
		},
		{
			name: "wrong type",
			content: `api_key = 42
model = "gpt-4"`,
		},
		{
			name: "bad endpoint scheme",
			content: `api_key = "sk-x"
model = "gpt-4"
endpoint = "ftp://example.com"`,
		},
		{
			name: "negative timeout",
			content: `api_key = "sk-x"
model = "gpt-4"
timeout_seconds = -1`,
		},
		{
			name: "control char in model",
			content: `api_key = "sk-x"
model = "gpt\u0007"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrConfigMalformed) {
				t.Errorf("Expected ErrConfigMalformed, got %v", err)
			}
		})
	}
}

func TestLoad_KeyWithControlCharsIsAccepted(t *testing.T) {
	// Header safety is the client's concern, not the loader's
	cfg, err := Load(writeConfig(t, `api_key = "sk-\nx"
model = "gpt-4"`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "sk-\nx" {
		t.Errorf("Expected key to be passed through, got %q", cfg.APIKey)
	}
}

func TestRedacted(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk-secret", "sk-******"},
		{"ab", "**"},
		{"", ""},
		{"ключ-секрет", "клю********"},
	}
	for _, tt := range tests {
		cfg := ServiceConfig{APIKey: tt.key}
		if got := cfg.Redacted(); got != tt.want {
			t.Errorf("Redacted(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestFileProvider_RereadsFile(t *testing.T) {
	path := writeConfig(t, `api_key = "sk-x"
model = "gpt-4"`)
	p := NewFileProvider(path)

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != "gpt-4" {
		t.Fatalf("Expected gpt-4, got %s", cfg.Model)
	}

	if err := os.WriteFile(path, []byte(`api_key = "sk-x"
model = "gpt-4o"`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err = p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Expected updated model gpt-4o, got %s", cfg.Model)
	}
}

type countingProvider struct {
	calls int
	err   error
	cfg   ServiceConfig
}

func (p *countingProvider) Load(ctx context.Context) (*ServiceConfig, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	cfg := p.cfg
	return &cfg, nil
}

func TestCachedProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := &countingProvider{cfg: ServiceConfig{APIKey: "k", Model: "m"}}
	p := NewCachedProvider(inner, time.Minute, logger)

	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := p.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 underlying load within ttl, got %d", inner.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected reload after ttl, got %d loads", inner.calls)
	}
}

func TestCachedProvider_ReturnsCopy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewCachedProvider(&countingProvider{cfg: ServiceConfig{APIKey: "k", Model: "m"}}, 0, logger)

	cfg, _ := p.Load(context.Background())
	cfg.Model = "changed"

	cfg, _ = p.Load(context.Background())
	if cfg.Model != "m" {
		t.Errorf("Cached config was mutated through returned pointer: %s", cfg.Model)
	}
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := &countingProvider{err: ErrConfigNotFound}
	p := NewCachedProvider(inner, 0, logger)

	for i := 0; i < 2; i++ {
		if _, err := p.Load(context.Background()); !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("Expected ErrConfigNotFound, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("Expected errors to be retried on each call, got %d loads", inner.calls)
	}
}

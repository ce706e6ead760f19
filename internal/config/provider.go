package config

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Provider supplies the current service configuration
type Provider interface {
	Load(ctx context.Context) (*ServiceConfig, error)
}

// FileProvider re-reads the configuration file on every call, so edits to the
// file take effect on the next request
type FileProvider struct {
	Path string
}

// NewFileProvider creates a provider for the given path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// Load reads the configuration file
func (p *FileProvider) Load(ctx context.Context) (*ServiceConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(p.Path)
}

// StaticProvider always returns the same in-memory configuration
type StaticProvider struct {
	Config ServiceConfig
}

// Load returns a copy of the held configuration
func (p *StaticProvider) Load(ctx context.Context) (*ServiceConfig, error) {
	cfg := p.Config
	return &cfg, nil
}

// CachedProvider keeps the last successfully loaded configuration for up to
// ttl. Changes to the underlying file are invisible until the entry expires.
// A ttl of zero caches for the life of the process. Failures are never cached.
type CachedProvider struct {
	next   Provider
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	cached   *ServiceConfig
	loadedAt time.Time
}

// NewCachedProvider wraps next with a cache
func NewCachedProvider(next Provider, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		next:   next,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Load returns the cached configuration or loads a fresh one
func (p *CachedProvider) Load(ctx context.Context) (*ServiceConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && (p.ttl == 0 || p.now().Sub(p.loadedAt) < p.ttl) {
		cfg := *p.cached
		return &cfg, nil
	}

	cfg, err := p.next.Load(ctx)
	if err != nil {
		return nil, err
	}

	p.cached = cfg
	p.loadedAt = p.now()
	p.logger.Debug("Configuration cached", "model", cfg.Model, "ttl", p.ttl)

	out := *cfg
	return &out, nil
}

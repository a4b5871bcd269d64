package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultReloadInterval is how often a [Reloader] reads its file.
const DefaultReloadInterval = 5 * time.Second

// ApplyFunc puts a freshly loaded config into effect. Returning an error
// rejects it and keeps the previous config current.
type ApplyFunc func(*Config) error

// Reloader re-reads a config file and hands each valid, changed version to
// an [ApplyFunc]. Invalid files and rejected configs are logged and skipped;
// the same content is not offered twice.
type Reloader struct {
	path     string
	interval time.Duration
	apply    ApplyFunc

	mu      sync.Mutex
	current *Config
	seen    [sha256.Size]byte
}

// ReloaderOption configures a [Reloader].
type ReloaderOption func(*Reloader)

// WithReloadInterval overrides [DefaultReloadInterval].
func WithReloadInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewReloader loads path once and returns the reloader together with that
// initial config. apply is not called for the initial config.
func NewReloader(path string, apply ApplyFunc, opts ...ReloaderOption) (*Reloader, *Config, error) {
	r := &Reloader{path: path, interval: DefaultReloadInterval, apply: apply}
	for _, o := range opts {
		o(r)
	}
	cfg, sum, err := r.read()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	r.current, r.seen = cfg, sum
	return r, cfg, nil
}

// Current returns the config most recently put into effect.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run checks the file every interval until ctx is done. It always returns
// nil so it can run inside an errgroup next to the server.
func (r *Reloader) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.Check(); err != nil {
				slog.Warn("config reload skipped", "path", r.path, "err", err)
			}
		}
	}
}

// Check reads the file once. It reports whether a new config was put into
// effect. Unchanged content is a no-op.
func (r *Reloader) Check() (bool, error) {
	cfg, sum, err := r.read()

	r.mu.Lock()
	defer r.mu.Unlock()
	if sum == r.seen {
		return false, nil
	}
	if err != nil {
		var zero [sha256.Size]byte
		if sum != zero {
			r.seen = sum
		}
		return false, err
	}
	r.seen = sum
	if r.apply != nil {
		if err := r.apply(cfg); err != nil {
			return false, fmt.Errorf("config rejected: %w", err)
		}
	}
	r.current = cfg
	slog.Info("config reloaded", "path", r.path)
	return true, nil
}

func (r *Reloader) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	sum := sha256.Sum256(data)
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, sum, err
	}
	return cfg, sum, nil
}

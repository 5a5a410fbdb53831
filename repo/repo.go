// Package repo is the facade a caller opens once per repository: it parses
// a repository URL, wires the matching storage backend (optionally fronted
// by a composition-map cache), and hands back a Repository carrying
// everything else in this module needs to operate against it.
package repo

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/config"
	"github.com/heraclitus/heraclitus/internal/logger"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/storage/debugfs"
	"github.com/heraclitus/heraclitus/storage/postgres"
	"github.com/heraclitus/heraclitus/storage/rediscache"
)

// Repository wires a storage backend to the registry and logger it was
// opened with. It is the top-level handle the rest of a caller's program
// holds onto.
type Repository struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *datatype.Registry
	Backend  storage.Backend

	cleanup []func()
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *logger.Logger
	config *config.Config
}

// WithLogger supplies a logger instead of building one from config.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithConfig supplies a config instead of loading one from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// Open parses rawURL's scheme to select a storage backend — "postgres" or
// "postgresql" selects storage/postgres, passing rawURL through as the
// pool DSN; every other scheme (including none) selects storage/debugfs,
// treating the remainder of the URL as a filesystem root. When the
// configuration enables caching, the backend is wrapped in
// storage/rediscache before being returned.
//
// Open does not call Init; callers that need a fresh repository's schema
// or directory structure created call Repository.Init explicitly.
func Open(ctx context.Context, rawURL string, reg *datatype.Registry, opts ...Option) (*Repository, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	log := o.logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Format)
	}

	backend, cleanup, err := openBackend(ctx, rawURL, cfg, log)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Backend:  backend,
	}
	if cleanup != nil {
		r.cleanup = append(r.cleanup, cleanup)
	}

	if cfg.Cache.Enabled {
		cache := rediscache.NewMemory(log)
		r.cleanup = append(r.cleanup, func() {
			if err := cache.Close(); err != nil {
				log.Error("composition cache close failed", "error", err)
			}
		})
		r.Backend = rediscache.New(r.Backend, cache, cfg.Cache.DefaultTTL, log)
	}

	return r, nil
}

func openBackend(ctx context.Context, rawURL string, cfg *config.Config, log *logger.Logger) (storage.Backend, func(), error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse repository url %q: %w", rawURL, err)
	}

	switch parsed.Scheme {
	case "postgres", "postgresql":
		b, err := postgres.Open(ctx, postgres.Config{DSN: rawURL}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres backend: %w", err)
		}
		return b, func() { b.Close() }, nil
	default:
		root := debugfsRoot(parsed, rawURL)
		b, err := debugfs.Open(root)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open debugfs backend at %q: %w", root, err)
		}
		return b, nil, nil
	}
}

// debugfsRoot recovers a filesystem path from a parsed (possibly
// schemeless) repository URL. A bare path ("./.heraclitus") parses with no
// scheme and lands entirely in Path; a "debugfs://some/dir" URL splits
// across Host and Path.
func debugfsRoot(parsed *url.URL, rawURL string) string {
	if parsed.Scheme == "" {
		return rawURL
	}
	return filepath.Join(parsed.Host, parsed.Path)
}

// Init creates the backend's schema or directory structure for a fresh
// repository and registers every datatype's own init hook.
func (r *Repository) Init(ctx context.Context) error {
	return r.Backend.Init(ctx, r.Registry)
}

// Close releases any resources Open acquired (connection pools, cache
// goroutines), in reverse order of acquisition.
func (r *Repository) Close() error {
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
	return nil
}

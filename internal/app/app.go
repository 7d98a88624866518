// Package app wires the client together. An App is built once per process
// and passed to whatever needs the session, the gateway or the stat clients.
package app

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/eddits-console/internal/config"
	"github.com/wolfeidau/eddits-console/internal/credentials"
	"github.com/wolfeidau/eddits-console/internal/dashboard"
	"github.com/wolfeidau/eddits-console/internal/gateway"
	"github.com/wolfeidau/eddits-console/internal/health"
	"github.com/wolfeidau/eddits-console/internal/notify"
	"github.com/wolfeidau/eddits-console/internal/session"
)

const boltFileName = "session.db"

// App holds every long lived component.
type App struct {
	Config    *config.Config
	Store     credentials.Store
	Gateway   *gateway.Gateway
	Session   *session.Manager
	Dashboard *dashboard.Client
	Health    *health.Client
	Notifier  notify.Notifier
}

type options struct {
	notifier         notify.Notifier
	httpClient       *http.Client
	store            credentials.Store
	onSessionExpired func()
}

// Option configures New.
type Option func(*options)

// WithNotifier sets where user facing messages go. The default discards them.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithHTTPClient replaces the HTTP client built from the config.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithStore uses store instead of opening the one named in the config.
func WithStore(store credentials.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithSessionExpiredHandler runs fn when an API call fails because the
// session could not be refreshed.
func WithSessionExpiredHandler(fn func()) Option {
	return func(o *options) {
		o.onSessionExpired = fn
	}
}

// New builds the store, gateway and session manager from cfg and restores
// any persisted session.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{notifier: notify.Discard}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = gateway.NewHTTPClient(cfg.Timeout, gateway.CacheOptions{
			Enabled: cfg.Cache.Enabled,
			Dir:     cfg.Cache.Dir,
		})
	}

	gwOpts := []gateway.Option{
		gateway.WithHTTPClient(httpClient),
		gateway.WithNotifier(o.notifier),
	}
	if o.onSessionExpired != nil {
		gwOpts = append(gwOpts, gateway.WithSessionExpiredHandler(o.onSessionExpired))
	}

	gw := gateway.New(cfg.APIURL, store, gwOpts...)

	mgr := session.New(gw, store,
		session.WithNotifier(o.notifier),
		session.WithRefreshTimeout(cfg.Timeout),
	)
	gw.UseSession(mgr)

	log.Debug().
		Str("api_url", cfg.APIURL).
		Str("store", cfg.Store.Type).
		Bool("cache", cfg.Cache.Enabled).
		Msg("client initialized")

	return &App{
		Config:    cfg,
		Store:     store,
		Gateway:   gw,
		Session:   mgr,
		Dashboard: dashboard.New(gw),
		Health:    health.New(gw),
		Notifier:  o.notifier,
	}, nil
}

// OpenStore opens the credential store described by cfg.
func OpenStore(cfg config.StoreConfig) (credentials.Store, error) {
	switch cfg.Type {
	case config.StoreFile, "":
		return credentials.NewFileStore(cfg.Dir)
	case config.StoreBolt:
		dir := cfg.Dir
		if dir == "" {
			var err error
			dir, err = credentials.DefaultDir()
			if err != nil {
				return nil, err
			}
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		return credentials.NewBoltStore(filepath.Join(dir, boltFileName))
	case config.StoreMemory:
		return credentials.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", config.ErrInvalidConfig, cfg.Type)
	}
}

// Close releases the credential store.
func (a *App) Close() error {
	return a.Store.Close()
}

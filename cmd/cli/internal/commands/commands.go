package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/eddits-console/internal/app"
	"github.com/wolfeidau/eddits-console/internal/config"
	"github.com/wolfeidau/eddits-console/internal/logger"
	"github.com/wolfeidau/eddits-console/internal/notify"
	"github.com/wolfeidau/eddits-console/internal/telemetry"
)

const serviceName = "eddits-cli"

// Notification sinks.
const (
	NotifyConsole = "console"
	NotifyLog     = "log"
)

// ErrNotLoggedIn is returned by commands that need a session when there is none.
var ErrNotLoggedIn = errors.New("not logged in, run `eddits-cli login` first")

type Globals struct {
	Debug   bool
	Version string

	ConfigPath string
	APIURL     string
	StoreType  string
	StoreDir   string
	Timeout    time.Duration
	Tracing    bool

	// Notify selects where user facing messages go: NotifyConsole (default)
	// or NotifyLog for structured log events.
	Notify string

	// In, Out and ErrOut default to the process stdio.
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	reported atomic.Bool
}

// Reported is true once a failure has been shown to the user through the
// notifier, so the caller need not print the returned error again.
func (g *Globals) Reported() bool {
	return g.reported.Load()
}

// reportingNotifier remembers that an error reached the user.
type reportingNotifier struct {
	notify.Notifier
	reported *atomic.Bool
}

func (n *reportingNotifier) Error(message string) {
	n.reported.Store(true)
	n.Notifier.Error(message)
}

func (g *Globals) notifier() notify.Notifier {
	var sink notify.Notifier = notify.NewConsole(g.stdout(), g.stderr())
	if g.Notify == NotifyLog {
		sink = notify.NewLog(log.Logger)
	}
	return &reportingNotifier{Notifier: sink, reported: &g.reported}
}

func (g *Globals) stdin() io.Reader {
	if g.In == nil {
		return os.Stdin
	}
	return g.In
}

func (g *Globals) stdout() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) stderr() io.Writer {
	if g.ErrOut == nil {
		return os.Stderr
	}
	return g.ErrOut
}

// loadConfig reads the config file and environment, then applies flags.
func (g *Globals) loadConfig() (*config.Config, error) {
	path := g.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if g.APIURL != "" {
		cfg.APIURL = g.APIURL
	}
	if g.StoreType != "" {
		cfg.Store.Type = g.StoreType
	}
	if g.StoreDir != "" {
		cfg.Store.Dir = g.StoreDir
	}
	if g.Timeout > 0 {
		cfg.Timeout = g.Timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// open sets up logging and telemetry and builds the client. The returned
// function must be called when the command is done.
func (g *Globals) open(ctx context.Context) (*app.App, func(), error) {
	log.Logger = logger.Setup(g.Debug)

	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	shutdown := telemetry.ShutdownFunc(func(context.Context) error { return nil })
	if g.Tracing {
		shutdown, err = telemetry.InitTelemetry(ctx, serviceName, g.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(context.Context) error { return nil }
		}
	}

	a, err := app.New(cfg,
		app.WithNotifier(g.notifier()),
		app.WithSessionExpiredHandler(func() {
			fmt.Fprintln(g.stderr(), "Run `eddits-cli login` to sign in again.")
		}),
	)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close credential store")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}

	return a, cleanup, nil
}

// requireSession fails fast when there is nothing to authenticate with.
func requireSession(a *app.App) error {
	s := a.Session.State()
	if s.AccessToken == "" && s.RefreshToken == "" {
		return ErrNotLoggedIn
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeExpiry(exp time.Time) string {
	if exp.IsZero() {
		return "unknown"
	}

	remaining := time.Until(exp).Round(time.Second)
	if remaining <= 0 {
		return fmt.Sprintf("expired %s", exp.Local().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (in %s)", exp.Local().Format(time.RFC3339), remaining)
}

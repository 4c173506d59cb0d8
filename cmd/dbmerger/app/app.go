// Package app provides the application context and dependency management
// for the dbmerger CLI. It centralizes configuration, logging and the
// lifecycle of the project store and library client.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/dbmerger"
	"github.com/agentstation/dbmerger/internal/cmd/output"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/merger"
	"github.com/agentstation/dbmerger/pkg/store"
)

// App represents the dbmerger application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Store and client (lazy-initialized, singleton)
	mu     sync.RWMutex
	store  store.Store
	client dbmerger.Client
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the default locations and can be
// replaced with functional options.
func New(version, commit, date string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	// Load configuration
	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	// Initialize logger
	logger := NewLogger(config)
	app.logger = &logger

	// Apply any custom options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the output format, detecting one from the terminal
// when none is configured.
func (a *App) OutputFormat() output.Format {
	return output.DetectFormat(a.config.Format)
}

// Client returns the dbmerger client, opening the project store lazily.
// This is thread-safe and ensures only one instance is created.
func (a *App) Client() (dbmerger.Client, error) {
	a.mu.RLock()
	if a.client != nil {
		c := a.client
		a.mu.RUnlock()
		return c, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.client != nil {
		return a.client, nil
	}

	if a.store == nil {
		s, err := a.openStore()
		if err != nil {
			return nil, err
		}
		a.store = s
	}

	opts, err := a.buildClientOptions()
	if err != nil {
		return nil, err
	}
	c, err := dbmerger.New(a.store, opts...)
	if err != nil {
		return nil, errors.WrapResource("create", "client", "", err)
	}

	a.client = c
	return c, nil
}

// openStore opens the configured project store.
func (a *App) openStore() (store.Store, error) {
	kind, err := store.ParseKind(a.config.Store)
	if err != nil {
		return nil, err
	}
	if kind != store.KindMemory && a.config.Project == "" {
		return nil, errors.NewConfigError("project", "no project configured (use --project or DBMERGER project key)", nil)
	}

	s, err := store.Open(kind, a.config.Project)
	if err != nil {
		return nil, errors.WrapResource("open", "store", a.config.Project, err)
	}
	a.logger.Debug().
		Str("store", string(kind)).
		Str("project", a.config.Project).
		Msg("Opened project store")
	return s, nil
}

// buildClientOptions converts the configuration into client options.
func (a *App) buildClientOptions() ([]dbmerger.Option, error) {
	var opts []dbmerger.Option

	if a.config.SourceField != "" {
		opts = append(opts, dbmerger.WithSourceField(a.config.SourceField))
	}
	if a.config.MissingLabel != "" {
		opts = append(opts, dbmerger.WithMissingLabel(a.config.MissingLabel))
	}
	if a.config.ValidatedFlag != "" {
		opts = append(opts, dbmerger.WithValidatedFlag(a.config.ValidatedFlag))
	}
	if a.config.Separator != "" {
		opts = append(opts, dbmerger.WithSeparator(a.config.Separator))
	}
	if a.config.Scope != "" {
		scope, err := merger.ParseScope(a.config.Scope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dbmerger.WithScope(scope))
	}

	set, err := a.config.ResolveMappings()
	if err != nil {
		return nil, err
	}
	if set != nil {
		opts = append(opts, dbmerger.WithMappings(set))
	}

	kind, _ := store.ParseKind(a.config.Store)
	if kind != store.KindMemory {
		if path := a.config.ProvenancePath(); path != "" {
			opts = append(opts, dbmerger.WithProvenanceFile(path))
		}
	}

	return opts, nil
}

// Shutdown releases the project store.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- a.store.Close()
	}()

	select {
	case err := <-done:
		a.store = nil
		a.client = nil
		if err != nil {
			return errors.WrapResource("close", "store", a.config.Project, err)
		}
		a.logger.Debug().Msg("Project store closed")
		return nil
	case <-ctx.Done():
		return errors.NewCanceledError("shutdown", ctx.Err())
	}
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		logger := NewLogger(config)
		a.logger = &logger
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithStore sets the project store instead of opening one from configuration.
func WithStore(s store.Store) Option {
	return func(a *App) error {
		a.store = s
		return nil
	}
}

// WithClient sets a custom client instance.
func WithClient(c dbmerger.Client) Option {
	return func(a *App) error {
		a.client = c
		return nil
	}
}

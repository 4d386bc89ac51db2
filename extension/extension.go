// Package extension provides the Forge extension adapter for Tally.
//
// It implements the forge.Extension interface to integrate Tally
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/tally"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/auth"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/mongo"
	"github.com/xraph/tally/store/postgres"
	"github.com/xraph/tally/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Invoicing, payments and employee rewards"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tally as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *tally.Tally
	handler   *api.Handler
	store     store.Store
	groveDB   *grove.DB
	tallyOpts []tally.Option
}

// New creates a new Tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Tally instance.
// This is nil until Register is called.
func (e *Extension) Engine() *tally.Tally { return e.engine }

// Handler returns the REST API mounted under the configured base path, or
// nil when routes are disabled.
func (e *Extension) Handler() http.Handler {
	if e.handler == nil {
		return nil
	}
	r := chi.NewRouter()
	r.Mount(e.config.BasePath, e.handler.Router())
	return r
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the tally engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = tally.New(e.store, e.buildTallyOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*tally.Tally, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	if e.config.JWTSecret == "" {
		e.Logger().Warn("tally: no jwt_secret configured, routes disabled")
		return nil
	}

	am, err := auth.NewManager(e.config.JWTSecret)
	if err != nil {
		return err
	}
	e.handler = api.NewHandler(e.engine, am, api.WithLogger(e.engine.Logger()))

	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tally: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore picks the backend for the configured grove.DB.
func (e *Extension) buildStore() (store.Store, error) {
	if e.groveDB == nil {
		return memory.New(), nil
	}
	switch e.config.StoreDriver {
	case "postgres", "pg":
		return postgres.New(e.groveDB), nil
	case "sqlite":
		return sqlite.New(e.groveDB), nil
	case "mongo", "mongodb":
		return mongo.New(e.groveDB), nil
	default:
		return nil, fmt.Errorf("tally: unknown store driver %q", e.config.StoreDriver)
	}
}

// buildTallyOpts constructs tally.Option values from the resolved config.
func (e *Extension) buildTallyOpts() []tally.Option {
	opts := make([]tally.Option, 0, len(e.tallyOpts)+5)

	opts = append(opts,
		tally.WithOverdueSweep(e.config.OverdueSweep),
		tally.WithDailyScoreLimit(e.config.DailyScoreLimit),
		tally.WithDefaultDueDays(e.config.DueDays),
		tally.WithCurrency(e.config.Currency),
		tally.WithAutoMigrate(!e.config.DisableMigrate),
	)

	// Pass-through options win over config.
	opts = append(opts, e.tallyOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("overdue_sweep", e.config.OverdueSweep),
		forge.F("daily_score_limit", e.config.DailyScoreLimit),
		forge.F("due_days", e.config.DueDays),
		forge.F("currency", e.config.Currency),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.tally", "tally"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tally: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tally: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.OverdueSweep == "" {
		cfg.OverdueSweep = defaults.OverdueSweep
	}
	if cfg.DailyScoreLimit == 0 {
		cfg.DailyScoreLimit = defaults.DailyScoreLimit
	}
	if cfg.DueDays == 0 {
		cfg.DueDays = defaults.DueDays
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and bool
// flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.JWTSecret == "" {
		yamlConfig.JWTSecret = programmaticConfig.JWTSecret
	}
	if yamlConfig.OverdueSweep == "" {
		yamlConfig.OverdueSweep = programmaticConfig.OverdueSweep
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}
	if yamlConfig.DailyScoreLimit == 0 {
		yamlConfig.DailyScoreLimit = programmaticConfig.DailyScoreLimit
	}
	if yamlConfig.DueDays == 0 {
		yamlConfig.DueDays = programmaticConfig.DueDays
	}

	return mergeWithDefaults(yamlConfig)
}

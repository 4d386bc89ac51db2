// Package config loads the standalone server configuration from a YAML
// file, with TALLY_* environment variables taking precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
)

// Config is the server configuration.
type Config struct {
	HTTP    HTTPConfig   `yaml:"http"`
	Auth    AuthConfig   `yaml:"auth"`
	Store   StoreConfig  `yaml:"store"`
	Engine  EngineConfig `yaml:"tally"`
	Log     LogConfig    `yaml:"log"`
	Members []MemberSeed `yaml:"members"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
}

// AuthConfig configures bearer tokens.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// StoreConfig selects the backend. Only "memory" can be opened by the
// standalone server; database backends are wired through the Forge
// extension, which resolves a grove.DB from the container.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// EngineConfig carries the tally.Option values.
type EngineConfig struct {
	OverdueSweep    string `yaml:"overdue_sweep"`
	DailyScoreLimit int64  `yaml:"daily_score_limit"`
	DueDays         int    `yaml:"due_days"`
	Currency        string `yaml:"currency"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MemberSeed is a member provisioned at startup. A fixed ID keeps issued
// tokens valid across restarts of the memory store.
type MemberSeed struct {
	ID       string      `yaml:"id"`
	TenantID string      `yaml:"tenant_id"`
	Name     string      `yaml:"name"`
	Email    string      `yaml:"email"`
	Role     member.Role `yaml:"role"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Metrics:         true,
		},
		Auth: AuthConfig{
			Issuer:   "tally",
			TokenTTL: 12 * time.Hour,
		},
		Store: StoreConfig{Driver: "memory"},
		Engine: EngineConfig{
			OverdueSweep:    "0 8 * * *",
			DailyScoreLimit: tally.DefaultDailyScoreLimit,
			DueDays:         tally.DefaultDueDays,
			Currency:        "eur",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from TALLY_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("TALLY_HTTP_ADDR", &c.HTTP.Addr)
	str("TALLY_JWT_SECRET", &c.Auth.JWTSecret)
	str("TALLY_JWT_ISSUER", &c.Auth.Issuer)
	str("TALLY_STORE_DRIVER", &c.Store.Driver)
	str("TALLY_OVERDUE_SWEEP", &c.Engine.OverdueSweep)
	str("TALLY_CURRENCY", &c.Engine.Currency)
	str("TALLY_LOG_LEVEL", &c.Log.Level)
	str("TALLY_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("TALLY_DAILY_SCORE_LIMIT"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: TALLY_DAILY_SCORE_LIMIT: %w", err)
		}
		c.Engine.DailyScoreLimit = n
	}
	if v, ok := lookup("TALLY_DUE_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TALLY_DUE_DAYS: %w", err)
		}
		c.Engine.DueDays = n
	}
	if v, ok := lookup("TALLY_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TALLY_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = d
	}
	return nil
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.Store.Driver != "memory" {
		return fmt.Errorf("config: store driver %q cannot be opened standalone; use the forge extension", c.Store.Driver)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("config: log format %q must be json or text", c.Log.Format)
	}
	for i, m := range c.Members {
		if m.TenantID == "" || m.Name == "" {
			return fmt.Errorf("config: members[%d]: tenant_id and name are required", i)
		}
		if m.ID != "" {
			if _, err := id.ParseMemberID(m.ID); err != nil {
				return fmt.Errorf("config: members[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// EngineOptions converts the engine section into tally options.
func (c *Config) EngineOptions() []tally.Option {
	return []tally.Option{
		tally.WithCurrency(c.Engine.Currency),
		tally.WithDefaultDueDays(c.Engine.DueDays),
		tally.WithDailyScoreLimit(c.Engine.DailyScoreLimit),
		tally.WithOverdueSweep(c.Engine.OverdueSweep),
	}
}

// Logger builds the configured slog logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SeedMembers imports the configured members into t.
func (c *Config) SeedMembers(ctx context.Context, t *tally.Tally) error {
	for i, seed := range c.Members {
		m := &member.Member{
			TenantID: seed.TenantID,
			Name:     seed.Name,
			Email:    seed.Email,
			Role:     seed.Role,
		}
		if seed.ID != "" {
			m.ID = id.MustParse(seed.ID)
		}
		if err := t.ImportMember(ctx, m); err != nil {
			return fmt.Errorf("config: seed members[%d]: %w", i, err)
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return level, nil
}

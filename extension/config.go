package extension

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for tally routes (default: "/tally").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// JWTSecret signs and verifies bearer tokens. Routes are only provided
	// when it is set.
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// OverdueSweep is the cron spec of the overdue invoice sweep
	// (default: "0 8 * * *").
	OverdueSweep string `json:"overdue_sweep" mapstructure:"overdue_sweep" yaml:"overdue_sweep"`

	// DailyScoreLimit caps the points one user can receive per day
	// (default: 2000).
	DailyScoreLimit int64 `json:"daily_score_limit" mapstructure:"daily_score_limit" yaml:"daily_score_limit"`

	// DueDays is the payment term used when an invoice has no due date
	// (default: 30).
	DueDays int `json:"due_days" mapstructure:"due_days" yaml:"due_days"`

	// Currency is the ISO 4217 code invoices are issued in (default: "eur").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// StoreDriver selects the backend built over the grove.DB passed with
	// WithGroveDB: "postgres", "sqlite" or "mongo". Without a grove.DB the
	// memory store is used.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:        "/tally",
		OverdueSweep:    "0 8 * * *",
		DailyScoreLimit: 2000,
		DueDays:         30,
		Currency:        "eur",
	}
}

package tally

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// Defaults applied by New.
const (
	DefaultDueDays         = 30
	DefaultDailyScoreLimit = 2000
	DefaultSweepBatch      = 200
	DefaultSweepTimeout    = 5 * time.Minute
)

// Tally is the invoicing and rewards engine. Every operation reads the
// caller's tenant and role from the context (see WithScope).
type Tally struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	// Configuration
	currency        string
	dueDays         int
	dailyScoreLimit int64
	sweepSpec       string
	sweepBatch      int
	sweepTimeout    time.Duration
	autoMigrate     bool

	// Background workers
	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// New creates a Tally over s.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		currency:        types.DefaultCurrency,
		dueDays:         DefaultDueDays,
		dailyScoreLimit: DefaultDailyScoreLimit,
		sweepBatch:      DefaultSweepBatch,
		sweepTimeout:    DefaultSweepTimeout,
		autoMigrate:     true,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		if err := t.plugins.Register(p); err != nil {
			t.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tally) {
		t.now = func() time.Time { return now().UTC() }
	}
}

// WithCurrency sets the currency every invoice is issued in.
func WithCurrency(currency string) Option {
	return func(t *Tally) {
		t.currency = types.Zero(currency).Currency
	}
}

// WithDefaultDueDays sets how far after the issue date an invoice falls due
// when no due date is given.
func WithDefaultDueDays(days int) Option {
	return func(t *Tally) {
		if days > 0 {
			t.dueDays = days
		}
	}
}

// WithDailyScoreLimit caps the points one user can receive per day.
// Zero or less disables the cap.
func WithDailyScoreLimit(points int64) Option {
	return func(t *Tally) {
		t.dailyScoreLimit = points
	}
}

// WithOverdueSweep schedules SweepOverdue on a standard five-field cron
// spec, e.g. "0 8 * * *". An empty spec disables the sweep.
func WithOverdueSweep(spec string) Option {
	return func(t *Tally) {
		t.sweepSpec = spec
	}
}

// WithSweepBatch sets how many overdue invoices one sweep handles.
func WithSweepBatch(n int) Option {
	return func(t *Tally) {
		if n > 0 {
			t.sweepBatch = n
		}
	}
}

// WithAutoMigrate controls whether Start migrates the store. Enabled by
// default.
func WithAutoMigrate(enabled bool) Option {
	return func(t *Tally) {
		t.autoMigrate = enabled
	}
}

// Store returns the underlying store.
func (t *Tally) Store() store.Store { return t.store }

// Plugins returns the plugin registry.
func (t *Tally) Plugins() *plugin.Registry { return t.plugins }

// Logger returns the engine logger.
func (t *Tally) Logger() *slog.Logger { return t.logger }

// Start migrates the store, initializes plugins and schedules the overdue
// sweep.
func (t *Tally) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	if t.autoMigrate {
		if err := t.store.Migrate(ctx); err != nil {
			return fmt.Errorf("tally: migrate: %w", err)
		}
	}

	t.plugins.EmitInit(ctx, t)

	if t.sweepSpec != "" {
		c := cron.New(cron.WithLocation(time.UTC))
		if _, err := c.AddFunc(t.sweepSpec, t.runSweep); err != nil {
			return fmt.Errorf("tally: overdue sweep schedule %q: %w", t.sweepSpec, err)
		}
		c.Start()
		t.cron = c
	}
	t.started = true

	t.logger.Info("tally started",
		"currency", t.currency,
		"due_days", t.dueDays,
		"daily_score_limit", t.dailyScoreLimit,
		"overdue_sweep", t.sweepSpec,
		"plugins", t.plugins.Count(),
	)

	return nil
}

// Stop waits for a running sweep, notifies plugins and closes the store.
func (t *Tally) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron != nil {
		<-t.cron.Stop().Done()
		t.cron = nil
	}

	t.plugins.EmitShutdown(context.Background())
	t.started = false

	return t.store.Close()
}

func (t *Tally) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), t.sweepTimeout)
	defer cancel()

	started := t.now()
	n, err := t.SweepOverdue(ctx)
	if err != nil {
		t.logger.Error("overdue sweep failed", "flagged", n, "error", err)
		return
	}
	t.logger.Info("overdue sweep finished", "flagged", n, "elapsed", t.now().Sub(started))
}

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry holds registered plugins with a per-hook cache, so dispatch
// never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                   []OnInit
	onShutdown               []OnShutdown
	onInvoiceCreated         []OnInvoiceCreated
	onInvoiceDeleted         []OnInvoiceDeleted
	onInvoicePaid            []OnInvoicePaid
	onInvoiceOverdue         []OnInvoiceOverdue
	onPaymentRecorded        []OnPaymentRecorded
	onPaymentUpdated         []OnPaymentUpdated
	onPaymentDeleted         []OnPaymentDeleted
	onScoreRecorded          []OnScoreRecorded
	onRedemptionRequested    []OnRedemptionRequested
	onRedemptionTransitioned []OnRedemptionTransitioned
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin and caches the hooks it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
		hooks = append(hooks, "OnInvoiceCreated")
	}
	if v, ok := p.(OnInvoiceDeleted); ok {
		r.onInvoiceDeleted = append(r.onInvoiceDeleted, v)
		hooks = append(hooks, "OnInvoiceDeleted")
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
		hooks = append(hooks, "OnInvoicePaid")
	}
	if v, ok := p.(OnInvoiceOverdue); ok {
		r.onInvoiceOverdue = append(r.onInvoiceOverdue, v)
		hooks = append(hooks, "OnInvoiceOverdue")
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
		hooks = append(hooks, "OnPaymentRecorded")
	}
	if v, ok := p.(OnPaymentUpdated); ok {
		r.onPaymentUpdated = append(r.onPaymentUpdated, v)
		hooks = append(hooks, "OnPaymentUpdated")
	}
	if v, ok := p.(OnPaymentDeleted); ok {
		r.onPaymentDeleted = append(r.onPaymentDeleted, v)
		hooks = append(hooks, "OnPaymentDeleted")
	}
	if v, ok := p.(OnScoreRecorded); ok {
		r.onScoreRecorded = append(r.onScoreRecorded, v)
		hooks = append(hooks, "OnScoreRecorded")
	}
	if v, ok := p.(OnRedemptionRequested); ok {
		r.onRedemptionRequested = append(r.onRedemptionRequested, v)
		hooks = append(hooks, "OnRedemptionRequested")
	}
	if v, ok := p.(OnRedemptionTransitioned); ok {
		r.onRedemptionTransitioned = append(r.onRedemptionTransitioned, v)
		hooks = append(hooks, "OnRedemptionTransitioned")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)
	return nil
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

// emit calls fn for every hook in list. Failures are logged, never returned:
// a plugin cannot fail the operation that triggered it.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	hooks := list()
	r.mu.RUnlock()

	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit notifies OnInit plugins.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown notifies OnShutdown plugins.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitInvoiceCreated notifies OnInvoiceCreated plugins.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceCreated", func() []OnInvoiceCreated { return r.onInvoiceCreated }, func(p OnInvoiceCreated) error {
		return p.OnInvoiceCreated(ctx, inv)
	})
}

// EmitInvoiceDeleted notifies OnInvoiceDeleted plugins.
func (r *Registry) EmitInvoiceDeleted(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceDeleted", func() []OnInvoiceDeleted { return r.onInvoiceDeleted }, func(p OnInvoiceDeleted) error {
		return p.OnInvoiceDeleted(ctx, inv)
	})
}

// EmitInvoicePaid notifies OnInvoicePaid plugins.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoicePaid", func() []OnInvoicePaid { return r.onInvoicePaid }, func(p OnInvoicePaid) error {
		return p.OnInvoicePaid(ctx, inv)
	})
}

// EmitInvoiceOverdue notifies OnInvoiceOverdue plugins.
func (r *Registry) EmitInvoiceOverdue(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceOverdue", func() []OnInvoiceOverdue { return r.onInvoiceOverdue }, func(p OnInvoiceOverdue) error {
		return p.OnInvoiceOverdue(ctx, inv)
	})
}

// EmitPaymentRecorded notifies OnPaymentRecorded plugins.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, pay *payment.Payment, inv *invoice.Invoice) {
	emit(ctx, r, "OnPaymentRecorded", func() []OnPaymentRecorded { return r.onPaymentRecorded }, func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, pay, inv)
	})
}

// EmitPaymentUpdated notifies OnPaymentUpdated plugins.
func (r *Registry) EmitPaymentUpdated(ctx context.Context, pay *payment.Payment, inv *invoice.Invoice) {
	emit(ctx, r, "OnPaymentUpdated", func() []OnPaymentUpdated { return r.onPaymentUpdated }, func(p OnPaymentUpdated) error {
		return p.OnPaymentUpdated(ctx, pay, inv)
	})
}

// EmitPaymentDeleted notifies OnPaymentDeleted plugins.
func (r *Registry) EmitPaymentDeleted(ctx context.Context, pay *payment.Payment, inv *invoice.Invoice) {
	emit(ctx, r, "OnPaymentDeleted", func() []OnPaymentDeleted { return r.onPaymentDeleted }, func(p OnPaymentDeleted) error {
		return p.OnPaymentDeleted(ctx, pay, inv)
	})
}

// EmitScoreRecorded notifies OnScoreRecorded plugins.
func (r *Registry) EmitScoreRecorded(ctx context.Context, s *score.Score) {
	emit(ctx, r, "OnScoreRecorded", func() []OnScoreRecorded { return r.onScoreRecorded }, func(p OnScoreRecorded) error {
		return p.OnScoreRecorded(ctx, s)
	})
}

// EmitRedemptionRequested notifies OnRedemptionRequested plugins.
func (r *Registry) EmitRedemptionRequested(ctx context.Context, red *reward.Redemption) {
	emit(ctx, r, "OnRedemptionRequested", func() []OnRedemptionRequested { return r.onRedemptionRequested }, func(p OnRedemptionRequested) error {
		return p.OnRedemptionRequested(ctx, red)
	})
}

// EmitRedemptionTransitioned notifies OnRedemptionTransitioned plugins.
func (r *Registry) EmitRedemptionTransitioned(ctx context.Context, red *reward.Redemption, from reward.Status) {
	emit(ctx, r, "OnRedemptionTransitioned", func() []OnRedemptionTransitioned { return r.onRedemptionTransitioned }, func(p OnRedemptionTransitioned) error {
		return p.OnRedemptionTransitioned(ctx, red, from)
	})
}

// callWithTimeout runs fn, giving up after the registry timeout or when ctx
// is done. A timed-out hook keeps running in its goroutine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

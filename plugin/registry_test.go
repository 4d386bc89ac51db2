package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/reward"
)

type recorder struct {
	name string
	err  error

	mu    sync.Mutex
	calls []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnInvoicePaid(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "paid:"+inv.Number)
	return r.err
}

func (r *recorder) OnRedemptionTransitioned(_ context.Context, red *reward.Redemption, from reward.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(from)+"->"+string(red.Status))
	return r.err
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type nameOnly struct{ name string }

func (n nameOnly) Name() string { return n.name }

type slowPlugin struct{ delay time.Duration }

func (slowPlugin) Name() string { return "slow" }

func (s slowPlugin) OnInvoicePaid(context.Context, *invoice.Invoice) error {
	time.Sleep(s.delay)
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(nameOnly{"a"}))
	require.NoError(t, r.Register(nameOnly{"b"}))

	err := r.Register(nameOnly{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, "b", r.Get("b").Name())
	assert.Nil(t, r.Get("missing"))

	names := make([]string, 0, 2)
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestEmitDispatchesOnlyImplementedHooks(t *testing.T) {
	r := quietRegistry()
	rec := &recorder{name: "rec"}
	require.NoError(t, r.Register(rec))
	require.NoError(t, r.Register(nameOnly{"bystander"}))

	ctx := context.Background()
	r.EmitInvoicePaid(ctx, &invoice.Invoice{Number: "1/2025"})
	r.EmitInvoiceCreated(ctx, &invoice.Invoice{Number: "2/2025"})
	r.EmitRedemptionTransitioned(ctx, &reward.Redemption{Status: reward.StatusApproved}, reward.StatusPending)

	assert.Equal(t, []string{"paid:1/2025", "pending->approved"}, rec.Calls())
}

func TestFailingHookDoesNotStopOthers(t *testing.T) {
	r := quietRegistry()
	bad := &recorder{name: "bad", err: errors.New("boom")}
	good := &recorder{name: "good"}
	require.NoError(t, r.Register(bad))
	require.NoError(t, r.Register(good))

	r.EmitInvoicePaid(context.Background(), &invoice.Invoice{Number: "3/2025"})

	assert.Equal(t, []string{"paid:3/2025"}, bad.Calls())
	assert.Equal(t, []string{"paid:3/2025"}, good.Calls())
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	after := &recorder{name: "after"}
	require.NoError(t, r.Register(slowPlugin{delay: time.Second}))
	require.NoError(t, r.Register(after))

	start := time.Now()
	r.EmitInvoicePaid(context.Background(), &invoice.Invoice{Number: "4/2025"})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"paid:4/2025"}, after.Calls())
}

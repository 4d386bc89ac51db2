package tally_test

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

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// slowStore widens the window between reading a payment and writing it
// back, so concurrent edits overlap.
type slowStore struct {
	*memory.Store
}

func (s slowStore) GetPayment(ctx context.Context, tenantID string, payID id.PaymentID) (*payment.Payment, error) {
	p, err := s.Store.GetPayment(ctx, tenantID, payID)
	time.Sleep(5 * time.Millisecond)
	return p, err
}

var errDeleteFailed = errors.New("delete failed")

type failingDeleteStore struct {
	*memory.Store
}

func (failingDeleteStore) DeletePayment(context.Context, string, id.PaymentID, int64) error {
	return errDeleteFailed
}

// newEngineOver starts an engine on wrap(mem) and returns an admin scope.
func newEngineOver(t *testing.T, wrap func(*memory.Store) store.Store) (*tally.Tally, *memory.Store, context.Context) {
	t.Helper()

	mem := memory.New()
	engine := tally.New(wrap(mem),
		tally.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop() })

	admin := &member.Member{TenantID: "acme", Name: "Ada Admin", Role: member.RoleAdmin}
	require.NoError(t, engine.ImportMember(context.Background(), admin))
	ctx := tally.WithScope(context.Background(), tally.Scope{
		TenantID: "acme",
		UserID:   admin.ID.String(),
		Role:     member.RoleAdmin,
	})
	return engine, mem, ctx
}

func seedPayment(t *testing.T, engine *tally.Tally, ctx context.Context, total, paid int64) (*invoice.Invoice, *payment.Payment) {
	t.Helper()

	inv := newInvoice(total)
	require.NoError(t, engine.CreateInvoice(ctx, inv))
	_, err := engine.RecordPayment(ctx, &payment.Payment{
		InvoiceID: inv.ID,
		Amount:    types.EUR(paid),
		Method:    payment.MethodBankTransfer,
	})
	require.NoError(t, err)

	pays, err := engine.ListPayments(ctx, payment.ListOpts{InvoiceID: inv.ID})
	require.NoError(t, err)
	require.Len(t, pays, 1)
	return inv, pays[0]
}

func assertPaidMatchesPayments(t *testing.T, engine *tally.Tally, mem *memory.Store, ctx context.Context, invID id.InvoiceID) {
	t.Helper()

	got, err := engine.GetInvoice(ctx, invID)
	require.NoError(t, err)
	sum, err := mem.SumPayments(context.Background(), invID)
	require.NoError(t, err)
	assert.Equal(t, sum, got.AmountPaid.Amount, "amount_paid must equal the sum of payments")
}

func TestConcurrentPaymentEditsStayReconciled(t *testing.T) {
	engine, mem, ctx := newEngineOver(t, func(m *memory.Store) store.Store { return slowStore{m} })
	inv, p := seedPayment(t, engine, ctx, 10000, 1000)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	amount := int64(2000)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := engine.UpdatePayment(ctx, p.ID, tally.PaymentUpdate{Amount: &amount})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, tally.ErrPaymentChanged)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	assertPaidMatchesPayments(t, engine, mem, ctx, inv.ID)
	got, err := engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.AmountPaid.Amount)
	assert.Equal(t, invoice.StatusPartiallyPaid, got.PaymentStatus)
}

func TestConcurrentPaymentDeletesStayReconciled(t *testing.T) {
	engine, mem, ctx := newEngineOver(t, func(m *memory.Store) store.Store { return slowStore{m} })
	inv, p := seedPayment(t, engine, ctx, 10000, 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.DeletePayment(ctx, p.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, tally.ErrPaymentChanged) || tally.IsNotFound(err), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	assertPaidMatchesPayments(t, engine, mem, ctx, inv.ID)
	got, err := engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, got.PaymentStatus)
}

func TestFailedPaymentDeleteRestoresInvoice(t *testing.T) {
	engine, mem, ctx := newEngineOver(t, func(m *memory.Store) store.Store { return failingDeleteStore{m} })
	inv, p := seedPayment(t, engine, ctx, 10000, 4000)

	_, err := engine.DeletePayment(ctx, p.ID)
	require.ErrorIs(t, err, errDeleteFailed)

	got, err := engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), got.AmountPaid.Amount)
	assert.Equal(t, invoice.StatusPartiallyPaid, got.PaymentStatus)
	assertPaidMatchesPayments(t, engine, mem, ctx, inv.ID)
}

package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/types"
)

type sink struct{ events []*audithook.AuditEvent }

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.events = append(s.events, e)
	return nil
}

func newInvoice() *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:       id.NewInvoiceID(),
		TenantID: "acme",
		Number:   "1/2025",
		Currency: "eur",
		Total:    types.EUR(12200),
		Customer: invoice.Customer{Name: "Rossi SRL"},
	}
	inv.SetPaid(0)
	return inv
}

func TestPaymentEventCarriesActorAndInvoice(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	inv := newInvoice()
	inv.SetPaid(5000)
	p := &payment.Payment{
		ID:        id.NewPaymentID(),
		TenantID:  "acme",
		InvoiceID: inv.ID,
		Amount:    types.EUR(5000),
		Method:    payment.MethodBankTransfer,
	}

	ctx := tally.WithScope(context.Background(), tally.Scope{TenantID: "acme", UserID: "mbr_1", Role: member.RoleAdmin})
	require.NoError(t, ext.OnPaymentRecorded(ctx, p, inv))

	require.Len(t, s.events, 1)
	evt := s.events[0]
	assert.Equal(t, audithook.ActionPaymentRecorded, evt.Action)
	assert.Equal(t, audithook.ResourcePayment, evt.Resource)
	assert.Equal(t, p.ID.String(), evt.ResourceID)
	assert.Equal(t, "acme", evt.TenantID)
	assert.Equal(t, "mbr_1", evt.ActorID)
	assert.Equal(t, inv.ID.String(), evt.Metadata["invoice_id"])
	assert.Equal(t, int64(5000), evt.Metadata["amount"])
	assert.Equal(t, string(invoice.StatusPartiallyPaid), evt.Metadata["invoice_status"])
}

func TestOverdueSweepHasNoActor(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	require.NoError(t, ext.OnInvoiceOverdue(context.Background(), newInvoice()))

	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.ActionInvoiceOverdue, s.events[0].Action)
	assert.Equal(t, audithook.SeverityWarning, s.events[0].Severity)
	assert.Empty(t, s.events[0].ActorID)
}

func TestRedemptionTransitionActions(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)
	ctx := context.Background()

	red := &reward.Redemption{ID: id.NewRedemptionID(), TenantID: "acme", RewardID: id.NewRewardID(), UserID: "u1"}

	red.Status = reward.StatusApproved
	require.NoError(t, ext.OnRedemptionTransitioned(ctx, red, reward.StatusPending))
	red.Status = reward.StatusRejected
	require.NoError(t, ext.OnRedemptionTransitioned(ctx, red, reward.StatusPending))
	red.Status = reward.StatusPending
	require.NoError(t, ext.OnRedemptionTransitioned(ctx, red, reward.StatusPending))

	require.Len(t, s.events, 2)
	assert.Equal(t, audithook.ActionRedemptionApproved, s.events[0].Action)
	assert.Equal(t, audithook.ActionRedemptionRejected, s.events[1].Action)
	assert.Equal(t, audithook.SeverityWarning, s.events[1].Severity)
	assert.Equal(t, "pending", s.events[1].Metadata["from"])
}

func TestActionFilters(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s, audithook.WithEnabledActions(audithook.ActionInvoicePaid))
	ctx := context.Background()

	require.NoError(t, ext.OnInvoiceCreated(ctx, newInvoice()))
	require.NoError(t, ext.OnInvoicePaid(ctx, newInvoice()))
	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.ActionInvoicePaid, s.events[0].Action)

	s.events = nil
	ext = audithook.New(s, audithook.WithDisabledActions(audithook.ActionInvoiceCreated))
	require.NoError(t, ext.OnInvoiceCreated(ctx, newInvoice()))
	require.NoError(t, ext.OnInvoiceDeleted(ctx, newInvoice()))
	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.ActionInvoiceDeleted, s.events[0].Action)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	assert.NoError(t, ext.OnInvoiceCreated(context.Background(), newInvoice()))
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := audithook.LogRecorder(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, rec.Record(context.Background(), &audithook.AuditEvent{
		Action:   audithook.ActionRedemptionRejected,
		Resource: audithook.ResourceRedemption,
		Severity: audithook.SeverityWarning,
		TenantID: "acme",
	}))
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"action":"redemption.rejected"`)
}

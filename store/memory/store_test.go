package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/types"
)

func newInvoice(tenant string, seq int, total int64) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:       id.NewInvoiceID(),
		TenantID: tenant,
		Year:     2025,
		Sequence: seq,
		Number:   invoice.FormatNumber(seq, 2025),
		Currency: "eur",
		Total:    types.EUR(total),
	}
	inv.SetPaid(0)
	return inv
}

func TestInvoiceNumberUniquePerTenant(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateInvoice(ctx, newInvoice("acme", 1, 100)))
	require.NoError(t, s.CreateInvoice(ctx, newInvoice("globex", 1, 100)))
	assert.ErrorIs(t, s.CreateInvoice(ctx, newInvoice("acme", 1, 100)), tally.ErrInvoiceNumberTaken)

	last, err := s.LastInvoiceSequence(ctx, "acme", 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, last)
}

func TestAdjustInvoicePaidBounds(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv := newInvoice("acme", 1, 1000)
	require.NoError(t, s.CreateInvoice(ctx, inv))

	got, err := s.AdjustInvoicePaid(ctx, "acme", inv.ID, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.AmountPaid.Amount)
	assert.Equal(t, invoice.StatusPartiallyPaid, got.PaymentStatus)

	_, err = s.AdjustInvoicePaid(ctx, "acme", inv.ID, 401)
	assert.ErrorIs(t, err, tally.ErrOverpayment)
	_, err = s.AdjustInvoicePaid(ctx, "acme", inv.ID, -601)
	assert.ErrorIs(t, err, tally.ErrOverpayment)
	_, err = s.AdjustInvoicePaid(ctx, "globex", inv.ID, 1)
	assert.ErrorIs(t, err, tally.ErrInvoiceNotFound)

	got, err = s.AdjustInvoicePaid(ctx, "acme", inv.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.PaymentStatus)
}

func TestClaimRewardStock(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := &reward.Reward{ID: id.NewRewardID(), TenantID: "acme", Name: "Mug", Quantity: 1, Available: true}
	require.NoError(t, s.CreateReward(ctx, r))

	require.NoError(t, s.ClaimReward(ctx, r.ID))
	assert.ErrorIs(t, s.ClaimReward(ctx, r.ID), tally.ErrRewardExhausted)

	require.NoError(t, s.ReleaseReward(ctx, r.ID))
	require.NoError(t, s.ReleaseReward(ctx, r.ID), "release below zero is a no-op")
	got, err := s.GetReward(ctx, "acme", r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Claimed)
}

func TestRedemptionGuards(t *testing.T) {
	ctx := context.Background()
	s := New()
	rewardID := id.NewRewardID()

	open := &reward.Redemption{ID: id.NewRedemptionID(), TenantID: "acme", RewardID: rewardID, UserID: "u1", Status: reward.StatusPending}
	require.NoError(t, s.CreateRedemption(ctx, open))

	dup := &reward.Redemption{ID: id.NewRedemptionID(), TenantID: "acme", RewardID: rewardID, UserID: "u1", Status: reward.StatusPending}
	assert.ErrorIs(t, s.CreateRedemption(ctx, dup), tally.ErrDuplicateRedemption)

	approved := *open
	approved.Status = reward.StatusApproved
	require.NoError(t, s.TransitionRedemption(ctx, &approved, reward.StatusPending))

	stale := *open
	stale.Status = reward.StatusRejected
	assert.ErrorIs(t, s.TransitionRedemption(ctx, &stale, reward.StatusPending), tally.ErrInvalidTransition)

	delivered := approved
	delivered.Status = reward.StatusDelivered
	require.NoError(t, s.TransitionRedemption(ctx, &delivered, reward.StatusApproved))

	// A closed redemption no longer blocks a new request.
	require.NoError(t, s.CreateRedemption(ctx, dup))

	n, err := s.CountRedemptions(ctx, rewardID, reward.OpenStatuses...)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPaymentWritesGuardAmount(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv := newInvoice("acme", 1, 10000)
	require.NoError(t, s.CreateInvoice(ctx, inv))

	p := &payment.Payment{
		ID:        id.NewPaymentID(),
		TenantID:  "acme",
		InvoiceID: inv.ID,
		Amount:    types.EUR(1000),
		Method:    payment.MethodCash,
	}
	require.NoError(t, s.CreatePayment(ctx, p))

	edit := *p
	edit.Amount = types.EUR(2000)
	assert.ErrorIs(t, s.UpdatePayment(ctx, &edit, 500), tally.ErrPaymentChanged)
	require.NoError(t, s.UpdatePayment(ctx, &edit, 1000))

	// A second writer still holding the old amount loses.
	assert.ErrorIs(t, s.UpdatePayment(ctx, &edit, 1000), tally.ErrPaymentChanged)
	assert.ErrorIs(t, s.DeletePayment(ctx, "acme", p.ID, 1000), tally.ErrPaymentChanged)
	assert.ErrorIs(t, s.DeletePayment(ctx, "globex", p.ID, 2000), tally.ErrPaymentNotFound)

	require.NoError(t, s.DeletePayment(ctx, "acme", p.ID, 2000))
	assert.ErrorIs(t, s.DeletePayment(ctx, "acme", p.ID, 2000), tally.ErrPaymentNotFound)
}

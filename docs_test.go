package tally_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/tally"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// TestDocumentationExamples verifies that the package documentation examples run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for demo, use PostgreSQL in production.
		store := memory.New()

		tl := tally.New(store,
			tally.WithLogger(slog.Default()),
			tally.WithOverdueSweep("0 8 * * *"),
		)

		ctx := context.Background()
		if err := tl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer tl.Stop()

		// Members usually come from the identity provider.
		admin := &member.Member{TenantID: "acme", Name: "Ada", Role: member.RoleAdmin}
		alice := &member.Member{TenantID: "acme", Name: "Alice", Role: member.RoleEmployee}
		for _, m := range []*member.Member{admin, alice} {
			if err := tl.ImportMember(ctx, m); err != nil {
				t.Fatal(err)
			}
		}

		adminCtx := tally.WithScope(ctx, tally.Scope{TenantID: "acme", UserID: admin.ID.String(), Role: member.RoleAdmin})
		aliceCtx := tally.WithScope(ctx, tally.Scope{TenantID: "acme", UserID: alice.ID.String(), Role: member.RoleEmployee})

		// Issue an invoice and settle it in two payments.
		inv := &invoice.Invoice{
			Customer: invoice.Customer{Name: "Rossi Srl"},
			Lines:    []invoice.LineItem{{Description: "Consulting", Quantity: 1, UnitPrice: tally.EUR(10000)}},
		}
		if err := tl.CreateInvoice(adminCtx, inv); err != nil {
			t.Fatal(err)
		}

		for _, cents := range []int64{6000, 4000} {
			var err error
			inv, err = tl.RecordPayment(adminCtx, &payment.Payment{
				InvoiceID: inv.ID,
				Amount:    tally.EUR(cents),
				Method:    payment.MethodBankTransfer,
			})
			if err != nil {
				t.Fatal(err)
			}
		}
		if inv.PaymentStatus != invoice.StatusPaid {
			t.Fatalf("invoice %s is %s, want paid", inv.Number, inv.PaymentStatus)
		}
		log.Printf("Invoice %s settled: %s\n", inv.Number, inv.AmountPaid.String())

		// Award points and redeem a reward.
		if err := tl.RecordScore(adminCtx, &score.Score{UserID: alice.ID.String(), Points: 150, Reason: "tickets closed"}); err != nil {
			t.Fatal(err)
		}

		rw := &reward.Reward{Name: "Gift card", CostLifetime: 100, Quantity: reward.Unlimited, Available: true}
		if err := tl.CreateReward(adminCtx, rw); err != nil {
			t.Fatal(err)
		}

		red, err := tl.Redeem(aliceCtx, rw.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tl.ReviewRedemption(adminCtx, red.ID, reward.StatusApproved, ""); err != nil {
			t.Fatal(err)
		}
		if _, err := tl.ChoosePickup(aliceCtx, red.ID, reward.PickupInPerson, nil); err != nil {
			t.Fatal(err)
		}
		if _, err := tl.MarkDelivered(adminCtx, red.ID); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("eur") // €0.00

		m1 := types.EUR(100)
		m2 := types.EUR(200)
		_ = m1.Add(m2)     // €3.00
		_ = m1.Times(3)    // €3.00
		_ = m1.Percent(22) // €0.22

		if !m1.LessThan(m2) {
			t.Fatal("expected m1 < m2")
		}

		if got := m1.FormatMajor(); got != "1.00" {
			t.Fatalf("FormatMajor = %q", got)
		}
	})
}

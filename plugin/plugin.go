// Package plugin provides the hook system for Tally. A plugin implements
// Plugin plus any of the hook interfaces below, and the Registry discovers
// which ones at registration time.
package plugin

import (
	"context"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the store has been migrated. engine is the
// *tally.Tally that started.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called after an invoice is stored.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceDeleted is called after an invoice is removed.
type OnInvoiceDeleted interface {
	Plugin
	OnInvoiceDeleted(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called when a payment settles an invoice in full.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceOverdue is called once per invoice by the overdue sweep.
type OnInvoiceOverdue interface {
	Plugin
	OnInvoiceOverdue(ctx context.Context, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called after a payment is stored and the invoice
// reconciled.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error
}

// OnPaymentUpdated is called after a payment is changed.
type OnPaymentUpdated interface {
	Plugin
	OnPaymentUpdated(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error
}

// OnPaymentDeleted is called after a payment is removed.
type OnPaymentDeleted interface {
	Plugin
	OnPaymentDeleted(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Score and reward hooks
// ──────────────────────────────────────────────────

// OnScoreRecorded is called after points are awarded.
type OnScoreRecorded interface {
	Plugin
	OnScoreRecorded(ctx context.Context, s *score.Score) error
}

// OnRedemptionRequested is called after a user redeems a reward.
type OnRedemptionRequested interface {
	Plugin
	OnRedemptionRequested(ctx context.Context, r *reward.Redemption) error
}

// OnRedemptionTransitioned is called after a redemption changes status.
type OnRedemptionTransitioned interface {
	Plugin
	OnRedemptionTransitioned(ctx context.Context, r *reward.Redemption, from reward.Status) error
}

// Package observability provides a metrics extension for Tally that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                   = (*MetricsExtension)(nil)
	_ plugin.OnInit                   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated         = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDeleted         = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid            = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceOverdue         = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded        = (*MetricsExtension)(nil)
	_ plugin.OnPaymentUpdated         = (*MetricsExtension)(nil)
	_ plugin.OnPaymentDeleted         = (*MetricsExtension)(nil)
	_ plugin.OnScoreRecorded          = (*MetricsExtension)(nil)
	_ plugin.OnRedemptionRequested    = (*MetricsExtension)(nil)
	_ plugin.OnRedemptionTransitioned = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to track invoicing and reward activity.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated Counter
	InvoiceDeleted Counter
	InvoicePaid    Counter
	InvoiceOverdue Counter
	InvoiceTotal   Histogram

	// Payment metrics
	PaymentRecorded Counter
	PaymentUpdated  Counter
	PaymentDeleted  Counter
	PaymentAmount   Histogram

	// Score metrics
	ScoreRecorded Counter
	ScorePoints   Histogram

	// Redemption metrics
	RedemptionRequested Counter
	RedemptionApproved  Counter
	RedemptionRejected  Counter
	RedemptionPickup    Counter
	RedemptionDelivered Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Invoice metrics
		InvoiceCreated: factory.Counter("tally.invoice.created"),
		InvoiceDeleted: factory.Counter("tally.invoice.deleted"),
		InvoicePaid:    factory.Counter("tally.invoice.paid"),
		InvoiceOverdue: factory.Counter("tally.invoice.overdue"),
		InvoiceTotal:   factory.Histogram("tally.invoice.total_cents"),

		// Payment metrics
		PaymentRecorded: factory.Counter("tally.payment.recorded"),
		PaymentUpdated:  factory.Counter("tally.payment.updated"),
		PaymentDeleted:  factory.Counter("tally.payment.deleted"),
		PaymentAmount:   factory.Histogram("tally.payment.amount_cents"),

		// Score metrics
		ScoreRecorded: factory.Counter("tally.score.recorded"),
		ScorePoints:   factory.Histogram("tally.score.points"),

		// Redemption metrics
		RedemptionRequested: factory.Counter("tally.redemption.requested"),
		RedemptionApproved:  factory.Counter("tally.redemption.approved"),
		RedemptionRejected:  factory.Counter("tally.redemption.rejected"),
		RedemptionPickup:    factory.Counter("tally.redemption.pickup_chosen"),
		RedemptionDelivered: factory.Counter("tally.redemption.delivered"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnInvoiceDeleted implements plugin.OnInvoiceDeleted.
func (m *MetricsExtension) OnInvoiceDeleted(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceDeleted.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceOverdue implements plugin.OnInvoiceOverdue.
func (m *MetricsExtension) OnInvoiceOverdue(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceOverdue.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, p *payment.Payment, _ *invoice.Invoice) error {
	m.PaymentRecorded.Inc()
	m.PaymentAmount.Observe(float64(p.Amount.Amount))
	return nil
}

// OnPaymentUpdated implements plugin.OnPaymentUpdated.
func (m *MetricsExtension) OnPaymentUpdated(_ context.Context, _ *payment.Payment, _ *invoice.Invoice) error {
	m.PaymentUpdated.Inc()
	return nil
}

// OnPaymentDeleted implements plugin.OnPaymentDeleted.
func (m *MetricsExtension) OnPaymentDeleted(_ context.Context, _ *payment.Payment, _ *invoice.Invoice) error {
	m.PaymentDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Reward lifecycle hooks
// ──────────────────────────────────────────────────

// OnScoreRecorded implements plugin.OnScoreRecorded.
func (m *MetricsExtension) OnScoreRecorded(_ context.Context, s *score.Score) error {
	m.ScoreRecorded.Inc()
	m.ScorePoints.Observe(float64(s.Points))
	return nil
}

// OnRedemptionRequested implements plugin.OnRedemptionRequested.
func (m *MetricsExtension) OnRedemptionRequested(_ context.Context, _ *reward.Redemption) error {
	m.RedemptionRequested.Inc()
	return nil
}

// OnRedemptionTransitioned implements plugin.OnRedemptionTransitioned.
func (m *MetricsExtension) OnRedemptionTransitioned(_ context.Context, r *reward.Redemption, _ reward.Status) error {
	switch r.Status {
	case reward.StatusApproved:
		m.RedemptionApproved.Inc()
	case reward.StatusRejected:
		m.RedemptionRejected.Inc()
	case reward.StatusAwaitingPickup:
		m.RedemptionPickup.Inc()
	case reward.StatusDelivered:
		m.RedemptionDelivered.Inc()
	}
	return nil
}

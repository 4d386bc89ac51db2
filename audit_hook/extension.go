// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                   = (*Extension)(nil)
	_ plugin.OnInvoiceCreated         = (*Extension)(nil)
	_ plugin.OnInvoiceDeleted         = (*Extension)(nil)
	_ plugin.OnInvoicePaid            = (*Extension)(nil)
	_ plugin.OnInvoiceOverdue         = (*Extension)(nil)
	_ plugin.OnPaymentRecorded        = (*Extension)(nil)
	_ plugin.OnPaymentUpdated         = (*Extension)(nil)
	_ plugin.OnPaymentDeleted         = (*Extension)(nil)
	_ plugin.OnScoreRecorded          = (*Extension)(nil)
	_ plugin.OnRedemptionRequested    = (*Extension)(nil)
	_ plugin.OnRedemptionTransitioned = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryBilling, nil,
		"number", inv.Number,
		"total", inv.Total.Amount,
		"customer", inv.Customer.Name,
	)
}

// OnInvoiceDeleted implements plugin.OnInvoiceDeleted.
func (e *Extension) OnInvoiceDeleted(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceDeleted, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryBilling, nil,
		"number", inv.Number,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryPayment, nil,
		"number", inv.Number,
		"total", inv.Total.Amount,
	)
}

// OnInvoiceOverdue implements plugin.OnInvoiceOverdue.
func (e *Extension) OnInvoiceOverdue(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceOverdue, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryBilling, nil,
		"number", inv.Number,
		"amount_due", inv.AmountDue.Amount,
		"due_date", inv.DueDate,
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error {
	return e.paymentEvent(ctx, ActionPaymentRecorded, SeverityInfo, p, inv)
}

// OnPaymentUpdated implements plugin.OnPaymentUpdated.
func (e *Extension) OnPaymentUpdated(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error {
	return e.paymentEvent(ctx, ActionPaymentUpdated, SeverityInfo, p, inv)
}

// OnPaymentDeleted implements plugin.OnPaymentDeleted.
func (e *Extension) OnPaymentDeleted(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) error {
	return e.paymentEvent(ctx, ActionPaymentDeleted, SeverityWarning, p, inv)
}

func (e *Extension) paymentEvent(ctx context.Context, action, severity string, p *payment.Payment, inv *invoice.Invoice) error {
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourcePayment, p.ID.String(), p.TenantID, CategoryPayment, nil,
		"invoice_id", inv.ID.String(),
		"amount", p.Amount.Amount,
		"method", string(p.Method),
		"invoice_status", string(inv.PaymentStatus),
		"amount_due", inv.AmountDue.Amount,
	)
}

// ──────────────────────────────────────────────────
// Reward lifecycle hooks
// ──────────────────────────────────────────────────

// OnScoreRecorded implements plugin.OnScoreRecorded.
func (e *Extension) OnScoreRecorded(ctx context.Context, s *score.Score) error {
	return e.record(ctx, ActionScoreRecorded, SeverityInfo, OutcomeSuccess,
		ResourceScore, s.ID.String(), s.TenantID, CategoryRewards, nil,
		"user_id", s.UserID,
		"points", s.Points,
		"period", s.Period,
	)
}

// OnRedemptionRequested implements plugin.OnRedemptionRequested.
func (e *Extension) OnRedemptionRequested(ctx context.Context, r *reward.Redemption) error {
	return e.record(ctx, ActionRedemptionRequested, SeverityInfo, OutcomeSuccess,
		ResourceRedemption, r.ID.String(), r.TenantID, CategoryRewards, nil,
		"reward_id", r.RewardID.String(),
		"user_id", r.UserID,
	)
}

// OnRedemptionTransitioned implements plugin.OnRedemptionTransitioned.
func (e *Extension) OnRedemptionTransitioned(ctx context.Context, r *reward.Redemption, from reward.Status) error {
	action, ok := transitionActions[r.Status]
	if !ok {
		return nil
	}
	severity := SeverityInfo
	if r.Status == reward.StatusRejected {
		severity = SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceRedemption, r.ID.String(), r.TenantID, CategoryRewards, nil,
		"reward_id", r.RewardID.String(),
		"user_id", r.UserID,
		"from", string(from),
		"to", string(r.Status),
	)
}

var transitionActions = map[reward.Status]string{
	reward.StatusApproved:       ActionRedemptionApproved,
	reward.StatusRejected:       ActionRedemptionRejected,
	reward.StatusAwaitingPickup: ActionRedemptionPickup,
	reward.StatusDelivered:      ActionRedemptionDelivered,
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, tenantID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		TenantID:   tenantID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}
	// The sweep runs without a caller, so the actor is optional.
	if sc, ok := tally.ScopeFrom(ctx); ok {
		evt.ActorID = sc.UserID
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

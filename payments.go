package tally

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Payment Management
// ──────────────────────────────────────────────────

// RecordPayment stores p against its invoice and reconciles the invoice's
// paid amount and status. A payment that would take the total paid above
// the invoice total is refused with an *OverpaymentError.
func (t *Tally) RecordPayment(ctx context.Context, p *payment.Payment) (*invoice.Invoice, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	if p.InvoiceID.IsNil() {
		return nil, invalid("invoice_id", "is required")
	}
	if !p.Amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}
	if !p.Method.Valid() {
		return nil, invalid("method", "unknown payment method %q", p.Method)
	}

	inv, err := t.store.GetInvoice(ctx, sc.TenantID, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	p.Amount = types.New(p.Amount.Amount, inv.Currency)

	paid, err := t.store.SumPayments(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if paid != inv.AmountPaid.Amount {
		t.logger.Warn("invoice paid amount out of step with payments",
			"invoice_id", inv.ID.String(),
			"amount_paid", inv.AmountPaid.Amount,
			"sum_payments", paid,
		)
	}
	if paid+p.Amount.Amount > inv.Total.Amount {
		return nil, overpayment(inv, paid, p.Amount)
	}

	// Reserve the amount on the invoice first: the guarded update is what
	// serializes concurrent payments.
	updated, err := t.store.AdjustInvoicePaid(ctx, sc.TenantID, inv.ID, p.Amount.Amount)
	if err != nil {
		return nil, t.overpaymentFrom(ctx, err, sc.TenantID, inv.ID, p.Amount)
	}

	now := t.now()
	p.ID = id.NewPaymentID()
	p.TenantID = sc.TenantID
	p.RecordedBy = sc.UserID
	p.Entity = types.NewEntity(now)
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	p.PaidAt = p.PaidAt.UTC()

	if err := t.store.CreatePayment(ctx, p); err != nil {
		t.compensate(ctx, sc.TenantID, inv.ID, -p.Amount.Amount)
		return nil, err
	}

	t.logger.Info("payment recorded",
		"tenant_id", sc.TenantID,
		"invoice_id", inv.ID.String(),
		"payment_id", p.ID.String(),
		"amount", p.Amount.String(),
		"status", string(updated.PaymentStatus),
	)
	t.plugins.EmitPaymentRecorded(ctx, p, updated)
	if updated.PaymentStatus == invoice.StatusPaid {
		t.plugins.EmitInvoicePaid(ctx, updated)
	}
	t.present(updated)
	return updated, nil
}

// GetPayment returns a payment of the caller's tenant.
func (t *Tally) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.GetPayment(ctx, sc.TenantID, payID)
}

// ListPayments lists payments, optionally for one invoice, newest first.
func (t *Tally) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListPayments(ctx, sc.TenantID, opts)
}

// PaymentUpdate carries the fields UpdatePayment changes. Nil fields are
// left alone.
type PaymentUpdate struct {
	Amount    *int64 // minor units
	Method    *payment.Method
	PaidAt    *time.Time
	Reference *string
	Notes     *string
}

// UpdatePayment edits a payment whose invoice is not yet paid. A changed
// amount is reconciled against the invoice under the same overpayment rule
// as RecordPayment. ErrPaymentChanged is returned if another request edited
// the payment meanwhile.
func (t *Tally) UpdatePayment(ctx context.Context, payID id.PaymentID, upd PaymentUpdate) (*payment.Payment, *invoice.Invoice, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, nil, err
	}

	p, err := t.store.GetPayment(ctx, sc.TenantID, payID)
	if err != nil {
		return nil, nil, err
	}
	inv, err := t.store.GetInvoice(ctx, sc.TenantID, p.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv.PaymentStatus == invoice.StatusPaid {
		return nil, nil, ErrInvoicePaid
	}

	var delta int64
	if upd.Amount != nil {
		if *upd.Amount <= 0 {
			return nil, nil, invalid("amount", "must be greater than zero")
		}
		delta = *upd.Amount - p.Amount.Amount
	}
	if upd.Method != nil {
		if !upd.Method.Valid() {
			return nil, nil, invalid("method", "unknown payment method %q", *upd.Method)
		}
		p.Method = *upd.Method
	}
	if upd.PaidAt != nil {
		p.PaidAt = upd.PaidAt.UTC()
	}
	if upd.Reference != nil {
		p.Reference = *upd.Reference
	}
	if upd.Notes != nil {
		p.Notes = *upd.Notes
	}

	prev := p.Amount.Amount
	updated := inv
	if delta != 0 {
		paid, err := t.store.SumPayments(ctx, inv.ID)
		if err != nil {
			return nil, nil, err
		}
		attempted := types.New(*upd.Amount, inv.Currency)
		if paid-p.Amount.Amount+attempted.Amount > inv.Total.Amount {
			return nil, nil, overpayment(inv, paid-p.Amount.Amount, attempted)
		}
		if updated, err = t.store.AdjustInvoicePaid(ctx, sc.TenantID, inv.ID, delta); err != nil {
			return nil, nil, t.overpaymentFrom(ctx, err, sc.TenantID, inv.ID, attempted)
		}
		p.Amount = attempted
	}
	p.Touch(t.now())

	// Guarded on the amount delta was taken from.
	if err := t.store.UpdatePayment(ctx, p, prev); err != nil {
		if delta != 0 {
			t.compensate(ctx, sc.TenantID, inv.ID, -delta)
		}
		return nil, nil, err
	}

	t.logger.Info("payment updated",
		"tenant_id", sc.TenantID,
		"payment_id", p.ID.String(),
		"amount", p.Amount.String(),
	)
	t.plugins.EmitPaymentUpdated(ctx, p, updated)
	if delta != 0 && updated.PaymentStatus == invoice.StatusPaid {
		t.plugins.EmitInvoicePaid(ctx, updated)
	}
	t.present(updated)
	return p, updated, nil
}

// DeletePayment removes a payment whose invoice is not yet paid and takes
// its amount back off the invoice.
func (t *Tally) DeletePayment(ctx context.Context, payID id.PaymentID) (*invoice.Invoice, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}

	p, err := t.store.GetPayment(ctx, sc.TenantID, payID)
	if err != nil {
		return nil, err
	}
	inv, err := t.store.GetInvoice(ctx, sc.TenantID, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == invoice.StatusPaid {
		return nil, ErrInvoicePaid
	}

	updated, err := t.store.AdjustInvoicePaid(ctx, sc.TenantID, inv.ID, -p.Amount.Amount)
	if errors.Is(err, ErrOverpayment) {
		// Less is recorded as paid than this payment: another request has
		// already taken it off.
		return nil, ErrPaymentChanged
	}
	if err != nil {
		return nil, err
	}
	if err := t.store.DeletePayment(ctx, sc.TenantID, payID, p.Amount.Amount); err != nil {
		t.compensate(ctx, sc.TenantID, inv.ID, p.Amount.Amount)
		return nil, err
	}

	t.logger.Info("payment deleted", "tenant_id", sc.TenantID, "payment_id", p.ID.String())
	t.plugins.EmitPaymentDeleted(ctx, p, updated)
	t.present(updated)
	return updated, nil
}

// Residual is what is left to pay on an invoice.
type Residual struct {
	Invoice   *invoice.Invoice   `json:"invoice"`
	Total     types.Money        `json:"total"`
	Paid      types.Money        `json:"paid"`
	Remaining types.Money        `json:"remaining"`
	Status    invoice.Status     `json:"status"`
	Payments  []*payment.Payment `json:"payments"`
}

// Residual reports the paid and remaining amounts of an invoice with the
// payments that make them up.
func (t *Tally) Residual(ctx context.Context, invID id.InvoiceID) (*Residual, error) {
	inv, err := t.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	pays, err := t.store.ListPayments(ctx, inv.TenantID, payment.ListOpts{InvoiceID: invID})
	if err != nil {
		return nil, err
	}
	return &Residual{
		Invoice:   inv,
		Total:     inv.Total,
		Paid:      inv.AmountPaid,
		Remaining: inv.AmountDue,
		Status:    inv.PaymentStatus,
		Payments:  pays,
	}, nil
}

func overpayment(inv *invoice.Invoice, paid int64, attempted types.Money) *OverpaymentError {
	return &OverpaymentError{
		Total:       inv.Total,
		AlreadyPaid: types.New(paid, inv.Currency),
		Remaining:   types.New(max(inv.Total.Amount-paid, 0), inv.Currency),
		Attempted:   attempted,
	}
}

// overpaymentFrom turns a refused paid-amount adjustment into an
// *OverpaymentError computed from the invoice as it now stands.
func (t *Tally) overpaymentFrom(ctx context.Context, err error, tenantID string, invID id.InvoiceID, attempted types.Money) error {
	if !errors.Is(err, ErrOverpayment) {
		return err
	}
	inv, getErr := t.store.GetInvoice(ctx, tenantID, invID)
	if getErr != nil {
		return err
	}
	return overpayment(inv, inv.AmountPaid.Amount, attempted)
}

// compensate undoes a paid-amount adjustment after the payment write
// failed.
func (t *Tally) compensate(ctx context.Context, tenantID string, invID id.InvoiceID, delta int64) {
	if _, err := t.store.AdjustInvoicePaid(ctx, tenantID, invID, delta); err != nil {
		t.logger.Error("invoice paid amount not restored",
			"invoice_id", invID.String(),
			"delta", delta,
			"error", err,
		)
	}
}

package tally

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// numberAttempts bounds retries when a concurrent create takes the same
// invoice number.
const numberAttempts = 5

// ──────────────────────────────────────────────────
// Invoice Management
// ──────────────────────────────────────────────────

// CreateInvoice numbers, totals and stores inv in the caller's tenant.
// Callers fill Customer, Lines and optionally dates, ContactID,
// PaymentMethod and Notes; everything else is computed.
func (t *Tally) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	sc, err := t.scope(ctx)
	if err != nil {
		return err
	}

	now := t.now()
	inv.ID = id.NewInvoiceID()
	inv.TenantID = sc.TenantID
	inv.CreatedBy = sc.UserID
	inv.Currency = t.currency
	inv.AmountPaid = types.Zero(t.currency)
	inv.OverdueNotifiedAt = nil
	inv.Entity = types.NewEntity(now)

	if inv.IssueDate.IsZero() {
		inv.IssueDate = now
	}
	inv.IssueDate = inv.IssueDate.UTC()
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDate(0, 0, t.dueDays)
	}
	inv.DueDate = inv.DueDate.UTC()

	if err := validateInvoice(inv); err != nil {
		return err
	}
	inv.Recalculate()
	if !inv.Total.IsPositive() {
		return invalid("lines", "invoice total must be greater than zero")
	}

	inv.Year = inv.IssueDate.Year()
	for attempt := 1; ; attempt++ {
		last, err := t.store.LastInvoiceSequence(ctx, sc.TenantID, inv.Year)
		if err != nil {
			return err
		}
		inv.Sequence = last + 1
		inv.Number = invoice.FormatNumber(inv.Sequence, inv.Year)

		err = t.store.CreateInvoice(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrInvoiceNumberTaken) || attempt == numberAttempts {
			return err
		}
		t.logger.Debug("invoice number taken, retrying", "number", inv.Number, "attempt", attempt)
	}

	t.logger.Info("invoice created",
		"tenant_id", inv.TenantID,
		"invoice_id", inv.ID.String(),
		"number", inv.Number,
		"total", inv.Total.String(),
	)
	t.plugins.EmitInvoiceCreated(ctx, inv)
	t.present(inv)
	return nil
}

// GetInvoice returns an invoice of the caller's tenant with its status as
// of now.
func (t *Tally) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := t.store.GetInvoice(ctx, sc.TenantID, invID)
	if err != nil {
		return nil, err
	}
	t.present(inv)
	return inv, nil
}

// ListInvoices lists the caller's tenant invoices, newest number first.
func (t *Tally) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, invalid("status", "unknown status %q", opts.Status)
	}
	if opts.Month < 0 || opts.Month > 12 {
		return nil, invalid("month", "must be between 1 and 12")
	}
	opts.Now = t.now()

	invs, err := t.store.ListInvoices(ctx, sc.TenantID, opts)
	if err != nil {
		return nil, err
	}
	for _, inv := range invs {
		t.present(inv)
	}
	return invs, nil
}

// InvoiceUpdate carries the fields UpdateInvoice changes. Nil fields are
// left alone.
type InvoiceUpdate struct {
	Customer      *invoice.Customer
	ContactID     *string
	Lines         []invoice.LineItem
	IssueDate     *time.Time
	DueDate       *time.Time
	PaymentMethod *string
	Notes         *string
}

// UpdateInvoice edits an invoice that is not yet paid. Totals are
// recomputed, and the new total may not fall below what has been paid.
func (t *Tally) UpdateInvoice(ctx context.Context, invID id.InvoiceID, upd InvoiceUpdate) (*invoice.Invoice, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := t.store.GetInvoice(ctx, sc.TenantID, invID)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == invoice.StatusPaid {
		return nil, ErrInvoicePaid
	}

	if upd.Customer != nil {
		inv.Customer = *upd.Customer
	}
	if upd.ContactID != nil {
		inv.ContactID = *upd.ContactID
	}
	if upd.Lines != nil {
		inv.Lines = upd.Lines
	}
	if upd.IssueDate != nil {
		inv.IssueDate = upd.IssueDate.UTC()
	}
	if upd.DueDate != nil {
		inv.DueDate = upd.DueDate.UTC()
	}
	if upd.PaymentMethod != nil {
		inv.PaymentMethod = *upd.PaymentMethod
	}
	if upd.Notes != nil {
		inv.Notes = *upd.Notes
	}

	if err := validateInvoice(inv); err != nil {
		return nil, err
	}
	inv.Recalculate()
	if !inv.Total.IsPositive() {
		return nil, invalid("lines", "invoice total must be greater than zero")
	}
	if inv.Total.LessThan(inv.AmountPaid) {
		return nil, invalid("lines", "total %s is below the %s already paid", inv.Total, inv.AmountPaid)
	}
	inv.Touch(t.now())

	if err := t.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	t.logger.Info("invoice updated", "tenant_id", inv.TenantID, "invoice_id", inv.ID.String())
	t.present(inv)
	return inv, nil
}

// DeleteInvoice removes an invoice that has nothing paid against it.
func (t *Tally) DeleteInvoice(ctx context.Context, invID id.InvoiceID) error {
	sc, err := t.scope(ctx)
	if err != nil {
		return err
	}

	inv, err := t.store.GetInvoice(ctx, sc.TenantID, invID)
	if err != nil {
		return err
	}
	switch {
	case inv.PaymentStatus == invoice.StatusPaid:
		return ErrInvoicePaid
	case inv.AmountPaid.IsPositive():
		return ErrInvoiceHasPayments
	}

	if err := t.store.DeleteInvoice(ctx, sc.TenantID, invID); err != nil {
		return err
	}

	t.logger.Info("invoice deleted", "tenant_id", inv.TenantID, "invoice_id", inv.ID.String(), "number", inv.Number)
	t.plugins.EmitInvoiceDeleted(ctx, inv)
	return nil
}

// NextInvoiceNumber previews the number the next invoice of year would
// get. Zero means the current year.
func (t *Tally) NextInvoiceNumber(ctx context.Context, year int) (string, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return "", err
	}
	if year == 0 {
		year = t.now().Year()
	}
	last, err := t.store.LastInvoiceSequence(ctx, sc.TenantID, year)
	if err != nil {
		return "", err
	}
	return invoice.FormatNumber(last+1, year), nil
}

// InvoiceStats aggregates the caller's tenant invoices issued in year.
// Zero means the current year.
func (t *Tally) InvoiceStats(ctx context.Context, year int) (*invoice.Stats, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	now := t.now()
	if year == 0 {
		year = now.Year()
	}
	invs, err := t.store.ListInvoices(ctx, sc.TenantID, invoice.ListOpts{Year: year, Now: now})
	if err != nil {
		return nil, err
	}
	stats := invoice.ComputeStats(year, t.currency, invs, now)
	return &stats, nil
}

// present sets the status a reader sees at the current time.
func (t *Tally) present(inv *invoice.Invoice) {
	inv.PaymentStatus = inv.EffectiveStatus(t.now())
}

func validateInvoice(inv *invoice.Invoice) error {
	if strings.TrimSpace(inv.Customer.Name) == "" {
		return invalid("customer.name", "is required")
	}
	if len(inv.Lines) == 0 {
		return invalid("lines", "at least one line item is required")
	}
	for i, l := range inv.Lines {
		switch {
		case strings.TrimSpace(l.Description) == "":
			return invalid("lines", "line %d: description is required", i+1)
		case l.Quantity <= 0:
			return invalid("lines", "line %d: quantity must be positive", i+1)
		case l.UnitPrice.IsNegative():
			return invalid("lines", "line %d: unit price cannot be negative", i+1)
		case l.VATRate < 0 || l.VATRate > 100:
			return invalid("lines", "line %d: vat rate must be between 0 and 100", i+1)
		}
	}
	if line := inv.CheckTotals(); line > 0 {
		return invalid("lines", "line %d: amount is too large", line)
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return invalid("due_date", "cannot be before the issue date")
	}
	return nil
}

package payment

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists payments.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, tenantID string, payID id.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, tenantID string, opts ListOpts) ([]*Payment, error)

	// UpdatePayment overwrites p only while the stored amount still equals
	// prevAmount; otherwise it reports the payment as changed.
	UpdatePayment(ctx context.Context, p *Payment, prevAmount int64) error

	// DeletePayment removes the payment only while its stored amount still
	// equals amount.
	DeletePayment(ctx context.Context, tenantID string, payID id.PaymentID, amount int64) error

	// SumPayments returns the total paid against an invoice, in minor units.
	SumPayments(ctx context.Context, invID id.InvoiceID) (int64, error)
}

// ListOpts filters ListPayments. Results are ordered by PaidAt, newest first.
type ListOpts struct {
	InvoiceID id.InvoiceID
	Limit     int
	Offset    int
}

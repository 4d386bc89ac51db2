package invoice

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
)

// Store persists invoices. Every read and write is scoped by tenant.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context, tenantID string, opts ListOpts) ([]*Invoice, error)

	// UpdateInvoice rewrites the editable fields and totals. The paid amount
	// is left as stored, and the write is refused for a paid invoice or when
	// the new total would fall below what has been paid.
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	// DeleteInvoice removes an invoice with no payments recorded.
	DeleteInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) error

	// LastInvoiceSequence returns the highest sequence used in year, or 0.
	LastInvoiceSequence(ctx context.Context, tenantID string, year int) (int, error)

	// AdjustInvoicePaid atomically moves the paid amount by delta (minor
	// units) and re-derives amount due and status. The write is refused with
	// ErrOverpayment unless 0 <= paid+delta <= total.
	AdjustInvoicePaid(ctx context.Context, tenantID string, invID id.InvoiceID, delta int64) (*Invoice, error)

	// ListOverdueInvoices returns, across tenants, unpaid invoices due before
	// now that have not had an overdue notice yet.
	ListOverdueInvoices(ctx context.Context, now time.Time, limit int) ([]*Invoice, error)
	MarkOverdueNotified(ctx context.Context, invID id.InvoiceID, at time.Time) error
}

// ListOpts filters ListInvoices. Status is matched against the status
// effective at Now, so StatusOverdue selects by due date.
type ListOpts struct {
	Status       Status
	Now          time.Time
	CustomerName string // case-insensitive substring
	Year         int
	Month        int // 1-12, matched against the issue date
	ContactID    string
	Limit        int
	Offset       int
}

// Matches applies opts to a single invoice. Backends that filter in memory
// use it directly.
func (o ListOpts) Matches(inv *Invoice) bool {
	if o.Status != "" && inv.EffectiveStatus(o.Now) != o.Status {
		return false
	}
	if o.CustomerName != "" && !containsFold(inv.Customer.Name, o.CustomerName) {
		return false
	}
	if o.Year != 0 && inv.Year != o.Year {
		return false
	}
	if o.Month != 0 && int(inv.IssueDate.Month()) != o.Month {
		return false
	}
	if o.ContactID != "" && inv.ContactID != o.ContactID {
		return false
	}
	return true
}

// Package invoice models customer invoices and the payment status derived
// from what has been paid against them.
package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Status is the payment status of an invoice.
type Status string

const (
	StatusUnpaid        Status = "unpaid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	// StatusOverdue is never stored. It is reported for unpaid or partially
	// paid invoices whose due date has passed.
	StatusOverdue Status = "overdue"
)

// Statuses lists every reportable status.
var Statuses = []Status{StatusUnpaid, StatusPartiallyPaid, StatusPaid, StatusOverdue}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartiallyPaid, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// DeriveStatus maps the paid amount against the total onto a stored status.
func DeriveStatus(paid, total types.Money) Status {
	switch {
	case paid.Amount >= total.Amount:
		return StatusPaid
	case paid.Amount > 0:
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// Invoice is a tenant's invoice to one customer.
type Invoice struct {
	types.Entity

	ID       id.InvoiceID `json:"id"`
	TenantID string       `json:"tenant_id"`

	Number   string `json:"number"` // "<sequence>/<year>"
	Year     int    `json:"year"`
	Sequence int    `json:"sequence"`

	Customer  Customer   `json:"customer"`
	ContactID string     `json:"contact_id,omitempty"`
	Lines     []LineItem `json:"lines"`

	Currency      string      `json:"currency"`
	Subtotal      types.Money `json:"subtotal"`
	Tax           types.Money `json:"tax"`
	Total         types.Money `json:"total"`
	AmountPaid    types.Money `json:"amount_paid"`
	AmountDue     types.Money `json:"amount_due"`
	PaymentStatus Status      `json:"payment_status"`

	IssueDate         time.Time  `json:"issue_date"`
	DueDate           time.Time  `json:"due_date"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CreatedBy         string     `json:"created_by,omitempty"`
	OverdueNotifiedAt *time.Time `json:"overdue_notified_at,omitempty"`
}

// Customer is the billed party as printed on the invoice.
type Customer struct {
	Name       string `json:"name"`
	VATNumber  string `json:"vat_number,omitempty"`
	TaxCode    string `json:"tax_code,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// LineItem is one billed row. Amount is computed as Quantity * UnitPrice.
type LineItem struct {
	Description string      `json:"description"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   types.Money `json:"unit_price"`
	VATRate     int64       `json:"vat_rate"` // percent
	Amount      types.Money `json:"amount"`
}

// Recalculate recomputes line amounts, subtotal, tax and total from Lines,
// then the amount due and stored status from AmountPaid.
func (inv *Invoice) Recalculate() {
	if inv.Currency == "" {
		inv.Currency = types.DefaultCurrency
	}
	subtotal := types.Zero(inv.Currency)
	tax := types.Zero(inv.Currency)
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.UnitPrice.Currency = inv.Currency
		l.Amount = l.UnitPrice.Times(l.Quantity)
		subtotal = subtotal.Add(l.Amount)
		tax = tax.Add(l.Amount.Percent(l.VATRate))
	}
	inv.Subtotal = subtotal
	inv.Tax = tax
	inv.Total = subtotal.Add(tax)
	inv.SetPaid(inv.AmountPaid.Amount)
}

// CheckTotals reports the first line whose amount, or whose contribution to
// the subtotal, tax or total, does not fit in an int64. It returns 0 when
// Recalculate is safe to call.
func (inv *Invoice) CheckTotals() int {
	cur := inv.Currency
	if cur == "" {
		cur = types.DefaultCurrency
	}
	subtotal := types.Zero(cur)
	tax := types.Zero(cur)
	for i, l := range inv.Lines {
		amount, ok := types.New(l.UnitPrice.Amount, cur).CheckedTimes(l.Quantity)
		if !ok {
			return i + 1
		}
		lineTax, ok := amount.CheckedPercent(l.VATRate)
		if !ok {
			return i + 1
		}
		if subtotal, ok = subtotal.CheckedAdd(amount); !ok {
			return i + 1
		}
		if tax, ok = tax.CheckedAdd(lineTax); !ok {
			return i + 1
		}
		if _, ok = subtotal.CheckedAdd(tax); !ok {
			return i + 1
		}
	}
	return 0
}

// SetPaid records the paid amount and re-derives amount due and status.
func (inv *Invoice) SetPaid(paid int64) {
	inv.AmountPaid = types.New(paid, inv.Currency)
	inv.AmountDue = inv.Total.Sub(inv.AmountPaid)
	inv.PaymentStatus = DeriveStatus(inv.AmountPaid, inv.Total)
}

// IsOverdue reports whether the invoice is unpaid past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.PaymentStatus != StatusPaid && !inv.DueDate.IsZero() && now.After(inv.DueDate)
}

// EffectiveStatus is the status reported to readers at time now.
func (inv *Invoice) EffectiveStatus(now time.Time) Status {
	if inv.IsOverdue(now) {
		return StatusOverdue
	}
	return inv.PaymentStatus
}

// FormatNumber renders an invoice number, e.g. FormatNumber(7, 2025) = "7/2025".
func FormatNumber(seq, year int) string {
	return fmt.Sprintf("%d/%d", seq, year)
}

// ParseNumber is the inverse of FormatNumber.
func ParseNumber(s string) (seq, year int, err error) {
	a, b, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invoice: malformed number %q", s)
	}
	if seq, err = strconv.Atoi(a); err != nil || seq < 1 {
		return 0, 0, fmt.Errorf("invoice: malformed number %q", s)
	}
	if year, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("invoice: malformed number %q", s)
	}
	return seq, year, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

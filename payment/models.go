// Package payment models money received against an invoice.
package payment

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Method is how a payment was made.
type Method string

const (
	MethodBankTransfer Method = "bonifico"
	MethodCash         Method = "contanti"
	MethodCard         Method = "carta"
	MethodCheque       Method = "assegno"
	MethodRiBa         Method = "riba"
	MethodOther        Method = "altro"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCash, MethodCard, MethodCheque, MethodRiBa, MethodOther:
		return true
	}
	return false
}

// Payment is one amount received against an invoice. It belongs to the
// invoice and is removed with it.
type Payment struct {
	types.Entity

	ID         id.PaymentID `json:"id"`
	TenantID   string       `json:"tenant_id"`
	InvoiceID  id.InvoiceID `json:"invoice_id"`
	Amount     types.Money  `json:"amount"`
	Method     Method       `json:"method"`
	PaidAt     time.Time    `json:"paid_at"`
	Reference  string       `json:"reference,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	RecordedBy string       `json:"recorded_by,omitempty"`
}

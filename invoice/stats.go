package invoice

import (
	"time"

	"github.com/xraph/tally/types"
)

// Stats summarizes one year of a tenant's invoices.
type Stats struct {
	Year        int            `json:"year"`
	Issued      int            `json:"issued"`
	Subtotal    types.Money    `json:"subtotal"`
	Tax         types.Money    `json:"tax"`
	Invoiced    types.Money    `json:"invoiced"`
	Paid        types.Money    `json:"paid"`
	Outstanding types.Money    `json:"outstanding"`
	Overdue     types.Money    `json:"overdue"`
	ByStatus    map[Status]int `json:"by_status"`
	Months      []MonthStats   `json:"months"`
}

// MonthStats is the per-month slice of Stats, keyed by issue date.
type MonthStats struct {
	Month    int         `json:"month"`
	Issued   int         `json:"issued"`
	Invoiced types.Money `json:"invoiced"`
	Paid     types.Money `json:"paid"`
}

// ComputeStats folds invoices issued in year into Stats. Statuses are
// evaluated at now, so overdue invoices are counted as overdue.
func ComputeStats(year int, currency string, invs []*Invoice, now time.Time) Stats {
	zero := types.Zero(currency)
	st := Stats{
		Year:        year,
		Subtotal:    zero,
		Tax:         zero,
		Invoiced:    zero,
		Paid:        zero,
		Outstanding: zero,
		Overdue:     zero,
		ByStatus:    make(map[Status]int, len(Statuses)),
		Months:      make([]MonthStats, 12),
	}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	for m := range st.Months {
		st.Months[m] = MonthStats{Month: m + 1, Invoiced: zero, Paid: zero}
	}

	for _, inv := range invs {
		if inv.Year != year || inv.Currency != currency {
			continue
		}
		st.Issued++
		st.Subtotal = st.Subtotal.Add(inv.Subtotal)
		st.Tax = st.Tax.Add(inv.Tax)
		st.Invoiced = st.Invoiced.Add(inv.Total)
		st.Paid = st.Paid.Add(inv.AmountPaid)
		st.Outstanding = st.Outstanding.Add(inv.AmountDue)

		status := inv.EffectiveStatus(now)
		st.ByStatus[status]++
		if status == StatusOverdue {
			st.Overdue = st.Overdue.Add(inv.AmountDue)
		}

		m := &st.Months[inv.IssueDate.Month()-1]
		m.Issued++
		m.Invoiced = m.Invoiced.Add(inv.Total)
		m.Paid = m.Paid.Add(inv.AmountPaid)
	}
	return st
}

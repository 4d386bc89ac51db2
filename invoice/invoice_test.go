package invoice

import (
	"testing"
	"time"

	"github.com/xraph/tally/types"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		paid, total int64
		want        Status
	}{
		{0, 10000, StatusUnpaid},
		{1, 10000, StatusPartiallyPaid},
		{6000, 10000, StatusPartiallyPaid},
		{10000, 10000, StatusPaid},
		{10001, 10000, StatusPaid},
	}
	for _, tt := range tests {
		if got := DeriveStatus(types.EUR(tt.paid), types.EUR(tt.total)); got != tt.want {
			t.Errorf("DeriveStatus(%d, %d) = %s, want %s", tt.paid, tt.total, got, tt.want)
		}
	}
}

func TestRecalculate(t *testing.T) {
	inv := &Invoice{
		Currency: "eur",
		Lines: []LineItem{
			{Description: "Consulenza", Quantity: 2, UnitPrice: types.EUR(5000), VATRate: 22},
			{Description: "Marca da bollo", Quantity: 1, UnitPrice: types.EUR(200)},
		},
	}
	inv.Recalculate()

	if inv.Lines[0].Amount != types.EUR(10000) {
		t.Errorf("line amount = %v", inv.Lines[0].Amount)
	}
	if inv.Subtotal != types.EUR(10200) || inv.Tax != types.EUR(2200) || inv.Total != types.EUR(12400) {
		t.Errorf("totals = %v %v %v", inv.Subtotal, inv.Tax, inv.Total)
	}
	if inv.AmountDue != inv.Total || inv.PaymentStatus != StatusUnpaid {
		t.Errorf("due = %v status = %s", inv.AmountDue, inv.PaymentStatus)
	}
}

func TestSetPaidKeepsBalance(t *testing.T) {
	inv := &Invoice{Currency: "eur", Total: types.EUR(10000)}
	for _, paid := range []int64{0, 6000, 10000} {
		inv.SetPaid(paid)
		if inv.AmountPaid.Add(inv.AmountDue) != inv.Total {
			t.Fatalf("paid %d: %v + %v != %v", paid, inv.AmountPaid, inv.AmountDue, inv.Total)
		}
		if (inv.PaymentStatus == StatusPaid) != (inv.AmountPaid.Amount >= inv.Total.Amount) {
			t.Fatalf("paid %d: status %s", paid, inv.PaymentStatus)
		}
	}
}

func TestEffectiveStatus(t *testing.T) {
	due := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	before := due.Add(-time.Hour)
	after := due.Add(time.Hour)

	inv := &Invoice{Currency: "eur", Total: types.EUR(100), DueDate: due}
	inv.SetPaid(0)
	if got := inv.EffectiveStatus(before); got != StatusUnpaid {
		t.Errorf("before due: %s", got)
	}
	if got := inv.EffectiveStatus(after); got != StatusOverdue {
		t.Errorf("after due: %s", got)
	}
	if inv.PaymentStatus != StatusUnpaid {
		t.Errorf("stored status changed to %s", inv.PaymentStatus)
	}

	inv.SetPaid(100)
	if got := inv.EffectiveStatus(after); got != StatusPaid {
		t.Errorf("paid after due: %s", got)
	}
}

func TestNumber(t *testing.T) {
	if got := FormatNumber(7, 2025); got != "7/2025" {
		t.Fatalf("FormatNumber = %q", got)
	}
	seq, year, err := ParseNumber("12/2024")
	if err != nil || seq != 12 || year != 2024 {
		t.Fatalf("ParseNumber = %d %d %v", seq, year, err)
	}
	for _, bad := range []string{"", "12", "0/2024", "x/2024", "3/yy"} {
		if _, _, err := ParseNumber(bad); err == nil {
			t.Errorf("ParseNumber(%q): expected error", bad)
		}
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	mk := func(month time.Month, total, paid int64, due time.Time) *Invoice {
		inv := &Invoice{
			Year: 2025, Currency: "eur", Total: types.EUR(total),
			Subtotal: types.EUR(total), Tax: types.EUR(0),
			IssueDate: time.Date(2025, month, 10, 0, 0, 0, 0, time.UTC), DueDate: due,
		}
		inv.SetPaid(paid)
		return inv
	}
	future := now.AddDate(0, 1, 0)
	past := now.AddDate(0, -1, 0)

	invs := []*Invoice{
		mk(time.January, 10000, 10000, past),
		mk(time.January, 5000, 2000, future),
		mk(time.May, 3000, 0, past),
		mk(time.June, 1000, 0, future),
		{Year: 2024, Currency: "eur", Total: types.EUR(999)},
	}

	st := ComputeStats(2025, "eur", invs, now)
	if st.Issued != 4 {
		t.Fatalf("issued = %d", st.Issued)
	}
	if st.Invoiced != types.EUR(19000) || st.Paid != types.EUR(12000) || st.Outstanding != types.EUR(7000) {
		t.Errorf("totals: invoiced %v paid %v outstanding %v", st.Invoiced, st.Paid, st.Outstanding)
	}
	if st.Overdue != types.EUR(3000) {
		t.Errorf("overdue = %v", st.Overdue)
	}
	want := map[Status]int{StatusPaid: 1, StatusPartiallyPaid: 1, StatusOverdue: 1, StatusUnpaid: 1}
	for s, n := range want {
		if st.ByStatus[s] != n {
			t.Errorf("ByStatus[%s] = %d, want %d", s, st.ByStatus[s], n)
		}
	}
	if len(st.Months) != 12 || st.Months[0].Issued != 2 || st.Months[0].Invoiced != types.EUR(15000) {
		t.Errorf("january = %+v", st.Months[0])
	}
	if st.Months[11].Month != 12 || st.Months[11].Issued != 0 {
		t.Errorf("december = %+v", st.Months[11])
	}
}

func TestListOptsMatches(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	inv := &Invoice{
		Year: 2025, Currency: "eur", Total: types.EUR(100),
		Customer:  Customer{Name: "Rossi Impianti SRL"},
		ContactID: "c1",
		IssueDate: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	inv.SetPaid(0)

	tests := []struct {
		name string
		opts ListOpts
		want bool
	}{
		{"empty", ListOpts{}, true},
		{"overdue", ListOpts{Status: StatusOverdue, Now: now}, true},
		{"unpaid is overdue", ListOpts{Status: StatusUnpaid, Now: now}, false},
		{"name fold", ListOpts{CustomerName: "rossi"}, true},
		{"name miss", ListOpts{CustomerName: "bianchi"}, false},
		{"year", ListOpts{Year: 2024}, false},
		{"month", ListOpts{Month: 5}, true},
		{"contact", ListOpts{ContactID: "c2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(inv); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

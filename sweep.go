package tally

import (
	"context"
	"fmt"

	"github.com/xraph/tally/notification"
)

// SweepOverdue finds invoices past their due date that have not been
// flagged yet, tells each tenant's admins and emits OnInvoiceOverdue. Each
// invoice is flagged once. It returns how many were flagged.
func (t *Tally) SweepOverdue(ctx context.Context) (int, error) {
	now := t.now()
	invs, err := t.store.ListOverdueInvoices(ctx, now, t.sweepBatch)
	if err != nil {
		return 0, err
	}

	var errs MultiError
	flagged := 0
	for _, inv := range invs {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		if err := t.store.MarkOverdueNotified(ctx, inv.ID, now); err != nil {
			errs.Add(fmt.Errorf("invoice %s: %w", inv.ID, err))
			continue
		}
		inv.OverdueNotifiedAt = &now
		t.present(inv)
		flagged++

		t.notifyAdmins(ctx, inv.TenantID, notification.KindInvoiceOverdue,
			"Invoice overdue",
			fmt.Sprintf("Invoice %s for %s is overdue: %s still due since %s",
				inv.Number, inv.Customer.Name, inv.AmountDue, inv.DueDate.Format("2006-01-02")),
			"/fatture/"+inv.ID.String(),
		)
		t.plugins.EmitInvoiceOverdue(ctx, inv)
	}

	return flagged, errs.ErrOrNil()
}

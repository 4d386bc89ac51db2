// Package tally is a small multi-tenant back office engine: customer
// invoices with partial payments, and an employee points ledger that
// unlocks rewards from a catalogue.
//
// Tally is a library first. The engine runs over any store.Store
// (memory, PostgreSQL, SQLite or MongoDB) and the api package mounts it
// over HTTP; cmd/tally serves it standalone and the extension package
// plugs it into a Forge application.
//
// # Quick Start
//
//	s := memory.New()
//	t := tally.New(s,
//	    tally.WithLogger(slog.Default()),
//	    tally.WithOverdueSweep("0 8 * * *"),
//	)
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
// Every operation acts on behalf of a member of one tenant, carried in
// the context:
//
//	ctx = tally.WithScope(ctx, tally.Scope{TenantID: "acme", UserID: adminID, Role: member.RoleAdmin})
//
// # Invoices and payments
//
// An invoice is numbered "<sequence>/<year>" per tenant and totalled from
// its line items. Payments are recorded against it, and the invoice keeps
// the amount paid, the amount due and a payment status derived from them:
// unpaid, partially_paid or paid. A payment that would exceed the total is
// refused with an *OverpaymentError, and a paid invoice is frozen. Overdue
// is never stored: it is reported for unpaid invoices past their due date,
// and an optional cron sweep notifies admins once per overdue invoice.
//
//	inv := &invoice.Invoice{
//	    Customer: invoice.Customer{Name: "Rossi Srl"},
//	    Lines:    []invoice.LineItem{{Description: "Consulting", Quantity: 1, UnitPrice: tally.EUR(10000)}},
//	}
//	err := t.CreateInvoice(ctx, inv)
//	inv, err = t.RecordPayment(ctx, &payment.Payment{InvoiceID: inv.ID, Amount: tally.EUR(6000), Method: payment.MethodBankTransfer})
//
// # Points and rewards
//
// Admins award points to members. Points are never spent: a reward states
// how many points a member must have earned overall and in the current
// month, and redeeming it only checks both. A redemption then moves
// through pending, approved or rejected, awaiting_pickup and delivered,
// with notifications to the requester and the admins along the way.
//
// # TypeID
//
// Every record has a TypeID such as "inv_01h2xcejqtf2nbrexx3vqjhp41". See
// the id package.
package tally

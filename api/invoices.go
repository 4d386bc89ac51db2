package api

import (
	"net/http"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
)

type invoiceRequest struct {
	Customer      *invoice.Customer  `json:"customer"`
	ContactID     *string            `json:"contact_id"`
	Lines         []invoice.LineItem `json:"lines"`
	IssueDate     *Date              `json:"issue_date"`
	DueDate       *Date              `json:"due_date"`
	PaymentMethod *string            `json:"payment_method"`
	Notes         *string            `json:"notes"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ListInvoices handles GET /api/fatture.
// Query: status, customer, year, month, contact_id, limit, offset.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := invoice.ListOpts{
		Status:       invoice.Status(q.Get("status")),
		CustomerName: q.Get("customer"),
		ContactID:    q.Get("contact_id"),
	}
	var err error
	if opts.Year, err = queryInt(r, "year"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Month, err = queryInt(r, "month"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}

	invs, err := h.tally.ListInvoices(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"invoices": invs, "count": len(invs)})
}

// InvoiceStats handles GET /api/fatture/stats?year=.
func (h *Handler) InvoiceStats(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.tally.InvoiceStats(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

// NextInvoiceNumber handles GET /api/fatture/numero-disponibile?year=.
func (h *Handler) NextInvoiceNumber(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	number, err := h.tally.NextInvoiceNumber(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"number": number})
}

// GetInvoice handles GET /api/fatture/{id}.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invID, err := pathID(r, id.ParseInvoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.tally.GetInvoice(r.Context(), invID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, inv)
}

// CreateInvoice handles POST /api/fatture.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	inv := &invoice.Invoice{
		Customer:      deref(req.Customer),
		ContactID:     deref(req.ContactID),
		Lines:         req.Lines,
		IssueDate:     req.IssueDate.value(),
		DueDate:       req.DueDate.value(),
		PaymentMethod: deref(req.PaymentMethod),
		Notes:         deref(req.Notes),
	}
	if err := h.tally.CreateInvoice(r.Context(), inv); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, inv)
}

// UpdateInvoice handles PUT /api/fatture/{id}. Omitted fields are kept.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	invID, err := pathID(r, id.ParseInvoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req invoiceRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	inv, err := h.tally.UpdateInvoice(r.Context(), invID, tally.InvoiceUpdate{
		Customer:      req.Customer,
		ContactID:     req.ContactID,
		Lines:         req.Lines,
		IssueDate:     req.IssueDate.ptr(),
		DueDate:       req.DueDate.ptr(),
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, inv)
}

// DeleteInvoice handles DELETE /api/fatture/{id}.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	invID, err := pathID(r, id.ParseInvoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tally.DeleteInvoice(r.Context(), invID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

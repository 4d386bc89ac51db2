package api

import (
	"net/http"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/types"
)

// paymentRequest carries amounts in minor units (cents).
type paymentRequest struct {
	InvoiceID string          `json:"invoice_id"`
	Amount    *int64          `json:"amount"`
	Method    *payment.Method `json:"method"`
	PaidAt    *Date           `json:"paid_at"`
	Reference *string         `json:"reference"`
	Notes     *string         `json:"notes"`
}

// ListPayments handles GET /api/pagamenti?invoice_id=&limit=&offset=.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	var opts payment.ListOpts
	if raw := r.URL.Query().Get("invoice_id"); raw != "" {
		invID, err := id.ParseInvoiceID(raw)
		if err != nil {
			h.writeError(w, r, tally.ValidationError{Field: "invoice_id", Message: err.Error()})
			return
		}
		opts.InvoiceID = invID
	}
	var err error
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}

	pays, err := h.tally.ListPayments(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"payments": pays, "count": len(pays)})
}

// GetPayment handles GET /api/pagamenti/{id}.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payID, err := pathID(r, id.ParsePaymentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.tally.GetPayment(r.Context(), payID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

// RecordPayment handles POST /api/pagamenti.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	invID, err := id.ParseInvoiceID(req.InvoiceID)
	if err != nil {
		h.writeError(w, r, tally.ValidationError{Field: "invoice_id", Message: err.Error()})
		return
	}
	if req.Amount == nil || req.Method == nil {
		h.writeError(w, r, tally.ValidationError{Field: "amount", Message: "amount and method are required"})
		return
	}

	p := &payment.Payment{
		InvoiceID: invID,
		Amount:    types.Money{Amount: *req.Amount},
		Method:    *req.Method,
		PaidAt:    req.PaidAt.value(),
		Reference: deref(req.Reference),
		Notes:     deref(req.Notes),
	}
	inv, err := h.tally.RecordPayment(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"payment": p, "invoice": inv})
}

// UpdatePayment handles PUT /api/pagamenti/{id}.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	payID, err := pathID(r, id.ParsePaymentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, inv, err := h.tally.UpdatePayment(r.Context(), payID, tally.PaymentUpdate{
		Amount:    req.Amount,
		Method:    req.Method,
		PaidAt:    req.PaidAt.ptr(),
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"payment": p, "invoice": inv})
}

// DeletePayment handles DELETE /api/pagamenti/{id}.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	payID, err := pathID(r, id.ParsePaymentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.tally.DeletePayment(r.Context(), payID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"invoice": inv})
}

// Residual handles GET /api/pagamenti/fattura/{id}/residuo.
func (h *Handler) Residual(w http.ResponseWriter, r *http.Request) {
	invID, err := pathID(r, id.ParseInvoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.tally.Residual(r.Context(), invID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

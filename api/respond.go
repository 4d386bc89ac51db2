package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"error": message})
}

// writeError maps an engine error onto a status code and body. Unknown
// errors are logged and answered with a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var over *tally.OverpaymentError
	if errors.As(err, &over) {
		JSON(w, http.StatusBadRequest, map[string]any{
			"error":        err.Error(),
			"total":        over.Total,
			"already_paid": over.AlreadyPaid,
			"remaining":    over.Remaining,
		})
		return
	}
	var short *tally.InsufficientBalanceError
	if errors.As(err, &short) {
		JSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"budget": short.Budget,
			"have":   short.Have,
			"need":   short.Need,
		})
		return
	}

	switch {
	case errors.Is(err, tally.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, err.Error())
	case tally.IsForbidden(err):
		Error(w, http.StatusForbidden, err.Error())
	case tally.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tally.ErrPaymentChanged):
		Error(w, http.StatusConflict, err.Error())
	case tally.IsValidation(err), tally.IsRuleViolation(err):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return tally.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// pathID parses the {id} URL parameter with parse.
func pathID(r *http.Request, parse func(string) (id.ID, error)) (id.ID, error) {
	raw := chi.URLParam(r, "id")
	v, err := parse(raw)
	if err != nil {
		return id.Nil, tally.ValidationError{Field: "id", Message: err.Error()}
	}
	return v, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, tally.ValidationError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// Date accepts "2006-01-02" or RFC 3339 in request bodies.
type Date struct{ time.Time }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (d *Date) value() time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

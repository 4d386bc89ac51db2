package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/score"
)

// ──────────────────────────────────────────────────
// Scores
// ──────────────────────────────────────────────────

type scoreRequest struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Period string `json:"period"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// RecordScore handles POST /api/scores.
func (h *Handler) RecordScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s := &score.Score{
		UserID: req.UserID,
		Points: req.Points,
		Period: req.Period,
		Reason: req.Reason,
		Source: req.Source,
	}
	if err := h.tally.RecordScore(r.Context(), s); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, s)
}

// Leaderboard handles GET /api/scores/leaderboard?period=&limit=.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	board, err := h.tally.Leaderboard(r.Context(), r.URL.Query().Get("period"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"leaderboard": board})
}

// Balance handles GET /api/scores/balance?user_id=. No user means the
// caller.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.tally.Balance(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, bal)
}

// ListScores handles GET /api/scores/user/{userID}?period=&limit=&offset=.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	opts := score.ListOpts{Period: r.URL.Query().Get("period")}
	var err error
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	scores, err := h.tally.ListScores(r.Context(), userID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.tally.Balance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"balance": bal, "scores": scores})
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

// ListNotifications handles GET /api/notifications?unread=true&limit=.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.tally.ListNotifications(r.Context(), notification.ListOpts{
		UnreadOnly: queryBool(r, "unread"),
		Limit:      limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// MarkNotificationRead handles PUT /api/notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ntfID, err := pathID(r, id.ParseNotificationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tally.MarkNotificationRead(r.Context(), ntfID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Members
// ──────────────────────────────────────────────────

// ListMembers handles GET /api/members?role=.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.tally.ListMembers(r.Context(), member.Role(r.URL.Query().Get("role")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"members": list})
}

// AddMember handles POST /api/members.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string      `json:"name"`
		Email string      `json:"email"`
		Role  member.Role `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	m := &member.Member{Name: req.Name, Email: req.Email, Role: req.Role}
	if err := h.tally.AddMember(r.Context(), m); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, m)
}

// Me handles GET /api/members/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sc, _ := tally.ScopeFrom(r.Context())
	memberID, err := id.ParseMemberID(sc.UserID)
	if err != nil {
		h.writeError(w, r, tally.ErrUnauthorized)
		return
	}
	m, err := h.tally.GetMember(r.Context(), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, m)
}

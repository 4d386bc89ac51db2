package api

import (
	"context"
	"net/http"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/reward"
)

type rewardRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	ImageURL     *string `json:"image_url"`
	CostLifetime *int64  `json:"cost_lifetime"`
	CostMonthly  *int64  `json:"cost_monthly"`
	Quantity     *int64  `json:"quantity"`
	Available    *bool   `json:"available"`
}

type reviewRequest struct {
	Status reward.Status `json:"status"`
	Note   string        `json:"note"`
}

type pickupRequest struct {
	Pickup   reward.PickupMethod `json:"pickup"`
	Delivery *reward.Delivery    `json:"delivery"`
}

// ListRewards handles GET /api/rewards: the available catalogue as the
// caller sees it.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	list, err := h.tally.ListRewards(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"rewards": list})
}

// ListAllRewards handles GET /api/rewards/admin.
func (h *Handler) ListAllRewards(w http.ResponseWriter, r *http.Request) {
	list, err := h.tally.ListAllRewards(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"rewards": list})
}

// RewardStats handles GET /api/rewards/stats.
func (h *Handler) RewardStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.tally.RewardStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

// GetReward handles GET /api/rewards/{id}.
func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	rewardID, err := pathID(r, id.ParseRewardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rw, err := h.tally.GetReward(r.Context(), rewardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, rw)
}

// CreateReward handles POST /api/rewards. Quantity defaults to 1 and
// availability to true.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rw := &reward.Reward{
		Name:         deref(req.Name),
		Description:  deref(req.Description),
		ImageURL:     deref(req.ImageURL),
		CostLifetime: deref(req.CostLifetime),
		CostMonthly:  deref(req.CostMonthly),
		Quantity:     1,
		Available:    true,
	}
	if req.Quantity != nil {
		rw.Quantity = *req.Quantity
	}
	if req.Available != nil {
		rw.Available = *req.Available
	}
	if err := h.tally.CreateReward(r.Context(), rw); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, rw)
}

// UpdateReward handles PUT /api/rewards/{id}.
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	rewardID, err := pathID(r, id.ParseRewardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rw, err := h.tally.UpdateReward(r.Context(), rewardID, tally.RewardUpdate{
		Name:         req.Name,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		CostLifetime: req.CostLifetime,
		CostMonthly:  req.CostMonthly,
		Quantity:     req.Quantity,
		Available:    req.Available,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, rw)
}

// DeleteReward handles DELETE /api/rewards/{id}.
func (h *Handler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	rewardID, err := pathID(r, id.ParseRewardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tally.DeleteReward(r.Context(), rewardID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redeem handles POST /api/rewards/{id}/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	rewardID, err := pathID(r, id.ParseRewardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	red, err := h.tally.Redeem(r.Context(), rewardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, red)
}

// ListPendingRedemptions handles GET /api/rewards/redemptions/pending.
func (h *Handler) ListPendingRedemptions(w http.ResponseWriter, r *http.Request) {
	h.redemptions(w, r, h.tally.ListPendingRedemptions)
}

// ListMyRedemptions handles GET /api/rewards/redemptions/my.
func (h *Handler) ListMyRedemptions(w http.ResponseWriter, r *http.Request) {
	h.redemptions(w, r, h.tally.ListMyRedemptions)
}

// ListApprovedRedemptions handles GET /api/rewards/redemptions/approved.
func (h *Handler) ListApprovedRedemptions(w http.ResponseWriter, r *http.Request) {
	h.redemptions(w, r, h.tally.ListApprovedRedemptions)
}

func (h *Handler) redemptions(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]*reward.Redemption, error)) {
	reds, err := list(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"redemptions": reds})
}

// ReviewRedemption handles PUT /api/rewards/redemptions/{id} with
// {"status": "approved"|"rejected", "note": "..."}.
func (h *Handler) ReviewRedemption(w http.ResponseWriter, r *http.Request) {
	redID, err := pathID(r, id.ParseRedemptionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	red, err := h.tally.ReviewRedemption(r.Context(), redID, req.Status, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, red)
}

// ChoosePickup handles POST /api/rewards/redemptions/{id}/choose-pickup.
func (h *Handler) ChoosePickup(w http.ResponseWriter, r *http.Request) {
	redID, err := pathID(r, id.ParseRedemptionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req pickupRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	red, err := h.tally.ChoosePickup(r.Context(), redID, req.Pickup, req.Delivery)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, red)
}

// MarkDelivered handles PUT /api/rewards/redemptions/{id}/mark-delivered.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	redID, err := pathID(r, id.ParseRedemptionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	red, err := h.tally.MarkDelivered(r.Context(), redID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, red)
}

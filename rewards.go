package tally

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Reward Catalogue
// ──────────────────────────────────────────────────

// CreateReward adds r to the caller's tenant catalogue. Admin only.
func (t *Tally) CreateReward(ctx context.Context, r *reward.Reward) error {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return err
	}
	if err := validateReward(r); err != nil {
		return err
	}

	r.ID = id.NewRewardID()
	r.TenantID = sc.TenantID
	r.Claimed = 0
	r.Entity = types.NewEntity(t.now())

	if err := t.store.CreateReward(ctx, r); err != nil {
		return err
	}
	t.logger.Info("reward created", "tenant_id", r.TenantID, "reward_id", r.ID.String(), "name", r.Name)
	return nil
}

// RewardUpdate carries the fields UpdateReward changes. Nil fields are left
// alone.
type RewardUpdate struct {
	Name         *string
	Description  *string
	ImageURL     *string
	CostLifetime *int64
	CostMonthly  *int64
	Quantity     *int64
	Available    *bool
}

// UpdateReward edits a catalogue entry. Admin only. Quantity may not drop
// below the units already claimed.
func (t *Tally) UpdateReward(ctx context.Context, rewardID id.RewardID, upd RewardUpdate) (*reward.Reward, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	r, err := t.store.GetReward(ctx, sc.TenantID, rewardID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.ImageURL != nil {
		r.ImageURL = *upd.ImageURL
	}
	if upd.CostLifetime != nil {
		r.CostLifetime = *upd.CostLifetime
	}
	if upd.CostMonthly != nil {
		r.CostMonthly = *upd.CostMonthly
	}
	if upd.Quantity != nil {
		r.Quantity = *upd.Quantity
	}
	if upd.Available != nil {
		r.Available = *upd.Available
	}
	if err := validateReward(r); err != nil {
		return nil, err
	}
	if r.Quantity != reward.Unlimited && r.Quantity < r.Claimed {
		return nil, invalid("quantity", "%d units are already claimed", r.Claimed)
	}
	r.Touch(t.now())

	if err := t.store.UpdateReward(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteReward removes a catalogue entry with no redemption in progress.
// Admin only. Finished redemptions keep the reward name.
func (t *Tally) DeleteReward(ctx context.Context, rewardID id.RewardID) error {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return err
	}
	r, err := t.store.GetReward(ctx, sc.TenantID, rewardID)
	if err != nil {
		return err
	}
	inFlight, err := t.store.CountRedemptions(ctx, r.ID,
		reward.StatusPending, reward.StatusApproved, reward.StatusAwaitingPickup)
	if err != nil {
		return err
	}
	if inFlight > 0 {
		return ErrRewardInUse
	}
	if err := t.store.DeleteReward(ctx, sc.TenantID, rewardID); err != nil {
		return err
	}
	t.logger.Info("reward deleted", "tenant_id", sc.TenantID, "reward_id", rewardID.String())
	return nil
}

// GetReward returns a catalogue entry of the caller's tenant.
func (t *Tally) GetReward(ctx context.Context, rewardID id.RewardID) (*reward.Reward, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.GetReward(ctx, sc.TenantID, rewardID)
}

// ListRewards returns the available rewards as the caller sees them, with
// stock left and whether the caller already has a redemption open.
func (t *Tally) ListRewards(ctx context.Context) ([]reward.Listing, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	rewards, err := t.store.ListRewards(ctx, sc.TenantID, reward.ListOpts{AvailableOnly: true})
	if err != nil {
		return nil, err
	}
	open, err := t.store.ListRedemptions(ctx, sc.TenantID, reward.RedemptionListOpts{
		UserID:   sc.UserID,
		Statuses: reward.OpenStatuses,
	})
	if err != nil {
		return nil, err
	}
	redeemed := make(map[string]bool, len(open))
	for _, r := range open {
		redeemed[r.RewardID.String()] = true
	}

	out := make([]reward.Listing, 0, len(rewards))
	for _, r := range rewards {
		out = append(out, reward.Listing{
			Reward:          r,
			Remaining:       r.Remaining(),
			UserHasRedeemed: redeemed[r.ID.String()],
		})
	}
	return out, nil
}

// ListAllRewards returns the whole catalogue with redemption counts. Admin
// only.
func (t *Tally) ListAllRewards(ctx context.Context) ([]reward.AdminListing, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	rewards, err := t.store.ListRewards(ctx, sc.TenantID, reward.ListOpts{})
	if err != nil {
		return nil, err
	}
	out := make([]reward.AdminListing, 0, len(rewards))
	for _, r := range rewards {
		n, err := t.store.CountRedemptions(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, reward.AdminListing{Reward: r, Redemptions: n})
	}
	return out, nil
}

// RewardStats summarizes the catalogue and redemption pipeline.
type RewardStats struct {
	Rewards     int                   `json:"rewards"`
	Available   int                   `json:"available"`
	Redemptions map[reward.Status]int `json:"redemptions"`
}

// RewardStats counts the caller's tenant rewards and redemptions by status.
// Admin only.
func (t *Tally) RewardStats(ctx context.Context) (*RewardStats, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	rewards, err := t.store.ListRewards(ctx, sc.TenantID, reward.ListOpts{})
	if err != nil {
		return nil, err
	}
	reds, err := t.store.ListRedemptions(ctx, sc.TenantID, reward.RedemptionListOpts{})
	if err != nil {
		return nil, err
	}

	stats := &RewardStats{Rewards: len(rewards), Redemptions: make(map[reward.Status]int)}
	for _, r := range rewards {
		if r.Available {
			stats.Available++
		}
	}
	for _, r := range reds {
		stats.Redemptions[r.Status]++
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// Redemptions
// ──────────────────────────────────────────────────

// Redeem raises a redemption request for the caller. The caller needs
// CostLifetime points overall and CostMonthly points this period; points
// are checked, not spent. One unit of stock is held until the request is
// rejected. Admins are notified.
func (t *Tally) Redeem(ctx context.Context, rewardID id.RewardID) (*reward.Redemption, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}

	r, err := t.store.GetReward(ctx, sc.TenantID, rewardID)
	if err != nil {
		return nil, err
	}
	if !r.Available {
		return nil, ErrRewardUnavailable
	}
	if !r.InStock() {
		return nil, ErrRewardExhausted
	}

	open, err := t.store.ListRedemptions(ctx, sc.TenantID, reward.RedemptionListOpts{
		UserID:   sc.UserID,
		RewardID: r.ID,
		Statuses: reward.OpenStatuses,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, ErrDuplicateRedemption
	}

	bal, err := t.balance(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return nil, err
	}
	if bal.Total < r.CostLifetime {
		return nil, &InsufficientBalanceError{Budget: BudgetLifetime, Have: bal.Total, Need: r.CostLifetime}
	}
	if bal.Monthly < r.CostMonthly {
		return nil, &InsufficientBalanceError{Budget: BudgetMonthly, Have: bal.Monthly, Need: r.CostMonthly}
	}

	if err := t.store.ClaimReward(ctx, r.ID); err != nil {
		return nil, err
	}

	red := &reward.Redemption{
		ID:            id.NewRedemptionID(),
		TenantID:      sc.TenantID,
		RewardID:      r.ID,
		RewardName:    r.Name,
		UserID:        sc.UserID,
		Status:        reward.StatusPending,
		PointsTotal:   bal.Total,
		PointsMonthly: bal.Monthly,
		Entity:        types.NewEntity(t.now()),
	}
	if err := t.store.CreateRedemption(ctx, red); err != nil {
		t.release(ctx, r.ID)
		return nil, err
	}

	t.logger.Info("reward redeemed",
		"tenant_id", red.TenantID,
		"redemption_id", red.ID.String(),
		"reward_id", r.ID.String(),
		"user_id", red.UserID,
	)
	t.notifyAdmins(ctx, sc.TenantID, notification.KindRewardRequested,
		"New reward request",
		fmt.Sprintf("%s requested %q", t.memberName(ctx, sc.TenantID, sc.UserID), r.Name),
		"/rewards/redemptions/"+red.ID.String(),
	)
	t.plugins.EmitRedemptionRequested(ctx, red)
	return red, nil
}

// ReviewRedemption approves or rejects a pending redemption. Admin only.
// Rejection returns the held unit to stock. The requester is notified.
func (t *Tally) ReviewRedemption(ctx context.Context, redID id.RedemptionID, to reward.Status, note string) (*reward.Redemption, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	if to != reward.StatusApproved && to != reward.StatusRejected {
		return nil, invalid("status", "must be %s or %s", reward.StatusApproved, reward.StatusRejected)
	}

	red, err := t.transition(ctx, sc, redID, to, nil, func(r *reward.Redemption) error {
		now := t.now()
		r.AdminNote = note
		r.ReviewedBy = sc.UserID
		r.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if to == reward.StatusRejected {
		t.release(ctx, red.RewardID)
		msg := fmt.Sprintf("Your request for %q was rejected", red.RewardName)
		if note != "" {
			msg += ": " + note
		}
		t.notify(ctx, red.TenantID, red.UserID, notification.KindRewardRejected, "Reward request rejected", msg, "/rewards")
	} else {
		t.notify(ctx, red.TenantID, red.UserID, notification.KindRewardApproved, "Reward request approved",
			fmt.Sprintf("Your request for %q was approved. Choose how to receive it.", red.RewardName),
			"/rewards/redemptions/"+red.ID.String())
	}
	return red, nil
}

// ChoosePickup records how the requester wants an approved reward. Only
// the requester may call it. Home delivery needs address, city, postal code
// and phone. Admins are notified.
func (t *Tally) ChoosePickup(ctx context.Context, redID id.RedemptionID, method reward.PickupMethod, delivery *reward.Delivery) (*reward.Redemption, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, invalid("pickup", "must be %s or %s", reward.PickupHomeDelivery, reward.PickupInPerson)
	}
	if method == reward.PickupHomeDelivery {
		if delivery == nil {
			delivery = &reward.Delivery{}
		}
		if missing := delivery.Missing(); len(missing) > 0 {
			return nil, invalid("delivery", "missing %s", strings.Join(missing, ", "))
		}
	} else {
		delivery = nil
	}

	owner := func(r *reward.Redemption) error {
		if r.UserID != sc.UserID {
			return fmt.Errorf("%w: only the requester can choose the pickup", ErrForbidden)
		}
		return nil
	}
	red, err := t.transition(ctx, sc, redID, reward.StatusAwaitingPickup, owner, func(r *reward.Redemption) error {
		r.Pickup = method
		r.Delivery = delivery
		return nil
	})
	if err != nil {
		return nil, err
	}

	how := "in person"
	if method == reward.PickupHomeDelivery {
		how = "by home delivery to " + delivery.City
	}
	t.notifyAdmins(ctx, red.TenantID, notification.KindPickupChosen, "Reward ready to hand over",
		fmt.Sprintf("%s will receive %q %s", t.memberName(ctx, red.TenantID, red.UserID), red.RewardName, how),
		"/rewards/redemptions/"+red.ID.String())
	return red, nil
}

// MarkDelivered closes a redemption once the reward is handed over. Admin
// only. The requester is notified.
func (t *Tally) MarkDelivered(ctx context.Context, redID id.RedemptionID) (*reward.Redemption, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	red, err := t.transition(ctx, sc, redID, reward.StatusDelivered, nil, func(r *reward.Redemption) error {
		now := t.now()
		r.DeliveredAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.notify(ctx, red.TenantID, red.UserID, notification.KindRewardDelivered, "Reward delivered",
		fmt.Sprintf("%q has been delivered. Enjoy!", red.RewardName), "/rewards")
	return red, nil
}

// ListPendingRedemptions lists requests awaiting review. Admin only.
func (t *Tally) ListPendingRedemptions(ctx context.Context) ([]*reward.Redemption, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListRedemptions(ctx, sc.TenantID, reward.RedemptionListOpts{
		Statuses: []reward.Status{reward.StatusPending},
	})
}

// ListApprovedRedemptions lists approved requests not yet delivered. Admin
// only.
func (t *Tally) ListApprovedRedemptions(ctx context.Context) ([]*reward.Redemption, error) {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListRedemptions(ctx, sc.TenantID, reward.RedemptionListOpts{
		Statuses: []reward.Status{reward.StatusApproved, reward.StatusAwaitingPickup},
	})
}

// ListMyRedemptions lists the caller's own requests.
func (t *Tally) ListMyRedemptions(ctx context.Context) ([]*reward.Redemption, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListRedemptions(ctx, sc.TenantID, reward.RedemptionListOpts{UserID: sc.UserID})
}

// transition moves a redemption along one edge of its state machine.
// authorize, when set, runs before the state check so a caller without
// rights learns nothing about the redemption's status. mutate may fill the
// fields that come with the new status, or refuse.
func (t *Tally) transition(ctx context.Context, sc Scope, redID id.RedemptionID, to reward.Status, authorize, mutate func(*reward.Redemption) error) (*reward.Redemption, error) {
	red, err := t.store.GetRedemption(ctx, sc.TenantID, redID)
	if err != nil {
		return nil, err
	}
	if authorize != nil {
		if err := authorize(red); err != nil {
			return nil, err
		}
	}
	from := red.Status
	if !reward.CanTransition(from, to) {
		return nil, &TransitionError{From: string(from), To: string(to)}
	}
	if err := mutate(red); err != nil {
		return nil, err
	}
	red.Status = to
	red.Touch(t.now())

	if err := t.store.TransitionRedemption(ctx, red, from); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, &TransitionError{From: string(from), To: string(to)}
		}
		return nil, err
	}

	t.logger.Info("redemption transitioned",
		"tenant_id", red.TenantID,
		"redemption_id", red.ID.String(),
		"from", string(from),
		"to", string(to),
		"by", sc.UserID,
	)
	t.plugins.EmitRedemptionTransitioned(ctx, red, from)
	return red, nil
}

func (t *Tally) release(ctx context.Context, rewardID id.RewardID) {
	if err := t.store.ReleaseReward(ctx, rewardID); err != nil {
		t.logger.Error("reward unit not released", "reward_id", rewardID.String(), "error", err)
	}
}

func validateReward(r *reward.Reward) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return invalid("name", "is required")
	case r.CostLifetime < 0:
		return invalid("cost_lifetime", "cannot be negative")
	case r.CostMonthly < 0:
		return invalid("cost_monthly", "cannot be negative")
	case r.Quantity < reward.Unlimited:
		return invalid("quantity", "must be %d for unlimited or zero and above", reward.Unlimited)
	}
	return nil
}

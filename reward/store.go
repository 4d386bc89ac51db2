package reward

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists the catalogue and redemptions.
type Store interface {
	CreateReward(ctx context.Context, r *Reward) error
	GetReward(ctx context.Context, tenantID string, rewardID id.RewardID) (*Reward, error)
	ListRewards(ctx context.Context, tenantID string, opts ListOpts) ([]*Reward, error)

	// UpdateReward rewrites the catalogue fields. Claimed is not touched.
	UpdateReward(ctx context.Context, r *Reward) error
	DeleteReward(ctx context.Context, tenantID string, rewardID id.RewardID) error

	// ClaimReward takes one unit, refusing with ErrRewardExhausted when none
	// is left. ReleaseReward gives one back.
	ClaimReward(ctx context.Context, rewardID id.RewardID) error
	ReleaseReward(ctx context.Context, rewardID id.RewardID) error

	// CreateRedemption refuses with ErrDuplicateRedemption when the user
	// already holds an open redemption for the reward.
	CreateRedemption(ctx context.Context, r *Redemption) error
	GetRedemption(ctx context.Context, tenantID string, redID id.RedemptionID) (*Redemption, error)
	ListRedemptions(ctx context.Context, tenantID string, opts RedemptionListOpts) ([]*Redemption, error)
	CountRedemptions(ctx context.Context, rewardID id.RewardID, statuses ...Status) (int, error)

	// TransitionRedemption writes r only if the stored status still equals
	// from, refusing with ErrInvalidTransition otherwise.
	TransitionRedemption(ctx context.Context, r *Redemption, from Status) error
}

// ListOpts filters ListRewards. Results are ordered by name.
type ListOpts struct {
	AvailableOnly bool
}

// RedemptionListOpts filters ListRedemptions. Results are newest first.
type RedemptionListOpts struct {
	UserID   string
	RewardID id.RewardID
	Statuses []Status
	Limit    int
	Offset   int
}

// Matches applies opts to a single redemption.
func (o RedemptionListOpts) Matches(r *Redemption) bool {
	if o.UserID != "" && r.UserID != o.UserID {
		return false
	}
	if !o.RewardID.IsNil() && r.RewardID.String() != o.RewardID.String() {
		return false
	}
	if len(o.Statuses) == 0 {
		return true
	}
	for _, s := range o.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

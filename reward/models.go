// Package reward models the reward catalogue and the redemption requests
// users raise against it.
package reward

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Unlimited is the Quantity of a reward with no stock limit.
const Unlimited int64 = -1

// Reward is a catalogue item users can redeem with points. Redeeming it
// requires both CostLifetime points overall and CostMonthly points in the
// current period. Points are checked, not spent.
type Reward struct {
	types.Entity

	ID           id.RewardID `json:"id"`
	TenantID     string      `json:"tenant_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	CostLifetime int64       `json:"cost_lifetime"`
	CostMonthly  int64       `json:"cost_monthly"`
	Quantity     int64       `json:"quantity"` // Unlimited or >= 0
	Claimed      int64       `json:"claimed"`  // units held by non-rejected redemptions
	Available    bool        `json:"available"`
}

// Remaining returns the units left, or Unlimited.
func (r *Reward) Remaining() int64 {
	if r.Quantity == Unlimited {
		return Unlimited
	}
	return max(r.Quantity-r.Claimed, 0)
}

// InStock reports whether another unit can be claimed.
func (r *Reward) InStock() bool {
	return r.Quantity == Unlimited || r.Quantity-r.Claimed > 0
}

// Listing is a reward as shown to one user.
type Listing struct {
	*Reward
	Remaining       int64 `json:"remaining"`
	UserHasRedeemed bool  `json:"user_has_redeemed"`
}

// AdminListing is a reward with its redemption count.
type AdminListing struct {
	*Reward
	Redemptions int `json:"redemptions"`
}

// ──────────────────────────────────────────────────
// Redemptions
// ──────────────────────────────────────────────────

// Status is the state of a redemption.
//
//	pending -> approved -> awaiting_pickup -> delivered
//	pending -> rejected
type Status string

const (
	StatusPending        Status = "pending"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusAwaitingPickup Status = "awaiting_pickup"
	StatusDelivered      Status = "delivered"
)

var transitions = map[Status][]Status{
	StatusPending:        {StatusApproved, StatusRejected},
	StatusApproved:       {StatusAwaitingPickup},
	StatusAwaitingPickup: {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusAwaitingPickup, StatusDelivered:
		return true
	}
	return false
}

// Open reports whether s blocks the same user from redeeming the same
// reward again.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OpenStatuses are the statuses for which Open is true.
var OpenStatuses = []Status{StatusPending, StatusApproved}

// PickupMethod is how an approved reward reaches the user.
type PickupMethod string

const (
	PickupHomeDelivery PickupMethod = "consegna_casa"
	PickupInPerson     PickupMethod = "ritiro_persona"
)

// Valid reports whether m is a known method.
func (m PickupMethod) Valid() bool {
	return m == PickupHomeDelivery || m == PickupInPerson
}

// Delivery is the shipping address for home delivery.
type Delivery struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
	Notes      string `json:"notes,omitempty"`
}

// Missing returns the JSON names of required fields that are blank.
func (d Delivery) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"address", d.Address},
		{"city", d.City},
		{"postal_code", d.PostalCode},
		{"phone", d.Phone},
	} {
		if f.v == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Redemption is a user's request to exchange points for a reward.
type Redemption struct {
	types.Entity

	ID         id.RedemptionID `json:"id"`
	TenantID   string          `json:"tenant_id"`
	RewardID   id.RewardID     `json:"reward_id"`
	RewardName string          `json:"reward_name"`
	UserID     string          `json:"user_id"`
	Status     Status          `json:"status"`

	// Points balance at request time.
	PointsTotal   int64 `json:"points_total"`
	PointsMonthly int64 `json:"points_monthly"`

	Pickup   PickupMethod `json:"pickup,omitempty"`
	Delivery *Delivery    `json:"delivery,omitempty"`

	AdminNote   string     `json:"admin_note,omitempty"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Package store defines the aggregate persistence interface for Tally.
// Backends live in the subpackages memory, postgres, sqlite and mongo.
package store

import (
	"context"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
)

// Store is implemented by every backend. Per-entity method sets are
// declared in the entity packages with prefixed names, so embedding them
// cannot collide.
type Store interface {
	invoice.Store
	payment.Store
	score.Store
	reward.Store
	member.Store
	notification.Store

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

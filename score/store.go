package score

import (
	"context"
	"time"
)

// Store persists scores. It has no update or delete.
type Store interface {
	CreateScore(ctx context.Context, s *Score) error
	ListScores(ctx context.Context, tenantID, userID string, opts ListOpts) ([]*Score, error)

	// SumPoints totals a user's points. An empty period means all time.
	SumPoints(ctx context.Context, tenantID, userID, period string) (int64, error)

	// SumPointsSince totals a user's points created at or after since.
	SumPointsSince(ctx context.Context, tenantID, userID string, since time.Time) (int64, error)

	// Leaderboard ranks users by summed points, highest first. An empty
	// period means all time.
	Leaderboard(ctx context.Context, tenantID, period string, limit int) ([]Standing, error)
}

// ListOpts filters ListScores. Results are newest first.
type ListOpts struct {
	Period string
	Limit  int
	Offset int
}

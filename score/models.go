// Package score models the append-only points ledger that reward balances
// are derived from.
package score

import (
	"time"

	"github.com/xraph/tally/id"
)

// PeriodLayout is the time layout of a Period ("2025-03").
const PeriodLayout = "2006-01"

// Score is one award of points to a user. Scores are never updated or
// deleted, and every balance is a sum over them.
type Score struct {
	ID        id.ScoreID `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	Points    int64      `json:"points"`
	Period    string     `json:"period"`
	Reason    string     `json:"reason,omitempty"`
	Source    string     `json:"source,omitempty"` // e.g. the task that earned it
	CreatedAt time.Time  `json:"created_at"`
}

// Balance is a user's spendable points.
type Balance struct {
	UserID  string `json:"user_id"`
	Total   int64  `json:"total"`   // all time
	Monthly int64  `json:"monthly"` // current period only
	Period  string `json:"period"`
}

// Standing is one row of a leaderboard.
type Standing struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}

// PeriodOf returns the period t falls in.
func PeriodOf(t time.Time) string {
	return t.Format(PeriodLayout)
}

// ValidPeriod reports whether p is a well-formed period.
func ValidPeriod(p string) bool {
	_, err := time.Parse(PeriodLayout, p)
	return err == nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

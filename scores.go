package tally

import (
	"context"
	"fmt"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/score"
)

// DefaultLeaderboardSize is used when Leaderboard is asked for no limit.
const DefaultLeaderboardSize = 10

// ──────────────────────────────────────────────────
// Scores
// ──────────────────────────────────────────────────

// RecordScore awards points to a member of the caller's tenant. Admin only.
// The award is refused with ErrDailyScoreLimit when it would take the
// member past the daily cap.
func (t *Tally) RecordScore(ctx context.Context, s *score.Score) error {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return err
	}
	if s.Points <= 0 {
		return invalid("points", "must be greater than zero")
	}
	memberID, err := id.ParseMemberID(s.UserID)
	if err != nil {
		return invalid("user_id", "%v", err)
	}
	if _, err := t.store.GetMember(ctx, sc.TenantID, memberID); err != nil {
		return err
	}

	now := t.now()
	if s.Period == "" {
		s.Period = score.PeriodOf(now)
	} else if !score.ValidPeriod(s.Period) {
		return invalid("period", "must be formatted as YYYY-MM")
	}

	if t.dailyScoreLimit > 0 {
		today, err := t.store.SumPointsSince(ctx, sc.TenantID, s.UserID, score.StartOfDay(now))
		if err != nil {
			return err
		}
		if today+s.Points > t.dailyScoreLimit {
			return fmt.Errorf("%w: %d of %d points already awarded today", ErrDailyScoreLimit, today, t.dailyScoreLimit)
		}
	}

	s.ID = id.NewScoreID()
	s.TenantID = sc.TenantID
	s.CreatedAt = now
	if err := t.store.CreateScore(ctx, s); err != nil {
		return err
	}

	t.logger.Info("score recorded",
		"tenant_id", s.TenantID,
		"user_id", s.UserID,
		"points", s.Points,
		"period", s.Period,
	)
	t.plugins.EmitScoreRecorded(ctx, s)
	return nil
}

// ListScores lists a member's scores, newest first. An empty userID means
// the caller; only admins may read another member's scores.
func (t *Tally) ListScores(ctx context.Context, userID string, opts score.ListOpts) ([]*score.Score, error) {
	sc, userID, err := t.subject(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.store.ListScores(ctx, sc.TenantID, userID, opts)
}

// Balance returns a member's all-time and current-period points. An empty
// userID means the caller; only admins may read another member's balance.
func (t *Tally) Balance(ctx context.Context, userID string) (*score.Balance, error) {
	sc, userID, err := t.subject(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.balance(ctx, sc.TenantID, userID)
}

func (t *Tally) balance(ctx context.Context, tenantID, userID string) (*score.Balance, error) {
	period := score.PeriodOf(t.now())
	total, err := t.store.SumPoints(ctx, tenantID, userID, "")
	if err != nil {
		return nil, err
	}
	monthly, err := t.store.SumPoints(ctx, tenantID, userID, period)
	if err != nil {
		return nil, err
	}
	return &score.Balance{UserID: userID, Total: total, Monthly: monthly, Period: period}, nil
}

// Leaderboard ranks the caller's tenant members by points. An empty period
// means all time.
func (t *Tally) Leaderboard(ctx context.Context, period string, limit int) ([]score.Standing, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	if period != "" && !score.ValidPeriod(period) {
		return nil, invalid("period", "must be formatted as YYYY-MM")
	}
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	return t.store.Leaderboard(ctx, sc.TenantID, period, limit)
}

// subject resolves whose data a read is about.
func (t *Tally) subject(ctx context.Context, userID string) (Scope, string, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return Scope{}, "", err
	}
	if userID == "" || userID == sc.UserID {
		return sc, sc.UserID, nil
	}
	if !sc.IsAdmin() {
		return Scope{}, "", fmt.Errorf("%w: cannot read another member's points", ErrForbidden)
	}
	return sc, userID, nil
}

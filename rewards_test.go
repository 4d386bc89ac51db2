package tally_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
)

func (f *fixture) award(t *testing.T, userID string, points int64, period string) {
	t.Helper()
	require.NoError(t, f.engine.RecordScore(f.admin, &score.Score{UserID: userID, Points: points, Period: period, Reason: "task"}))
}

func (f *fixture) newReward(t *testing.T, lifetime, monthly, quantity int64) *reward.Reward {
	t.Helper()
	r := &reward.Reward{Name: "Gift card", CostLifetime: lifetime, CostMonthly: monthly, Quantity: quantity, Available: true}
	require.NoError(t, f.engine.CreateReward(f.admin, r))
	return r
}

func (f *fixture) notifications(t *testing.T, ctx context.Context) []*notification.Notification {
	t.Helper()
	list, err := f.engine.ListNotifications(ctx, notification.ListOpts{})
	require.NoError(t, err)
	return list
}

// ──────────────────────────────────────────────────
// Scores
// ──────────────────────────────────────────────────

func TestRecordScore(t *testing.T) {
	f := newFixture(t)

	err := f.engine.RecordScore(f.alice, &score.Score{UserID: f.aliceID, Points: 10})
	assert.ErrorIs(t, err, tally.ErrForbidden)

	err = f.engine.RecordScore(f.admin, &score.Score{UserID: f.aliceID, Points: 0})
	assert.True(t, tally.IsValidation(err))

	err = f.engine.RecordScore(f.admin, &score.Score{UserID: f.aliceID, Points: 10, Period: "March"})
	assert.True(t, tally.IsValidation(err))

	err = f.engine.RecordScore(f.admin, &score.Score{UserID: id.NewMemberID().String(), Points: 10})
	assert.ErrorIs(t, err, tally.ErrMemberNotFound)

	f.award(t, f.aliceID, 300, "2025-02")
	f.award(t, f.aliceID, 120, "")

	bal, err := f.engine.Balance(f.alice, "")
	require.NoError(t, err)
	assert.Equal(t, int64(420), bal.Total)
	assert.Equal(t, int64(120), bal.Monthly)
	assert.Equal(t, "2025-03", bal.Period)

	scores, err := f.engine.ListScores(f.alice, "", score.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestBalanceOfAnotherMember(t *testing.T) {
	f := newFixture(t)
	f.award(t, f.bobID, 50, "")

	_, err := f.engine.Balance(f.alice, f.bobID)
	assert.ErrorIs(t, err, tally.ErrForbidden)

	bal, err := f.engine.Balance(f.admin, f.bobID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal.Total)
}

func TestDailyScoreLimit(t *testing.T) {
	f := newFixture(t, tally.WithDailyScoreLimit(150))

	f.award(t, f.aliceID, 100, "")
	err := f.engine.RecordScore(f.admin, &score.Score{UserID: f.aliceID, Points: 60})
	assert.ErrorIs(t, err, tally.ErrDailyScoreLimit)

	f.award(t, f.aliceID, 50, "")
	f.award(t, f.bobID, 150, "")

	f.clock.Advance(24 * time.Hour)
	f.award(t, f.aliceID, 100, "")
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t)
	f.award(t, f.aliceID, 100, "2025-02")
	f.award(t, f.bobID, 80, "")
	f.award(t, f.aliceID, 20, "")

	all, err := f.engine.Leaderboard(f.bob, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, score.Standing{Rank: 1, UserID: f.aliceID, Points: 120}, all[0])
	assert.Equal(t, score.Standing{Rank: 2, UserID: f.bobID, Points: 80}, all[1])

	march, err := f.engine.Leaderboard(f.bob, "2025-03", 1)
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, f.bobID, march[0].UserID)
}

// ──────────────────────────────────────────────────
// Redemptions
// ──────────────────────────────────────────────────

func TestRedeemChecksBothBudgets(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 500, 100, reward.Unlimited)

	f.award(t, f.aliceID, 420, "2025-02")
	f.award(t, f.aliceID, 80, "")

	_, err := f.engine.Redeem(f.alice, r.ID)
	var short *tally.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, tally.BudgetMonthly, short.Budget)
	assert.Equal(t, int64(80), short.Have)
	assert.Equal(t, int64(100), short.Need)

	_, err = f.engine.Redeem(f.bob, r.ID)
	require.ErrorAs(t, err, &short)
	assert.Equal(t, tally.BudgetLifetime, short.Budget)

	f.award(t, f.aliceID, 20, "")
	red, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.StatusPending, red.Status)
	assert.Equal(t, int64(520), red.PointsTotal)
	assert.Equal(t, int64(100), red.PointsMonthly)

	bal, err := f.engine.Balance(f.alice, "")
	require.NoError(t, err)
	assert.Equal(t, int64(520), bal.Total, "points are checked, not spent")
}

func TestRedeemRejectsDuplicateOpenRequest(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, 5)

	first, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	_, err = f.engine.Redeem(f.alice, r.ID)
	assert.ErrorIs(t, err, tally.ErrDuplicateRedemption)

	_, err = f.engine.ReviewRedemption(f.admin, first.ID, reward.StatusApproved, "")
	require.NoError(t, err)
	_, err = f.engine.Redeem(f.alice, r.ID)
	assert.ErrorIs(t, err, tally.ErrDuplicateRedemption, "approved is still open")

	_, err = f.engine.ChoosePickup(f.alice, first.ID, reward.PickupInPerson, nil)
	require.NoError(t, err)
	_, err = f.engine.Redeem(f.alice, r.ID)
	assert.NoError(t, err, "awaiting pickup no longer blocks")
}

func TestRedeemStock(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, 1)

	red, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	_, err = f.engine.Redeem(f.bob, r.ID)
	assert.ErrorIs(t, err, tally.ErrRewardExhausted)

	_, err = f.engine.ReviewRedemption(f.admin, red.ID, reward.StatusRejected, "out of budget")
	require.NoError(t, err)

	_, err = f.engine.Redeem(f.bob, r.ID)
	require.NoError(t, err)

	got, err := f.engine.GetReward(f.bob, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Remaining())
}

func TestConcurrentRedeemRespectsStock(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, 3)

	users := make([]context.Context, 0, 12)
	for range 12 {
		ctx, _ := f.addMember(t, "acme", "Worker", "")
		users = append(users, ctx)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, ctx := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Redeem(ctx, r.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, tally.ErrRewardExhausted)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, ok)
}

func TestRedeemUnavailable(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, reward.Unlimited)

	off := false
	_, err := f.engine.UpdateReward(f.admin, r.ID, tally.RewardUpdate{Available: &off})
	require.NoError(t, err)

	_, err = f.engine.Redeem(f.alice, r.ID)
	assert.ErrorIs(t, err, tally.ErrRewardUnavailable)

	list, err := f.engine.ListRewards(f.alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedemptionWorkflow(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, reward.Unlimited)

	red, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	adminInbox := f.notifications(t, f.admin)
	require.Len(t, adminInbox, 1)
	assert.Equal(t, notification.KindRewardRequested, adminInbox[0].Kind)
	assert.Contains(t, adminInbox[0].Message, "Alice")

	_, err = f.engine.ReviewRedemption(f.alice, red.ID, reward.StatusApproved, "")
	assert.ErrorIs(t, err, tally.ErrForbidden)

	_, err = f.engine.MarkDelivered(f.admin, red.ID)
	assert.ErrorIs(t, err, tally.ErrInvalidTransition)

	approved, err := f.engine.ReviewRedemption(f.admin, red.ID, reward.StatusApproved, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, reward.StatusApproved, approved.Status)
	assert.Equal(t, f.adminID, approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)

	aliceInbox := f.notifications(t, f.alice)
	require.Len(t, aliceInbox, 1)
	assert.Equal(t, notification.KindRewardApproved, aliceInbox[0].Kind)

	_, err = f.engine.ChoosePickup(f.bob, red.ID, reward.PickupInPerson, nil)
	assert.ErrorIs(t, err, tally.ErrForbidden)

	_, err = f.engine.ChoosePickup(f.alice, red.ID, reward.PickupHomeDelivery, &reward.Delivery{Address: "Via Roma 1"})
	require.Error(t, err)
	assert.True(t, tally.IsValidation(err))
	assert.Contains(t, err.Error(), "postal_code")

	delivery := &reward.Delivery{Address: "Via Roma 1", City: "Milano", PostalCode: "20100", Phone: "+39 02 000"}
	waiting, err := f.engine.ChoosePickup(f.alice, red.ID, reward.PickupHomeDelivery, delivery)
	require.NoError(t, err)
	assert.Equal(t, reward.StatusAwaitingPickup, waiting.Status)
	assert.Equal(t, "Milano", waiting.Delivery.City)
	assert.Len(t, f.notifications(t, f.admin), 2)

	approvedList, err := f.engine.ListApprovedRedemptions(f.admin)
	require.NoError(t, err)
	assert.Len(t, approvedList, 1)

	done, err := f.engine.MarkDelivered(f.admin, red.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.StatusDelivered, done.Status)
	require.NotNil(t, done.DeliveredAt)
	assert.Len(t, f.notifications(t, f.alice), 2)

	_, err = f.engine.ReviewRedemption(f.admin, red.ID, reward.StatusRejected, "")
	var terr *tally.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, string(reward.StatusDelivered), terr.From)

	mine, err := f.engine.ListMyRedemptions(f.alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, reward.StatusDelivered, mine[0].Status)
}

func TestChoosePickupChecksOwnerFirst(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, reward.Unlimited)

	red, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	// Still pending: a stranger is refused for who they are, not for the
	// redemption's state.
	_, err = f.engine.ChoosePickup(f.bob, red.ID, reward.PickupInPerson, nil)
	assert.ErrorIs(t, err, tally.ErrForbidden)
	assert.NotErrorIs(t, err, tally.ErrInvalidTransition)

	_, err = f.engine.ChoosePickup(f.alice, red.ID, reward.PickupInPerson, nil)
	assert.ErrorIs(t, err, tally.ErrInvalidTransition)
}

func TestReviewRejectsUnknownTarget(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, reward.Unlimited)
	red, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	_, err = f.engine.ReviewRedemption(f.admin, red.ID, reward.StatusDelivered, "")
	assert.True(t, tally.IsValidation(err))

	pending, err := f.engine.ListPendingRedemptions(f.admin)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRewardListings(t *testing.T) {
	f := newFixture(t)
	a := f.newReward(t, 0, 0, 2)
	f.newReward(t, 0, 0, reward.Unlimited)

	_, err := f.engine.Redeem(f.alice, a.ID)
	require.NoError(t, err)

	list, err := f.engine.ListRewards(f.alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, l := range list {
		if l.ID.String() == a.ID.String() {
			assert.True(t, l.UserHasRedeemed)
			assert.Equal(t, int64(1), l.Remaining)
		} else {
			assert.False(t, l.UserHasRedeemed)
			assert.Equal(t, reward.Unlimited, l.Remaining)
		}
	}

	_, err = f.engine.ListAllRewards(f.alice)
	assert.ErrorIs(t, err, tally.ErrForbidden)

	admin, err := f.engine.ListAllRewards(f.admin)
	require.NoError(t, err)
	total := 0
	for _, l := range admin {
		total += l.Redemptions
	}
	assert.Equal(t, 1, total)

	stats, err := f.engine.RewardStats(f.admin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rewards)
	assert.Equal(t, 1, stats.Redemptions[reward.StatusPending])
}

func TestRewardUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, 2)
	red, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	zero := int64(0)
	_, err = f.engine.UpdateReward(f.admin, r.ID, tally.RewardUpdate{Quantity: &zero})
	assert.True(t, tally.IsValidation(err), "cannot drop below claimed units")

	assert.ErrorIs(t, f.engine.DeleteReward(f.admin, r.ID), tally.ErrRewardInUse)

	_, err = f.engine.ReviewRedemption(f.admin, red.ID, reward.StatusRejected, "")
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteReward(f.admin, r.ID))

	_, err = f.engine.GetReward(f.admin, r.ID)
	assert.ErrorIs(t, err, tally.ErrRewardNotFound)
}

func TestCreateRewardValidation(t *testing.T) {
	f := newFixture(t)
	for _, r := range []*reward.Reward{
		{Name: ""},
		{Name: "x", CostLifetime: -1},
		{Name: "x", CostMonthly: -1},
		{Name: "x", Quantity: -2},
	} {
		assert.True(t, tally.IsValidation(f.engine.CreateReward(f.admin, r)), "%+v", r)
	}
	assert.ErrorIs(t, f.engine.CreateReward(f.alice, &reward.Reward{Name: "x"}), tally.ErrForbidden)
}

func TestMarkNotificationRead(t *testing.T) {
	f := newFixture(t)
	r := f.newReward(t, 0, 0, reward.Unlimited)
	_, err := f.engine.Redeem(f.alice, r.ID)
	require.NoError(t, err)

	inbox := f.notifications(t, f.admin)
	require.Len(t, inbox, 1)

	assert.ErrorIs(t, f.engine.MarkNotificationRead(f.bob, inbox[0].ID), tally.ErrNotificationNotFound)
	require.NoError(t, f.engine.MarkNotificationRead(f.admin, inbox[0].ID))

	unread, err := f.engine.ListNotifications(f.admin, notification.ListOpts{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

// ──────────────────────────────────────────────────
// Overdue sweep
// ──────────────────────────────────────────────────

type overdueRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *overdueRecorder) Name() string { return "overdue-recorder" }

func (r *overdueRecorder) OnInvoiceOverdue(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv.Number)
	return nil
}

func TestSweepOverdue(t *testing.T) {
	rec := &overdueRecorder{}
	f := newFixture(t, tally.WithPlugin(rec))

	late := f.createInvoice(t, 1000)
	paid := f.createInvoice(t, 1000)
	_, err := f.pay(f.admin, paid, 1000)
	require.NoError(t, err)

	n, err := f.engine.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due yet")

	f.clock.Advance(45 * 24 * time.Hour)

	n, err = f.engine.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.engine.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "each invoice is flagged once")

	assert.Equal(t, []string{late.Number}, rec.seen)

	inbox := f.notifications(t, f.admin)
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.KindInvoiceOverdue, inbox[0].Kind)
	assert.Empty(t, f.notifications(t, f.alice), "only admins hear about overdue invoices")
}

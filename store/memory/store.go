// Package memory is an in-process store.Store. Records are copied in and
// out, so callers never share memory with the store. It is used by tests
// and by the standalone server when no database is configured.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
	"github.com/xraph/tally/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex

	invoices      map[string]*invoice.Invoice
	payments      map[string]*payment.Payment
	scores        []*score.Score
	rewards       map[string]*reward.Reward
	redemptions   map[string]*reward.Redemption
	members       map[string]*member.Member
	notifications map[string]*notification.Notification
}

// New returns an empty store.
func New() *Store {
	return &Store{
		invoices:      make(map[string]*invoice.Invoice),
		payments:      make(map[string]*payment.Payment),
		rewards:       make(map[string]*reward.Reward),
		redemptions:   make(map[string]*reward.Redemption),
		members:       make(map[string]*member.Member),
		notifications: make(map[string]*notification.Notification),
	}
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close() error                  { return nil }

// ──────────────────────────────────────────────────
// Invoice Store
// ──────────────────────────────────────────────────

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	for _, other := range s.invoices {
		if other.TenantID == inv.TenantID && other.Year == inv.Year && other.Sequence == inv.Sequence {
			return tally.ErrInvoiceNumberTaken
		}
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invID.String()]
	if !ok || inv.TenantID != tenantID {
		return nil, tally.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListInvoices(_ context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.TenantID == tenantID && opts.Matches(inv) {
			out = append(out, cloneInvoice(inv))
		}
	}
	slices.SortFunc(out, func(a, b *invoice.Invoice) int {
		if c := cmp.Compare(b.Year, a.Year); c != 0 {
			return c
		}
		return cmp.Compare(b.Sequence, a.Sequence)
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoices[inv.ID.String()]
	if !ok || existing.TenantID != inv.TenantID {
		return tally.ErrInvoiceNotFound
	}
	if existing.PaymentStatus == invoice.StatusPaid {
		return tally.ErrInvoicePaid
	}
	if inv.Total.Amount < existing.AmountPaid.Amount {
		return fmt.Errorf("%w: total below amount paid", tally.ErrInvalidInput)
	}

	updated := cloneInvoice(inv)
	updated.SetPaid(existing.AmountPaid.Amount)
	updated.OverdueNotifiedAt = existing.OverdueNotifiedAt
	s.invoices[inv.ID.String()] = updated
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, tenantID string, invID id.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok || inv.TenantID != tenantID {
		return tally.ErrInvoiceNotFound
	}
	if inv.AmountPaid.Amount != 0 {
		return tally.ErrInvoiceHasPayments
	}
	delete(s.invoices, invID.String())
	for k, p := range s.payments {
		if p.InvoiceID.String() == invID.String() {
			delete(s.payments, k)
		}
	}
	return nil
}

func (s *Store) LastInvoiceSequence(_ context.Context, tenantID string, year int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := 0
	for _, inv := range s.invoices {
		if inv.TenantID == tenantID && inv.Year == year {
			last = max(last, inv.Sequence)
		}
	}
	return last, nil
}

func (s *Store) AdjustInvoicePaid(_ context.Context, tenantID string, invID id.InvoiceID, delta int64) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok || inv.TenantID != tenantID {
		return nil, tally.ErrInvoiceNotFound
	}
	paid := inv.AmountPaid.Amount + delta
	if paid < 0 || paid > inv.Total.Amount {
		return nil, tally.ErrOverpayment
	}
	inv.SetPaid(paid)
	inv.Touch(now())
	return cloneInvoice(inv), nil
}

func (s *Store) ListOverdueInvoices(_ context.Context, at time.Time, limit int) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.OverdueNotifiedAt == nil && inv.IsOverdue(at) {
			out = append(out, cloneInvoice(inv))
		}
	}
	slices.SortFunc(out, func(a, b *invoice.Invoice) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return page(out, limit, 0), nil
}

func (s *Store) MarkOverdueNotified(_ context.Context, invID id.InvoiceID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return tally.ErrInvoiceNotFound
	}
	at = at.UTC()
	inv.OverdueNotifiedAt = &at
	return nil
}

// ──────────────────────────────────────────────────
// Payment Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	if _, ok := s.invoices[p.InvoiceID.String()]; !ok {
		return tally.ErrInvoiceNotFound
	}
	cp := *p
	s.payments[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPayment(_ context.Context, tenantID string, payID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[payID.String()]
	if !ok || p.TenantID != tenantID {
		return nil, tally.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPayments(_ context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Payment
	for _, p := range s.payments {
		if p.TenantID != tenantID {
			continue
		}
		if !opts.InvoiceID.IsNil() && p.InvoiceID.String() != opts.InvoiceID.String() {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *payment.Payment) int {
		if c := b.PaidAt.Compare(a.PaidAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdatePayment(_ context.Context, p *payment.Payment, prevAmount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.payments[p.ID.String()]
	if !ok || existing.TenantID != p.TenantID {
		return tally.ErrPaymentNotFound
	}
	if existing.Amount.Amount != prevAmount {
		return tally.ErrPaymentChanged
	}
	cp := *p
	cp.InvoiceID = existing.InvoiceID
	s.payments[p.ID.String()] = &cp
	return nil
}

func (s *Store) DeletePayment(_ context.Context, tenantID string, payID id.PaymentID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[payID.String()]
	if !ok || p.TenantID != tenantID {
		return tally.ErrPaymentNotFound
	}
	if p.Amount.Amount != amount {
		return tally.ErrPaymentChanged
	}
	delete(s.payments, payID.String())
	return nil
}

func (s *Store) SumPayments(_ context.Context, invID id.InvoiceID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, p := range s.payments {
		if p.InvoiceID.String() == invID.String() {
			sum += p.Amount.Amount
		}
	}
	return sum, nil
}

// ──────────────────────────────────────────────────
// Score Store
// ──────────────────────────────────────────────────

func (s *Store) CreateScore(_ context.Context, sc *score.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sc
	s.scores = append(s.scores, &cp)
	return nil
}

func (s *Store) ListScores(_ context.Context, tenantID, userID string, opts score.ListOpts) ([]*score.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*score.Score
	for _, sc := range s.scores {
		if sc.TenantID != tenantID || sc.UserID != userID {
			continue
		}
		if opts.Period != "" && sc.Period != opts.Period {
			continue
		}
		cp := *sc
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *score.Score) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (s *Store) SumPoints(_ context.Context, tenantID, userID, period string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, sc := range s.scores {
		if sc.TenantID == tenantID && sc.UserID == userID && (period == "" || sc.Period == period) {
			sum += sc.Points
		}
	}
	return sum, nil
}

func (s *Store) SumPointsSince(_ context.Context, tenantID, userID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, sc := range s.scores {
		if sc.TenantID == tenantID && sc.UserID == userID && !sc.CreatedAt.Before(since) {
			sum += sc.Points
		}
	}
	return sum, nil
}

func (s *Store) Leaderboard(_ context.Context, tenantID, period string, limit int) ([]score.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64)
	for _, sc := range s.scores {
		if sc.TenantID == tenantID && (period == "" || sc.Period == period) {
			totals[sc.UserID] += sc.Points
		}
	}

	out := make([]score.Standing, 0, len(totals))
	for user, points := range totals {
		out = append(out, score.Standing{UserID: user, Points: points})
	}
	slices.SortFunc(out, func(a, b score.Standing) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	out = page(out, limit, 0)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Reward Store
// ──────────────────────────────────────────────────

func (s *Store) CreateReward(_ context.Context, r *reward.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rewards[r.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *r
	s.rewards[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetReward(_ context.Context, tenantID string, rewardID id.RewardID) (*reward.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rewards[rewardID.String()]
	if !ok || r.TenantID != tenantID {
		return nil, tally.ErrRewardNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListRewards(_ context.Context, tenantID string, opts reward.ListOpts) ([]*reward.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*reward.Reward
	for _, r := range s.rewards {
		if r.TenantID != tenantID || (opts.AvailableOnly && !r.Available) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *reward.Reward) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateReward(_ context.Context, r *reward.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rewards[r.ID.String()]
	if !ok || existing.TenantID != r.TenantID {
		return tally.ErrRewardNotFound
	}
	cp := *r
	cp.Claimed = existing.Claimed
	s.rewards[r.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteReward(_ context.Context, tenantID string, rewardID id.RewardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[rewardID.String()]
	if !ok || r.TenantID != tenantID {
		return tally.ErrRewardNotFound
	}
	delete(s.rewards, rewardID.String())
	return nil
}

func (s *Store) ClaimReward(_ context.Context, rewardID id.RewardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[rewardID.String()]
	if !ok {
		return tally.ErrRewardNotFound
	}
	if !r.InStock() {
		return tally.ErrRewardExhausted
	}
	r.Claimed++
	return nil
}

func (s *Store) ReleaseReward(_ context.Context, rewardID id.RewardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[rewardID.String()]
	if !ok {
		return tally.ErrRewardNotFound
	}
	if r.Claimed > 0 {
		r.Claimed--
	}
	return nil
}

func (s *Store) CreateRedemption(_ context.Context, r *reward.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.redemptions[r.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	for _, other := range s.redemptions {
		if other.UserID == r.UserID && other.RewardID.String() == r.RewardID.String() && other.Status.Open() {
			return tally.ErrDuplicateRedemption
		}
	}
	s.redemptions[r.ID.String()] = cloneRedemption(r)
	return nil
}

func (s *Store) GetRedemption(_ context.Context, tenantID string, redID id.RedemptionID) (*reward.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.redemptions[redID.String()]
	if !ok || r.TenantID != tenantID {
		return nil, tally.ErrRedemptionNotFound
	}
	return cloneRedemption(r), nil
}

func (s *Store) ListRedemptions(_ context.Context, tenantID string, opts reward.RedemptionListOpts) ([]*reward.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*reward.Redemption
	for _, r := range s.redemptions {
		if r.TenantID == tenantID && opts.Matches(r) {
			out = append(out, cloneRedemption(r))
		}
	}
	slices.SortFunc(out, func(a, b *reward.Redemption) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (s *Store) CountRedemptions(_ context.Context, rewardID id.RewardID, statuses ...reward.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.redemptions {
		if r.RewardID.String() != rewardID.String() {
			continue
		}
		if len(statuses) == 0 || slices.Contains(statuses, r.Status) {
			n++
		}
	}
	return n, nil
}

func (s *Store) TransitionRedemption(_ context.Context, r *reward.Redemption, from reward.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.redemptions[r.ID.String()]
	if !ok || existing.TenantID != r.TenantID {
		return tally.ErrRedemptionNotFound
	}
	if existing.Status != from {
		return tally.ErrInvalidTransition
	}
	s.redemptions[r.ID.String()] = cloneRedemption(r)
	return nil
}

// ──────────────────────────────────────────────────
// Member Store
// ──────────────────────────────────────────────────

func (s *Store) CreateMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *m
	s.members[m.ID.String()] = &cp
	return nil
}

func (s *Store) GetMember(_ context.Context, tenantID string, memberID id.MemberID) (*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberID.String()]
	if !ok || m.TenantID != tenantID {
		return nil, tally.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMembers(_ context.Context, tenantID string, role member.Role) ([]*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*member.Member
	for _, m := range s.members {
		if m.TenantID != tenantID || (role != "" && m.Role != role) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *member.Member) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Notification Store
// ──────────────────────────────────────────────────

func (s *Store) CreateNotification(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.notifications[n.ID.String()] = &cp
	return nil
}

func (s *Store) ListNotifications(_ context.Context, tenantID, userID string, opts notification.ListOpts) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*notification.Notification
	for _, n := range s.notifications {
		if n.TenantID != tenantID || n.UserID != userID || (opts.UnreadOnly && n.Read) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *notification.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return page(out, opts.Limit, 0), nil
}

func (s *Store) MarkNotificationRead(_ context.Context, tenantID, userID string, ntfID id.NotificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[ntfID.String()]
	if !ok || n.TenantID != tenantID || n.UserID != userID {
		return tally.ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.Lines = slices.Clone(inv.Lines)
	if inv.OverdueNotifiedAt != nil {
		t := *inv.OverdueNotifiedAt
		cp.OverdueNotifiedAt = &t
	}
	return &cp
}

func cloneRedemption(r *reward.Redemption) *reward.Redemption {
	cp := *r
	if r.Delivery != nil {
		d := *r.Delivery
		cp.Delivery = &d
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		cp.ReviewedAt = &t
	}
	if r.DeliveredAt != nil {
		t := *r.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}

func now() time.Time { return time.Now().UTC() }

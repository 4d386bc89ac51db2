package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/store/internal/sqlmodel"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Invoice Store ====================

// CreateInvoice inserts the invoice. A concurrent writer that already took
// the same (tenant, year, sequence) makes the insert a no-op, reported as
// tally.ErrInvoiceNumberTaken so the caller can allocate the next number.
func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := sqlmodel.EncodeInvoice(inv)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(tenant_id, year, sequence) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create invoice: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrInvoiceNumberTaken
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(sqlmodel.Invoice)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, err
	}
	return sqlmodel.DecodeInvoice(m)
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []sqlmodel.Invoice
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)

	at := opts.Now
	if at.IsZero() {
		at = now()
	}

	switch opts.Status {
	case "":
	case invoice.StatusPaid:
		q = q.Where("payment_status = ?", string(invoice.StatusPaid))
	case invoice.StatusOverdue:
		q = q.Where("payment_status <> ?", string(invoice.StatusPaid))
		q = q.Where("due_date < ?", at)
	default:
		q = q.Where("payment_status = ?", string(opts.Status))
		q = q.Where("due_date >= ?", at)
	}
	if opts.CustomerName != "" {
		q = q.Where("customer_name LIKE ? ESCAPE '\\'", "%"+escapeLike(opts.CustomerName)+"%")
	}
	if opts.Year != 0 {
		q = q.Where("year = ?", opts.Year)
	}
	if opts.Month != 0 {
		q = q.Where("month = ?", opts.Month)
	}
	if opts.ContactID != "" {
		q = q.Where("contact_id = ?", opts.ContactID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("year DESC, sequence DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list invoices: %w", err)
	}

	out := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := sqlmodel.DecodeInvoice(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// UpdateInvoice rewrites the editable fields. The amount paid is never
// taken from inv; balance and status are recomputed in SQL against the
// stored amount so a concurrent payment cannot be lost.
func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := sqlmodel.EncodeInvoice(inv)
	res, err := s.sdb.NewUpdate((*sqlmodel.Invoice)(nil)).
		Set("customer_name = ?", m.CustomerName).
		Set("customer = ?", string(m.Customer)).
		Set("contact_id = ?", m.ContactID).
		Set("lines = ?", string(m.Lines)).
		Set("subtotal = ?", m.Subtotal).
		Set("tax = ?", m.Tax).
		Set("total = ?", m.Total).
		Set("amount_due = ? - amount_paid", m.Total).
		Set("payment_status = CASE WHEN amount_paid >= ? THEN 'paid' WHEN amount_paid > 0 THEN 'partially_paid' ELSE 'unpaid' END", m.Total).
		Set("issue_date = ?", m.IssueDate).
		Set("due_date = ?", m.DueDate).
		Set("month = ?", m.Month).
		Set("payment_method = ?", m.PaymentMethod).
		Set("notes = ?", m.Notes).
		Set("updated_at = ?", now()).
		Where("id = ?", m.ID).
		Where("tenant_id = ?", m.TenantID).
		Where("payment_status <> 'paid'").
		Where("amount_paid <= ?", m.Total).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: update invoice: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	existing, err := s.GetInvoice(ctx, inv.TenantID, inv.ID)
	if err != nil {
		return err
	}
	if existing.PaymentStatus == invoice.StatusPaid {
		return tally.ErrInvoicePaid
	}
	return fmt.Errorf("%w: total below amount paid", tally.ErrInvalidInput)
}

// DeleteInvoice removes an invoice with nothing paid against it. Payment
// rows cascade through the foreign key.
func (s *Store) DeleteInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) error {
	res, err := s.sdb.NewDelete((*sqlmodel.Invoice)(nil)).
		Where("id = ?", invID.String()).
		Where("tenant_id = ?", tenantID).
		Where("amount_paid = 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: delete invoice: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if _, err := s.GetInvoice(ctx, tenantID, invID); err != nil {
		return err
	}
	return tally.ErrInvoiceHasPayments
}

func (s *Store) LastInvoiceSequence(ctx context.Context, tenantID string, year int) (int, error) {
	var last int
	err := s.sdb.NewRaw(`
		SELECT COALESCE(MAX(sequence), 0) FROM tally_invoices
		WHERE tenant_id = ? AND year = ?
	`, tenantID, year).Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("tally/sqlite: last invoice sequence: %w", err)
	}
	return last, nil
}

// AdjustInvoicePaid moves amount_paid by delta in a single guarded UPDATE.
// Rows that would leave 0 <= amount_paid <= total are not touched and the
// call reports tally.ErrOverpayment.
func (s *Store) AdjustInvoicePaid(ctx context.Context, tenantID string, invID id.InvoiceID, delta int64) (*invoice.Invoice, error) {
	res, err := s.sdb.NewUpdate((*sqlmodel.Invoice)(nil)).
		Set("amount_paid = amount_paid + ?", delta).
		Set("amount_due = total - (amount_paid + ?)", delta).
		Set("payment_status = CASE WHEN amount_paid + ? >= total THEN 'paid' WHEN amount_paid + ? > 0 THEN 'partially_paid' ELSE 'unpaid' END", delta, delta).
		Set("updated_at = ?", now()).
		Where("id = ?", invID.String()).
		Where("tenant_id = ?", tenantID).
		Where("amount_paid + ? BETWEEN 0 AND total", delta).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: adjust invoice paid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	inv, err := s.GetInvoice(ctx, tenantID, invID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, tally.ErrOverpayment
	}
	return inv, nil
}

func (s *Store) ListOverdueInvoices(ctx context.Context, at time.Time, limit int) ([]*invoice.Invoice, error) {
	var models []sqlmodel.Invoice
	q := s.sdb.NewSelect(&models).
		Where("payment_status <> ?", string(invoice.StatusPaid)).
		Where("due_date < ?", at).
		Where("overdue_notified_at IS NULL").
		OrderExpr("due_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list overdue invoices: %w", err)
	}

	out := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := sqlmodel.DecodeInvoice(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *Store) MarkOverdueNotified(ctx context.Context, invID id.InvoiceID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*sqlmodel.Invoice)(nil)).
		Set("overdue_notified_at = ?", at).
		Where("id = ?", invID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	m := sqlmodel.EncodePayment(p)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, tenantID string, payID id.PaymentID) (*payment.Payment, error) {
	m := new(sqlmodel.Payment)
	err := s.sdb.NewSelect(m).
		Where("id = ?", payID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrPaymentNotFound
		}
		return nil, err
	}
	return sqlmodel.DecodePayment(m)
}

func (s *Store) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []sqlmodel.Payment
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)

	if !opts.InvoiceID.IsNil() {
		q = q.Where("invoice_id = ?", opts.InvoiceID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("paid_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list payments: %w", err)
	}

	out := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := sqlmodel.DecodePayment(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *payment.Payment, prevAmount int64) error {
	res, err := s.sdb.NewUpdate((*sqlmodel.Payment)(nil)).
		Set("amount = ?", p.Amount.Amount).
		Set("method = ?", string(p.Method)).
		Set("paid_at = ?", p.PaidAt).
		Set("reference = ?", p.Reference).
		Set("notes = ?", p.Notes).
		Set("updated_at = ?", now()).
		Where("id = ?", p.ID.String()).
		Where("tenant_id = ?", p.TenantID).
		Where("amount = ?", prevAmount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: update payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.paymentMissed(ctx, p.TenantID, p.ID)
	}
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, tenantID string, payID id.PaymentID, amount int64) error {
	res, err := s.sdb.NewDelete((*sqlmodel.Payment)(nil)).
		Where("id = ?", payID.String()).
		Where("tenant_id = ?", tenantID).
		Where("amount = ?", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: delete payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.paymentMissed(ctx, tenantID, payID)
	}
	return nil
}

// paymentMissed tells a guarded payment write that matched nothing apart:
// the row is gone, or its amount moved.
func (s *Store) paymentMissed(ctx context.Context, tenantID string, payID id.PaymentID) error {
	if _, err := s.GetPayment(ctx, tenantID, payID); err != nil {
		return err
	}
	return tally.ErrPaymentChanged
}

func (s *Store) SumPayments(ctx context.Context, invID id.InvoiceID) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount), 0) FROM tally_payments WHERE invoice_id = ?
	`, invID.String()).Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("tally/sqlite: sum payments: %w", err)
	}
	return total, nil
}

// ==================== Score Store ====================

func (s *Store) CreateScore(ctx context.Context, sc *score.Score) error {
	m := sqlmodel.EncodeScore(sc)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: create score: %w", err)
	}
	return nil
}

func (s *Store) ListScores(ctx context.Context, tenantID, userID string, opts score.ListOpts) ([]*score.Score, error) {
	var models []sqlmodel.Score
	q := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID)

	if opts.Period != "" {
		q = q.Where("period = ?", opts.Period)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list scores: %w", err)
	}

	out := make([]*score.Score, 0, len(models))
	for i := range models {
		sc, err := sqlmodel.DecodeScore(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *Store) SumPoints(ctx context.Context, tenantID, userID, period string) (int64, error) {
	var total int64
	var err error
	if period == "" {
		err = s.sdb.NewRaw(`
			SELECT COALESCE(SUM(points), 0) FROM tally_scores
			WHERE tenant_id = ? AND user_id = ?
		`, tenantID, userID).Scan(ctx, &total)
	} else {
		err = s.sdb.NewRaw(`
			SELECT COALESCE(SUM(points), 0) FROM tally_scores
			WHERE tenant_id = ? AND user_id = ? AND period = ?
		`, tenantID, userID, period).Scan(ctx, &total)
	}
	if err != nil {
		return 0, fmt.Errorf("tally/sqlite: sum points: %w", err)
	}
	return total, nil
}

func (s *Store) SumPointsSince(ctx context.Context, tenantID, userID string, since time.Time) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(points), 0) FROM tally_scores
		WHERE tenant_id = ? AND user_id = ? AND created_at >= ?
	`, tenantID, userID, since).Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("tally/sqlite: sum points since: %w", err)
	}
	return total, nil
}

func (s *Store) Leaderboard(ctx context.Context, tenantID, period string, limit int) ([]score.Standing, error) {
	query := `SELECT user_id, SUM(points) AS points FROM tally_scores WHERE tenant_id = ?`
	args := []any{tenantID}
	if period != "" {
		query += ` AND period = ?`
		args = append(args, period)
	}
	query += ` GROUP BY user_id ORDER BY points DESC, user_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []sqlmodel.Standing
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("tally/sqlite: leaderboard: %w", err)
	}

	out := make([]score.Standing, len(rows))
	for i, r := range rows {
		out[i] = score.Standing{Rank: i + 1, UserID: r.UserID, Points: r.Points}
	}
	return out, nil
}

// ==================== Reward Store ====================

func (s *Store) CreateReward(ctx context.Context, r *reward.Reward) error {
	m := sqlmodel.EncodeReward(r)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: create reward: %w", err)
	}
	return nil
}

func (s *Store) GetReward(ctx context.Context, tenantID string, rewardID id.RewardID) (*reward.Reward, error) {
	m := new(sqlmodel.Reward)
	err := s.sdb.NewSelect(m).
		Where("id = ?", rewardID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrRewardNotFound
		}
		return nil, err
	}
	return sqlmodel.DecodeReward(m)
}

func (s *Store) ListRewards(ctx context.Context, tenantID string, opts reward.ListOpts) ([]*reward.Reward, error) {
	var models []sqlmodel.Reward
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)
	if opts.AvailableOnly {
		q = q.Where("available = ?", true)
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list rewards: %w", err)
	}

	out := make([]*reward.Reward, 0, len(models))
	for i := range models {
		r, err := sqlmodel.DecodeReward(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// UpdateReward writes the catalogue fields. The claimed counter is owned by
// ClaimReward and ReleaseReward and is left alone.
func (s *Store) UpdateReward(ctx context.Context, r *reward.Reward) error {
	res, err := s.sdb.NewUpdate((*sqlmodel.Reward)(nil)).
		Set("name = ?", r.Name).
		Set("description = ?", r.Description).
		Set("image_url = ?", r.ImageURL).
		Set("cost_lifetime = ?", r.CostLifetime).
		Set("cost_monthly = ?", r.CostMonthly).
		Set("quantity = ?", r.Quantity).
		Set("available = ?", r.Available).
		Set("updated_at = ?", now()).
		Where("id = ?", r.ID.String()).
		Where("tenant_id = ?", r.TenantID).
		Where("(? = -1 OR claimed <= ?)", r.Quantity, r.Quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: update reward: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if _, err := s.GetReward(ctx, r.TenantID, r.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: quantity below units already claimed", tally.ErrInvalidInput)
}

func (s *Store) DeleteReward(ctx context.Context, tenantID string, rewardID id.RewardID) error {
	res, err := s.sdb.NewDelete((*sqlmodel.Reward)(nil)).
		Where("id = ?", rewardID.String()).
		Where("tenant_id = ?", tenantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: delete reward: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrRewardNotFound
	}
	return nil
}

// ClaimReward takes one unit of stock with a conditional increment, so two
// concurrent claims on the last unit cannot both succeed.
func (s *Store) ClaimReward(ctx context.Context, rewardID id.RewardID) error {
	res, err := s.sdb.NewUpdate((*sqlmodel.Reward)(nil)).
		Set("claimed = claimed + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", rewardID.String()).
		Where("(quantity = -1 OR claimed < quantity)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: claim reward: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if exists, err := s.rewardExists(ctx, rewardID); err != nil {
		return err
	} else if !exists {
		return tally.ErrRewardNotFound
	}
	return tally.ErrRewardExhausted
}

func (s *Store) ReleaseReward(ctx context.Context, rewardID id.RewardID) error {
	res, err := s.sdb.NewUpdate((*sqlmodel.Reward)(nil)).
		Set("claimed = MAX(claimed - 1, 0)").
		Set("updated_at = ?", now()).
		Where("id = ?", rewardID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: release reward: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrRewardNotFound
	}
	return nil
}

func (s *Store) rewardExists(ctx context.Context, rewardID id.RewardID) (bool, error) {
	var n int
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM tally_rewards WHERE id = ?`, rewardID.String()).Scan(ctx, &n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateRedemption inserts a request. The partial unique index on open
// requests turns a second pending or approved request for the same reward
// and user into a no-op, reported as tally.ErrDuplicateRedemption.
func (s *Store) CreateRedemption(ctx context.Context, r *reward.Redemption) error {
	m := sqlmodel.EncodeRedemption(r)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(reward_id, user_id) WHERE status IN ('pending', 'approved') DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create redemption: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrDuplicateRedemption
	}
	return nil
}

func (s *Store) GetRedemption(ctx context.Context, tenantID string, redID id.RedemptionID) (*reward.Redemption, error) {
	m := new(sqlmodel.Redemption)
	err := s.sdb.NewSelect(m).
		Where("id = ?", redID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrRedemptionNotFound
		}
		return nil, err
	}
	return sqlmodel.DecodeRedemption(m)
}

func (s *Store) ListRedemptions(ctx context.Context, tenantID string, opts reward.RedemptionListOpts) ([]*reward.Redemption, error) {
	var models []sqlmodel.Redemption
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)

	if opts.UserID != "" {
		q = q.Where("user_id = ?", opts.UserID)
	}
	if !opts.RewardID.IsNil() {
		q = q.Where("reward_id = ?", opts.RewardID.String())
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("status IN ("+placeholders(len(opts.Statuses))+")", statusArgs(opts.Statuses)...)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list redemptions: %w", err)
	}

	out := make([]*reward.Redemption, 0, len(models))
	for i := range models {
		r, err := sqlmodel.DecodeRedemption(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CountRedemptions(ctx context.Context, rewardID id.RewardID, statuses ...reward.Status) (int, error) {
	query := `SELECT COUNT(*) FROM tally_redemptions WHERE reward_id = ?`
	args := []any{rewardID.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}

	var n int
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("tally/sqlite: count redemptions: %w", err)
	}
	return n, nil
}

// TransitionRedemption writes r only while the stored status still equals
// from. Losing the race reports tally.ErrInvalidTransition.
func (s *Store) TransitionRedemption(ctx context.Context, r *reward.Redemption, from reward.Status) error {
	m := sqlmodel.EncodeRedemption(r)
	var delivery any
	if m.Delivery != nil {
		delivery = string(m.Delivery)
	}
	res, err := s.sdb.NewUpdate((*sqlmodel.Redemption)(nil)).
		Set("status = ?", m.Status).
		Set("pickup = ?", m.Pickup).
		Set("delivery = ?", delivery).
		Set("admin_note = ?", m.AdminNote).
		Set("reviewed_by = ?", m.ReviewedBy).
		Set("reviewed_at = ?", m.ReviewedAt).
		Set("delivered_at = ?", m.DeliveredAt).
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", m.ID).
		Where("tenant_id = ?", m.TenantID).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: transition redemption: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if _, err := s.GetRedemption(ctx, r.TenantID, r.ID); err != nil {
		return err
	}
	return tally.ErrInvalidTransition
}

// ==================== Member Store ====================

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	res, err := s.sdb.NewInsert(sqlmodel.EncodeMember(m)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create member: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, tenantID string, memberID id.MemberID) (*member.Member, error) {
	m := new(sqlmodel.Member)
	err := s.sdb.NewSelect(m).
		Where("id = ?", memberID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrMemberNotFound
		}
		return nil, err
	}
	return sqlmodel.DecodeMember(m)
}

func (s *Store) ListMembers(ctx context.Context, tenantID string, role member.Role) ([]*member.Member, error) {
	var models []sqlmodel.Member
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)
	if role != "" {
		q = q.Where("role = ?", string(role))
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list members: %w", err)
	}

	out := make([]*member.Member, 0, len(models))
	for i := range models {
		m, err := sqlmodel.DecodeMember(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ==================== Notification Store ====================

func (s *Store) CreateNotification(ctx context.Context, n *notification.Notification) error {
	if _, err := s.sdb.NewInsert(sqlmodel.EncodeNotification(n)).Exec(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: create notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, opts notification.ListOpts) ([]*notification.Notification, error) {
	var models []sqlmodel.Notification
	q := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID)
	if opts.UnreadOnly {
		q = q.Where("read = ?", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/sqlite: list notifications: %w", err)
	}

	out := make([]*notification.Notification, 0, len(models))
	for i := range models {
		n, err := sqlmodel.DecodeNotification(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, tenantID, userID string, ntfID id.NotificationID) error {
	res, err := s.sdb.NewUpdate((*sqlmodel.Notification)(nil)).
		Set("read = ?", true).
		Where("id = ?", ntfID.String()).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrNotificationNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// placeholders renders n positional parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []reward.Status) []any {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

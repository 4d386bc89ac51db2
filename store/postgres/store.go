package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: migration failed: %w", err)
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
	res, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id, year, sequence) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: create invoice: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Where("tenant_id = $2", tenantID).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)

	at := opts.Now
	if at.IsZero() {
		at = now()
	}

	argIdx := 1
	switch opts.Status {
	case "":
	case invoice.StatusPaid:
		argIdx++
		q = q.Where(fmt.Sprintf("payment_status = $%d", argIdx), string(invoice.StatusPaid))
	case invoice.StatusOverdue:
		argIdx++
		q = q.Where(fmt.Sprintf("payment_status <> $%d", argIdx), string(invoice.StatusPaid))
		argIdx++
		q = q.Where(fmt.Sprintf("due_date < $%d", argIdx), at)
	default:
		argIdx++
		q = q.Where(fmt.Sprintf("payment_status = $%d", argIdx), string(opts.Status))
		argIdx++
		q = q.Where(fmt.Sprintf("due_date >= $%d", argIdx), at)
	}
	if opts.CustomerName != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("customer_name ILIKE $%d", argIdx), "%"+escapeLike(opts.CustomerName)+"%")
	}
	if opts.Year != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("year = $%d", argIdx), opts.Year)
	}
	if opts.Month != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("month = $%d", argIdx), opts.Month)
	}
	if opts.ContactID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("contact_id = $%d", argIdx), opts.ContactID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("year DESC, sequence DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list invoices: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Invoice)(nil)).
		Set("customer_name = $1", m.CustomerName).
		Set("customer = $2::jsonb", string(m.Customer)).
		Set("contact_id = $3", m.ContactID).
		Set("lines = $4::jsonb", string(m.Lines)).
		Set("subtotal = $5", m.Subtotal).
		Set("tax = $6", m.Tax).
		Set("total = $7", m.Total).
		Set("amount_due = $8 - amount_paid", m.Total).
		Set("payment_status = CASE WHEN amount_paid >= $9 THEN 'paid' WHEN amount_paid > 0 THEN 'partially_paid' ELSE 'unpaid' END", m.Total).
		Set("issue_date = $10", m.IssueDate).
		Set("due_date = $11", m.DueDate).
		Set("month = $12", m.Month).
		Set("payment_method = $13", m.PaymentMethod).
		Set("notes = $14", m.Notes).
		Set("updated_at = $15", now()).
		Where("id = $16", m.ID).
		Where("tenant_id = $17", m.TenantID).
		Where("payment_status <> 'paid'").
		Where("amount_paid <= $18", m.Total).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update invoice: %w", err)
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
	res, err := s.pg.NewDelete((*sqlmodel.Invoice)(nil)).
		Where("id = $1", invID.String()).
		Where("tenant_id = $2", tenantID).
		Where("amount_paid = 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete invoice: %w", err)
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
	err := s.pg.NewRaw(`
		SELECT COALESCE(MAX(sequence), 0) FROM tally_invoices
		WHERE tenant_id = $1 AND year = $2
	`, tenantID, year).Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("tally/postgres: last invoice sequence: %w", err)
	}
	return last, nil
}

// AdjustInvoicePaid moves amount_paid by delta in a single guarded UPDATE.
// Rows that would leave 0 <= amount_paid <= total are not touched and the
// call reports tally.ErrOverpayment.
func (s *Store) AdjustInvoicePaid(ctx context.Context, tenantID string, invID id.InvoiceID, delta int64) (*invoice.Invoice, error) {
	res, err := s.pg.NewUpdate((*sqlmodel.Invoice)(nil)).
		Set("amount_paid = amount_paid + $1", delta).
		Set("amount_due = total - (amount_paid + $2)", delta).
		Set("payment_status = CASE WHEN amount_paid + $3 >= total THEN 'paid' WHEN amount_paid + $4 > 0 THEN 'partially_paid' ELSE 'unpaid' END", delta, delta).
		Set("updated_at = $5", now()).
		Where("id = $6", invID.String()).
		Where("tenant_id = $7", tenantID).
		Where("amount_paid + $8 BETWEEN 0 AND total", delta).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: adjust invoice paid: %w", err)
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
	q := s.pg.NewSelect(&models).
		Where("payment_status <> $1", string(invoice.StatusPaid)).
		Where("due_date < $2", at).
		Where("overdue_notified_at IS NULL").
		OrderExpr("due_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list overdue invoices: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Invoice)(nil)).
		Set("overdue_notified_at = $1", at).
		Where("id = $2", invID.String()).
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/postgres: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, tenantID string, payID id.PaymentID) (*payment.Payment, error) {
	m := new(sqlmodel.Payment)
	err := s.pg.NewSelect(m).
		Where("id = $1", payID.String()).
		Where("tenant_id = $2", tenantID).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)

	if !opts.InvoiceID.IsNil() {
		q = q.Where("invoice_id = $2", opts.InvoiceID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("paid_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list payments: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Payment)(nil)).
		Set("amount = $1", p.Amount.Amount).
		Set("method = $2", string(p.Method)).
		Set("paid_at = $3", p.PaidAt).
		Set("reference = $4", p.Reference).
		Set("notes = $5", p.Notes).
		Set("updated_at = $6", now()).
		Where("id = $7", p.ID.String()).
		Where("tenant_id = $8", p.TenantID).
		Where("amount = $9", prevAmount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update payment: %w", err)
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
	res, err := s.pg.NewDelete((*sqlmodel.Payment)(nil)).
		Where("id = $1", payID.String()).
		Where("tenant_id = $2", tenantID).
		Where("amount = $3", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete payment: %w", err)
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
	err := s.pg.NewRaw(`
		SELECT COALESCE(SUM(amount), 0) FROM tally_payments WHERE invoice_id = $1
	`, invID.String()).Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("tally/postgres: sum payments: %w", err)
	}
	return total, nil
}

// ==================== Score Store ====================

func (s *Store) CreateScore(ctx context.Context, sc *score.Score) error {
	m := sqlmodel.EncodeScore(sc)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/postgres: create score: %w", err)
	}
	return nil
}

func (s *Store) ListScores(ctx context.Context, tenantID, userID string, opts score.ListOpts) ([]*score.Score, error) {
	var models []sqlmodel.Score
	q := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		Where("user_id = $2", userID)

	if opts.Period != "" {
		q = q.Where("period = $3", opts.Period)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list scores: %w", err)
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
		err = s.pg.NewRaw(`
			SELECT COALESCE(SUM(points), 0) FROM tally_scores
			WHERE tenant_id = $1 AND user_id = $2
		`, tenantID, userID).Scan(ctx, &total)
	} else {
		err = s.pg.NewRaw(`
			SELECT COALESCE(SUM(points), 0) FROM tally_scores
			WHERE tenant_id = $1 AND user_id = $2 AND period = $3
		`, tenantID, userID, period).Scan(ctx, &total)
	}
	if err != nil {
		return 0, fmt.Errorf("tally/postgres: sum points: %w", err)
	}
	return total, nil
}

func (s *Store) SumPointsSince(ctx context.Context, tenantID, userID string, since time.Time) (int64, error) {
	var total int64
	err := s.pg.NewRaw(`
		SELECT COALESCE(SUM(points), 0) FROM tally_scores
		WHERE tenant_id = $1 AND user_id = $2 AND created_at >= $3
	`, tenantID, userID, since).Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("tally/postgres: sum points since: %w", err)
	}
	return total, nil
}

func (s *Store) Leaderboard(ctx context.Context, tenantID, period string, limit int) ([]score.Standing, error) {
	query := `SELECT user_id, SUM(points) AS points FROM tally_scores WHERE tenant_id = $1`
	args := []any{tenantID}
	if period != "" {
		query += ` AND period = $2`
		args = append(args, period)
	}
	query += ` GROUP BY user_id ORDER BY points DESC, user_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []sqlmodel.Standing
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("tally/postgres: leaderboard: %w", err)
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("tally/postgres: create reward: %w", err)
	}
	return nil
}

func (s *Store) GetReward(ctx context.Context, tenantID string, rewardID id.RewardID) (*reward.Reward, error) {
	m := new(sqlmodel.Reward)
	err := s.pg.NewSelect(m).
		Where("id = $1", rewardID.String()).
		Where("tenant_id = $2", tenantID).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)
	if opts.AvailableOnly {
		q = q.Where("available = $2", true)
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list rewards: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Reward)(nil)).
		Set("name = $1", r.Name).
		Set("description = $2", r.Description).
		Set("image_url = $3", r.ImageURL).
		Set("cost_lifetime = $4", r.CostLifetime).
		Set("cost_monthly = $5", r.CostMonthly).
		Set("quantity = $6", r.Quantity).
		Set("available = $7", r.Available).
		Set("updated_at = $8", now()).
		Where("id = $9", r.ID.String()).
		Where("tenant_id = $10", r.TenantID).
		Where("($11 = -1 OR claimed <= $12)", r.Quantity, r.Quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update reward: %w", err)
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
	res, err := s.pg.NewDelete((*sqlmodel.Reward)(nil)).
		Where("id = $1", rewardID.String()).
		Where("tenant_id = $2", tenantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete reward: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Reward)(nil)).
		Set("claimed = claimed + 1").
		Set("updated_at = $1", now()).
		Where("id = $2", rewardID.String()).
		Where("(quantity = -1 OR claimed < quantity)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: claim reward: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Reward)(nil)).
		Set("claimed = GREATEST(claimed - 1, 0)").
		Set("updated_at = $1", now()).
		Where("id = $2", rewardID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: release reward: %w", err)
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
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM tally_rewards WHERE id = $1`, rewardID.String()).Scan(ctx, &n)
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
	res, err := s.pg.NewInsert(m).
		OnConflict("(reward_id, user_id) WHERE status IN ('pending', 'approved') DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: create redemption: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", redID.String()).
		Where("tenant_id = $2", tenantID).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)

	argIdx := 1
	if opts.UserID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("user_id = $%d", argIdx), opts.UserID)
	}
	if !opts.RewardID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("reward_id = $%d", argIdx), opts.RewardID.String())
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("status IN ("+placeholders(argIdx+1, len(opts.Statuses))+")", statusArgs(opts.Statuses)...)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list redemptions: %w", err)
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
	query := `SELECT COUNT(*) FROM tally_redemptions WHERE reward_id = $1`
	args := []any{rewardID.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(2, len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}

	var n int
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("tally/postgres: count redemptions: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Redemption)(nil)).
		Set("status = $1", m.Status).
		Set("pickup = $2", m.Pickup).
		Set("delivery = $3::jsonb", delivery).
		Set("admin_note = $4", m.AdminNote).
		Set("reviewed_by = $5", m.ReviewedBy).
		Set("reviewed_at = $6", m.ReviewedAt).
		Set("delivered_at = $7", m.DeliveredAt).
		Set("updated_at = $8", m.UpdatedAt).
		Where("id = $9", m.ID).
		Where("tenant_id = $10", m.TenantID).
		Where("status = $11", string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: transition redemption: %w", err)
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
	res, err := s.pg.NewInsert(sqlmodel.EncodeMember(m)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: create member: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", memberID.String()).
		Where("tenant_id = $2", tenantID).
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
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)
	if role != "" {
		q = q.Where("role = $2", string(role))
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list members: %w", err)
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
	if _, err := s.pg.NewInsert(sqlmodel.EncodeNotification(n)).Exec(ctx); err != nil {
		return fmt.Errorf("tally/postgres: create notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, opts notification.ListOpts) ([]*notification.Notification, error) {
	var models []sqlmodel.Notification
	q := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		Where("user_id = $2", userID)
	if opts.UnreadOnly {
		q = q.Where("read = $3", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list notifications: %w", err)
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
	res, err := s.pg.NewUpdate((*sqlmodel.Notification)(nil)).
		Set("read = $1", true).
		Where("id = $2", ntfID.String()).
		Where("tenant_id = $3", tenantID).
		Where("user_id = $4", userID).
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

// placeholders renders n positional parameters starting at $start.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
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

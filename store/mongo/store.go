package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
	tallystore "github.com/xraph/tally/store"
)

// Collection name constants.
const (
	colInvoices      = "tally_invoices"
	colPayments      = "tally_payments"
	colScores        = "tally_scores"
	colRewards       = "tally_rewards"
	colRedemptions   = "tally_redemptions"
	colMembers       = "tally_members"
	colNotifications = "tally_notifications"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrInvoiceNumberTaken
		}
		return fmt.Errorf("tally/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String(), "tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	at := opts.Now
	if at.IsZero() {
		at = now()
	}

	filter := bson.M{"tenant_id": tenantID}
	switch opts.Status {
	case "":
	case invoice.StatusPaid:
		filter["payment_status"] = string(invoice.StatusPaid)
	case invoice.StatusOverdue:
		filter["payment_status"] = bson.M{"$ne": string(invoice.StatusPaid)}
		filter["due_date"] = bson.M{"$lt": at}
	default:
		filter["payment_status"] = string(opts.Status)
		filter["due_date"] = bson.M{"$gte": at}
	}
	if opts.CustomerName != "" {
		filter["customer_name"] = bson.Regex{Pattern: regexp.QuoteMeta(opts.CustomerName), Options: "i"}
	}
	if opts.Year != 0 {
		filter["year"] = opts.Year
	}
	if opts.Month != 0 {
		filter["month"] = opts.Month
	}
	if opts.ContactID != "" {
		filter["contact_id"] = opts.ContactID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "year", Value: -1}, {Key: "sequence", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list invoices: %w", err)
	}

	out := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// UpdateInvoice rewrites the editable fields with a pipeline update so the
// balance and status are derived from the stored amount_paid.
func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	filter := bson.M{
		"_id":            m.ID,
		"tenant_id":      m.TenantID,
		"payment_status": bson.M{"$ne": string(invoice.StatusPaid)},
		"amount_paid":    bson.M{"$lte": m.Total},
	}
	update := bson.A{bson.M{"$set": bson.M{
		"customer_name":  m.CustomerName,
		"customer":       bson.M{"$literal": m.Customer},
		"contact_id":     m.ContactID,
		"lines":          bson.M{"$literal": m.Lines},
		"subtotal":       m.Subtotal,
		"tax":            m.Tax,
		"total":          m.Total,
		"amount_due":     bson.M{"$subtract": bson.A{m.Total, "$amount_paid"}},
		"payment_status": statusExpr("$amount_paid", m.Total),
		"issue_date":     m.IssueDate,
		"due_date":       m.DueDate,
		"month":          m.Month,
		"payment_method": m.PaymentMethod,
		"notes":          m.Notes,
		"updated_at":     now(),
	}}}

	res, err := s.mdb.Collection(colInvoices).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("tally/mongo: update invoice: %w", err)
	}
	if res.MatchedCount > 0 {
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

// DeleteInvoice removes an invoice with nothing paid against it, then its
// payment documents.
func (s *Store) DeleteInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) error {
	res, err := s.mdb.NewDelete((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String(), "tenant_id": tenantID, "amount_paid": 0}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete invoice: %w", err)
	}
	if res.DeletedCount() == 0 {
		if _, err := s.GetInvoice(ctx, tenantID, invID); err != nil {
			return err
		}
		return tally.ErrInvoiceHasPayments
	}

	if _, err := s.mdb.Collection(colPayments).DeleteMany(ctx, bson.M{"invoice_id": invID.String()}); err != nil {
		return fmt.Errorf("tally/mongo: delete invoice payments: %w", err)
	}
	return nil
}

func (s *Store) LastInvoiceSequence(ctx context.Context, tenantID string, year int) (int, error) {
	var models []invoiceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": tenantID, "year": year}).
		Sort(bson.D{{Key: "sequence", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: last invoice sequence: %w", err)
	}
	if len(models) == 0 {
		return 0, nil
	}
	return models[0].Sequence, nil
}

// AdjustInvoicePaid applies delta in one conditional pipeline update; a
// document whose new amount would leave [0, total] is not matched.
func (s *Store) AdjustInvoicePaid(ctx context.Context, tenantID string, invID id.InvoiceID, delta int64) (*invoice.Invoice, error) {
	paid := bson.M{"$add": bson.A{"$amount_paid", delta}}
	filter := bson.M{
		"_id":       invID.String(),
		"tenant_id": tenantID,
		"$expr": bson.M{"$and": bson.A{
			bson.M{"$gte": bson.A{paid, 0}},
			bson.M{"$lte": bson.A{paid, "$total"}},
		}},
	}
	update := bson.A{bson.M{"$set": bson.M{
		"amount_paid":    paid,
		"amount_due":     bson.M{"$subtract": bson.A{"$total", paid}},
		"payment_status": statusExpr(paid, "$total"),
		"updated_at":     now(),
	}}}

	res, err := s.mdb.Collection(colInvoices).UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: adjust invoice paid: %w", err)
	}

	inv, err := s.GetInvoice(ctx, tenantID, invID)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, tally.ErrOverpayment
	}
	return inv, nil
}

func (s *Store) ListOverdueInvoices(ctx context.Context, at time.Time, limit int) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"payment_status":      bson.M{"$ne": string(invoice.StatusPaid)},
			"due_date":            bson.M{"$lt": at},
			"overdue_notified_at": bson.M{"$exists": false},
		}).
		Sort(bson.D{{Key: "due_date", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list overdue invoices: %w", err)
	}

	out := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *Store) MarkOverdueNotified(ctx context.Context, invID id.InvoiceID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Set("overdue_notified_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: mark overdue notified: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if _, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, tenantID string, payID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": payID.String(), "tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel

	filter := bson.M{"tenant_id": tenantID}
	if !opts.InvoiceID.IsNil() {
		filter["invoice_id"] = opts.InvoiceID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "paid_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list payments: %w", err)
	}

	out := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *payment.Payment, prevAmount int64) error {
	res, err := s.mdb.NewUpdate((*paymentModel)(nil)).
		Filter(bson.M{"_id": p.ID.String(), "tenant_id": p.TenantID, "amount": bson.M{"$eq": prevAmount}}).
		Set("amount", p.Amount.Amount).
		Set("method", string(p.Method)).
		Set("paid_at", p.PaidAt).
		Set("reference", p.Reference).
		Set("notes", p.Notes).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update payment: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.paymentMissed(ctx, p.TenantID, p.ID)
	}
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, tenantID string, payID id.PaymentID, amount int64) error {
	res, err := s.mdb.NewDelete((*paymentModel)(nil)).
		Filter(bson.M{"_id": payID.String(), "tenant_id": tenantID, "amount": bson.M{"$eq": amount}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete payment: %w", err)
	}
	if res.DeletedCount() == 0 {
		return s.paymentMissed(ctx, tenantID, payID)
	}
	return nil
}

// paymentMissed tells a guarded payment write that matched nothing apart:
// the document is gone, or its amount moved.
func (s *Store) paymentMissed(ctx context.Context, tenantID string, payID id.PaymentID) error {
	if _, err := s.GetPayment(ctx, tenantID, payID); err != nil {
		return err
	}
	return tally.ErrPaymentChanged
}

func (s *Store) SumPayments(ctx context.Context, invID id.InvoiceID) (int64, error) {
	return s.sum(ctx, colPayments, "$amount", bson.M{"invoice_id": invID.String()})
}

// ==================== Score Store ====================

func (s *Store) CreateScore(ctx context.Context, sc *score.Score) error {
	if _, err := s.mdb.NewInsert(toScoreModel(sc)).Exec(ctx); err != nil {
		return fmt.Errorf("tally/mongo: create score: %w", err)
	}
	return nil
}

func (s *Store) ListScores(ctx context.Context, tenantID, userID string, opts score.ListOpts) ([]*score.Score, error) {
	var models []scoreModel

	filter := bson.M{"tenant_id": tenantID, "user_id": userID}
	if opts.Period != "" {
		filter["period"] = opts.Period
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list scores: %w", err)
	}

	out := make([]*score.Score, 0, len(models))
	for i := range models {
		sc, err := fromScoreModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *Store) SumPoints(ctx context.Context, tenantID, userID, period string) (int64, error) {
	match := bson.M{"tenant_id": tenantID, "user_id": userID}
	if period != "" {
		match["period"] = period
	}
	return s.sum(ctx, colScores, "$points", match)
}

func (s *Store) SumPointsSince(ctx context.Context, tenantID, userID string, since time.Time) (int64, error) {
	return s.sum(ctx, colScores, "$points", bson.M{
		"tenant_id":  tenantID,
		"user_id":    userID,
		"created_at": bson.M{"$gte": since},
	})
}

func (s *Store) Leaderboard(ctx context.Context, tenantID, period string, limit int) ([]score.Standing, error) {
	match := bson.M{"tenant_id": tenantID}
	if period != "" {
		match["period"] = period
	}
	pipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{"_id": "$user_id", "points": bson.M{"$sum": "$points"}}},
		bson.M{"$sort": bson.D{{Key: "points", Value: -1}, {Key: "_id", Value: 1}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": limit})
	}

	cursor, err := s.mdb.Collection(colScores).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: leaderboard: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		UserID string `bson:"_id"`
		Points int64  `bson:"points"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("tally/mongo: leaderboard decode: %w", err)
	}

	out := make([]score.Standing, len(results))
	for i, r := range results {
		out[i] = score.Standing{Rank: i + 1, UserID: r.UserID, Points: r.Points}
	}
	return out, nil
}

// ==================== Reward Store ====================

func (s *Store) CreateReward(ctx context.Context, r *reward.Reward) error {
	if _, err := s.mdb.NewInsert(toRewardModel(r)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create reward: %w", err)
	}
	return nil
}

func (s *Store) GetReward(ctx context.Context, tenantID string, rewardID id.RewardID) (*reward.Reward, error) {
	var m rewardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": rewardID.String(), "tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrRewardNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get reward: %w", err)
	}
	return fromRewardModel(&m)
}

func (s *Store) ListRewards(ctx context.Context, tenantID string, opts reward.ListOpts) ([]*reward.Reward, error) {
	var models []rewardModel

	filter := bson.M{"tenant_id": tenantID}
	if opts.AvailableOnly {
		filter["available"] = true
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list rewards: %w", err)
	}

	out := make([]*reward.Reward, 0, len(models))
	for i := range models {
		r, err := fromRewardModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// UpdateReward writes the catalogue fields; claimed is left to the
// claim and release operations.
func (s *Store) UpdateReward(ctx context.Context, r *reward.Reward) error {
	filter := bson.M{"_id": r.ID.String(), "tenant_id": r.TenantID}
	if r.Quantity != reward.Unlimited {
		filter["claimed"] = bson.M{"$lte": r.Quantity}
	}

	res, err := s.mdb.NewUpdate((*rewardModel)(nil)).
		Filter(filter).
		Set("name", r.Name).
		Set("description", r.Description).
		Set("image_url", r.ImageURL).
		Set("cost_lifetime", r.CostLifetime).
		Set("cost_monthly", r.CostMonthly).
		Set("quantity", r.Quantity).
		Set("available", r.Available).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update reward: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	if _, err := s.GetReward(ctx, r.TenantID, r.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: quantity below units already claimed", tally.ErrInvalidInput)
}

func (s *Store) DeleteReward(ctx context.Context, tenantID string, rewardID id.RewardID) error {
	res, err := s.mdb.NewDelete((*rewardModel)(nil)).
		Filter(bson.M{"_id": rewardID.String(), "tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete reward: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrRewardNotFound
	}
	return nil
}

func (s *Store) ClaimReward(ctx context.Context, rewardID id.RewardID) error {
	res, err := s.mdb.NewUpdate((*rewardModel)(nil)).
		Filter(bson.M{
			"_id": rewardID.String(),
			"$or": bson.A{
				bson.M{"quantity": reward.Unlimited},
				bson.M{"$expr": bson.M{"$lt": bson.A{"$claimed", "$quantity"}}},
			},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"claimed": 1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: claim reward: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	n, err := s.mdb.Collection(colRewards).CountDocuments(ctx, bson.M{"_id": rewardID.String()})
	if err != nil {
		return fmt.Errorf("tally/mongo: claim reward: %w", err)
	}
	if n == 0 {
		return tally.ErrRewardNotFound
	}
	return tally.ErrRewardExhausted
}

func (s *Store) ReleaseReward(ctx context.Context, rewardID id.RewardID) error {
	res, err := s.mdb.NewUpdate((*rewardModel)(nil)).
		Filter(bson.M{"_id": rewardID.String(), "claimed": bson.M{"$gt": 0}}).
		SetUpdate(bson.M{
			"$inc": bson.M{"claimed": -1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: release reward: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	n, err := s.mdb.Collection(colRewards).CountDocuments(ctx, bson.M{"_id": rewardID.String()})
	if err != nil {
		return fmt.Errorf("tally/mongo: release reward: %w", err)
	}
	if n == 0 {
		return tally.ErrRewardNotFound
	}
	return nil
}

func (s *Store) CreateRedemption(ctx context.Context, r *reward.Redemption) error {
	if _, err := s.mdb.NewInsert(toRedemptionModel(r)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrDuplicateRedemption
		}
		return fmt.Errorf("tally/mongo: create redemption: %w", err)
	}
	return nil
}

func (s *Store) GetRedemption(ctx context.Context, tenantID string, redID id.RedemptionID) (*reward.Redemption, error) {
	var m redemptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": redID.String(), "tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get redemption: %w", err)
	}
	return fromRedemptionModel(&m)
}

func (s *Store) ListRedemptions(ctx context.Context, tenantID string, opts reward.RedemptionListOpts) ([]*reward.Redemption, error) {
	var models []redemptionModel

	filter := bson.M{"tenant_id": tenantID}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}
	if !opts.RewardID.IsNil() {
		filter["reward_id"] = opts.RewardID.String()
	}
	if len(opts.Statuses) > 0 {
		filter["status"] = bson.M{"$in": statusValues(opts.Statuses)}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list redemptions: %w", err)
	}

	out := make([]*reward.Redemption, 0, len(models))
	for i := range models {
		r, err := fromRedemptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CountRedemptions(ctx context.Context, rewardID id.RewardID, statuses ...reward.Status) (int, error) {
	filter := bson.M{"reward_id": rewardID.String()}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statusValues(statuses)}
	}
	n, err := s.mdb.Collection(colRedemptions).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: count redemptions: %w", err)
	}
	return int(n), nil
}

func (s *Store) TransitionRedemption(ctx context.Context, r *reward.Redemption, from reward.Status) error {
	m := toRedemptionModel(r)
	res, err := s.mdb.NewUpdate((*redemptionModel)(nil)).
		Filter(bson.M{"_id": m.ID, "tenant_id": m.TenantID, "status": string(from)}).
		Set("status", m.Status).
		Set("open", m.Open).
		Set("pickup", m.Pickup).
		Set("delivery", m.Delivery).
		Set("admin_note", m.AdminNote).
		Set("reviewed_by", m.ReviewedBy).
		Set("reviewed_at", m.ReviewedAt).
		Set("delivered_at", m.DeliveredAt).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: transition redemption: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	if _, err := s.GetRedemption(ctx, r.TenantID, r.ID); err != nil {
		return err
	}
	return tally.ErrInvalidTransition
}

// ==================== Member Store ====================

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	if _, err := s.mdb.NewInsert(toMemberModel(m)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, tenantID string, memberID id.MemberID) (*member.Member, error) {
	var m memberModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": memberID.String(), "tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrMemberNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get member: %w", err)
	}
	return fromMemberModel(&m)
}

func (s *Store) ListMembers(ctx context.Context, tenantID string, role member.Role) ([]*member.Member, error) {
	var models []memberModel

	filter := bson.M{"tenant_id": tenantID}
	if role != "" {
		filter["role"] = string(role)
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list members: %w", err)
	}

	out := make([]*member.Member, 0, len(models))
	for i := range models {
		m, err := fromMemberModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ==================== Notification Store ====================

func (s *Store) CreateNotification(ctx context.Context, n *notification.Notification) error {
	if _, err := s.mdb.NewInsert(toNotificationModel(n)).Exec(ctx); err != nil {
		return fmt.Errorf("tally/mongo: create notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, opts notification.ListOpts) ([]*notification.Notification, error) {
	var models []notificationModel

	filter := bson.M{"tenant_id": tenantID, "user_id": userID}
	if opts.UnreadOnly {
		filter["read"] = false
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list notifications: %w", err)
	}

	out := make([]*notification.Notification, 0, len(models))
	for i := range models {
		n, err := fromNotificationModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, tenantID, userID string, ntfID id.NotificationID) error {
	res, err := s.mdb.NewUpdate((*notificationModel)(nil)).
		Filter(bson.M{"_id": ntfID.String(), "tenant_id": tenantID, "user_id": userID}).
		Set("read", true).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: mark notification read: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrNotificationNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// sum totals field over the documents of col matching match.
func (s *Store) sum(ctx context.Context, col, field string, match bson.M) (int64, error) {
	pipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": field}}},
	}

	cursor, err := s.mdb.Collection(col).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: aggregate %s: %w", col, err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("tally/mongo: aggregate %s decode: %w", col, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// statusExpr derives the stored payment status from paid and total.
func statusExpr(paid, total any) bson.M {
	return bson.M{"$switch": bson.M{
		"branches": bson.A{
			bson.M{"case": bson.M{"$gte": bson.A{paid, total}}, "then": string(invoice.StatusPaid)},
			bson.M{"case": bson.M{"$gt": bson.A{paid, 0}}, "then": string(invoice.StatusPartiallyPaid)},
		},
		"default": string(invoice.StatusUnpaid),
	}}
}

func statusValues(statuses []reward.Status) bson.A {
	out := make(bson.A, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "year", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "issue_date", Value: -1}}},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "paid_at", Value: -1}}},
		},
		colScores: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "period", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "period", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colRewards: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		colRedemptions: {
			{
				Keys: bson.D{{Key: "reward_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"open": true}),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}}},
		},
		colMembers: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "role", Value: 1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}

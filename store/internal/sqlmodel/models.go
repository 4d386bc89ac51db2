// Package sqlmodel holds the grove row models shared by the postgres and
// sqlite stores. Both schemas are created by SQL migrations, so the models
// carry column names only.
package sqlmodel

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
	"github.com/xraph/tally/types"
)

// ==================== Invoice models ====================

// Invoice is a tally_invoices row. Customer and lines are stored as JSON.
type Invoice struct {
	grove.BaseModel `grove:"table:tally_invoices"`

	ID                string          `grove:"id,pk"`
	TenantID          string          `grove:"tenant_id"`
	Number            string          `grove:"number"`
	Year              int             `grove:"year"`
	Month             int             `grove:"month"`
	Sequence          int             `grove:"sequence"`
	CustomerName      string          `grove:"customer_name"`
	Customer          json.RawMessage `grove:"customer"`
	ContactID         string          `grove:"contact_id"`
	Lines             json.RawMessage `grove:"lines"`
	Currency          string          `grove:"currency"`
	Subtotal          int64           `grove:"subtotal"`
	Tax               int64           `grove:"tax"`
	Total             int64           `grove:"total"`
	AmountPaid        int64           `grove:"amount_paid"`
	AmountDue         int64           `grove:"amount_due"`
	PaymentStatus     string          `grove:"payment_status"`
	IssueDate         time.Time       `grove:"issue_date"`
	DueDate           time.Time       `grove:"due_date"`
	PaymentMethod     string          `grove:"payment_method"`
	Notes             string          `grove:"notes"`
	CreatedBy         string          `grove:"created_by"`
	OverdueNotifiedAt *time.Time      `grove:"overdue_notified_at"`
	CreatedAt         time.Time       `grove:"created_at"`
	UpdatedAt         time.Time       `grove:"updated_at"`
}

// EncodeInvoice flattens inv into its row.
func EncodeInvoice(inv *invoice.Invoice) *Invoice {
	customer, _ := json.Marshal(inv.Customer) //nolint:errcheck // plain struct
	lines, _ := json.Marshal(inv.Lines)       //nolint:errcheck // plain struct

	return &Invoice{
		ID:                inv.ID.String(),
		TenantID:          inv.TenantID,
		Number:            inv.Number,
		Year:              inv.Year,
		Month:             int(inv.IssueDate.Month()),
		Sequence:          inv.Sequence,
		CustomerName:      inv.Customer.Name,
		Customer:          customer,
		ContactID:         inv.ContactID,
		Lines:             lines,
		Currency:          inv.Currency,
		Subtotal:          inv.Subtotal.Amount,
		Tax:               inv.Tax.Amount,
		Total:             inv.Total.Amount,
		AmountPaid:        inv.AmountPaid.Amount,
		AmountDue:         inv.AmountDue.Amount,
		PaymentStatus:     string(inv.PaymentStatus),
		IssueDate:         inv.IssueDate,
		DueDate:           inv.DueDate,
		PaymentMethod:     inv.PaymentMethod,
		Notes:             inv.Notes,
		CreatedBy:         inv.CreatedBy,
		OverdueNotifiedAt: inv.OverdueNotifiedAt,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
	}
}

// DecodeInvoice rebuilds the invoice stored in m.
func DecodeInvoice(m *Invoice) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                invID,
		TenantID:          m.TenantID,
		Number:            m.Number,
		Year:              m.Year,
		Sequence:          m.Sequence,
		ContactID:         m.ContactID,
		Currency:          m.Currency,
		Subtotal:          types.New(m.Subtotal, m.Currency),
		Tax:               types.New(m.Tax, m.Currency),
		Total:             types.New(m.Total, m.Currency),
		AmountPaid:        types.New(m.AmountPaid, m.Currency),
		AmountDue:         types.New(m.AmountDue, m.Currency),
		PaymentStatus:     invoice.Status(m.PaymentStatus),
		IssueDate:         m.IssueDate.UTC(),
		DueDate:           m.DueDate.UTC(),
		PaymentMethod:     m.PaymentMethod,
		Notes:             m.Notes,
		CreatedBy:         m.CreatedBy,
		OverdueNotifiedAt: m.OverdueNotifiedAt,
	}
	if len(m.Customer) > 0 {
		if err := json.Unmarshal(m.Customer, &inv.Customer); err != nil {
			return nil, err
		}
	}
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &inv.Lines); err != nil {
			return nil, err
		}
	}
	for i := range inv.Lines {
		inv.Lines[i].UnitPrice.Currency = m.Currency
		inv.Lines[i].Amount.Currency = m.Currency
	}
	return inv, nil
}

// ==================== Payment models ====================

// Payment is a tally_payments row.
type Payment struct {
	grove.BaseModel `grove:"table:tally_payments"`

	ID         string    `grove:"id,pk"`
	TenantID   string    `grove:"tenant_id"`
	InvoiceID  string    `grove:"invoice_id"`
	Amount     int64     `grove:"amount"`
	Currency   string    `grove:"currency"`
	Method     string    `grove:"method"`
	PaidAt     time.Time `grove:"paid_at"`
	Reference  string    `grove:"reference"`
	Notes      string    `grove:"notes"`
	RecordedBy string    `grove:"recorded_by"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func EncodePayment(p *payment.Payment) *Payment {
	return &Payment{
		ID:         p.ID.String(),
		TenantID:   p.TenantID,
		InvoiceID:  p.InvoiceID.String(),
		Amount:     p.Amount.Amount,
		Currency:   p.Amount.Currency,
		Method:     string(p.Method),
		PaidAt:     p.PaidAt,
		Reference:  p.Reference,
		Notes:      p.Notes,
		RecordedBy: p.RecordedBy,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func DecodePayment(m *Payment) (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}
	return &payment.Payment{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         payID,
		TenantID:   m.TenantID,
		InvoiceID:  invID,
		Amount:     types.New(m.Amount, m.Currency),
		Method:     payment.Method(m.Method),
		PaidAt:     m.PaidAt.UTC(),
		Reference:  m.Reference,
		Notes:      m.Notes,
		RecordedBy: m.RecordedBy,
	}, nil
}

// ==================== Score models ====================

// Score is a tally_scores row.
type Score struct {
	grove.BaseModel `grove:"table:tally_scores"`

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	UserID    string    `grove:"user_id"`
	Points    int64     `grove:"points"`
	Period    string    `grove:"period"`
	Reason    string    `grove:"reason"`
	Source    string    `grove:"source"`
	CreatedAt time.Time `grove:"created_at"`
}

func EncodeScore(s *score.Score) *Score {
	return &Score{
		ID:        s.ID.String(),
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		Points:    s.Points,
		Period:    s.Period,
		Reason:    s.Reason,
		Source:    s.Source,
		CreatedAt: s.CreatedAt,
	}
}

func DecodeScore(m *Score) (*score.Score, error) {
	scoreID, err := id.ParseScoreID(m.ID)
	if err != nil {
		return nil, err
	}
	return &score.Score{
		ID:        scoreID,
		TenantID:  m.TenantID,
		UserID:    m.UserID,
		Points:    m.Points,
		Period:    m.Period,
		Reason:    m.Reason,
		Source:    m.Source,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

// Standing is one leaderboard aggregate.
type Standing struct {
	UserID string `grove:"user_id"`
	Points int64  `grove:"points"`
}

// ==================== Reward models ====================

// Reward is a tally_rewards row.
type Reward struct {
	grove.BaseModel `grove:"table:tally_rewards"`

	ID           string    `grove:"id,pk"`
	TenantID     string    `grove:"tenant_id"`
	Name         string    `grove:"name"`
	Description  string    `grove:"description"`
	ImageURL     string    `grove:"image_url"`
	CostLifetime int64     `grove:"cost_lifetime"`
	CostMonthly  int64     `grove:"cost_monthly"`
	Quantity     int64     `grove:"quantity"`
	Claimed      int64     `grove:"claimed"`
	Available    bool      `grove:"available"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func EncodeReward(r *reward.Reward) *Reward {
	return &Reward{
		ID:           r.ID.String(),
		TenantID:     r.TenantID,
		Name:         r.Name,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		CostLifetime: r.CostLifetime,
		CostMonthly:  r.CostMonthly,
		Quantity:     r.Quantity,
		Claimed:      r.Claimed,
		Available:    r.Available,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func DecodeReward(m *Reward) (*reward.Reward, error) {
	rewardID, err := id.ParseRewardID(m.ID)
	if err != nil {
		return nil, err
	}
	return &reward.Reward{
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           rewardID,
		TenantID:     m.TenantID,
		Name:         m.Name,
		Description:  m.Description,
		ImageURL:     m.ImageURL,
		CostLifetime: m.CostLifetime,
		CostMonthly:  m.CostMonthly,
		Quantity:     m.Quantity,
		Claimed:      m.Claimed,
		Available:    m.Available,
	}, nil
}

// Redemption is a tally_redemptions row. Delivery is JSON, null until a
// home delivery is chosen.
type Redemption struct {
	grove.BaseModel `grove:"table:tally_redemptions"`

	ID            string          `grove:"id,pk"`
	TenantID      string          `grove:"tenant_id"`
	RewardID      string          `grove:"reward_id"`
	RewardName    string          `grove:"reward_name"`
	UserID        string          `grove:"user_id"`
	Status        string          `grove:"status"`
	PointsTotal   int64           `grove:"points_total"`
	PointsMonthly int64           `grove:"points_monthly"`
	Pickup        string          `grove:"pickup"`
	Delivery      json.RawMessage `grove:"delivery"`
	AdminNote     string          `grove:"admin_note"`
	ReviewedBy    string          `grove:"reviewed_by"`
	ReviewedAt    *time.Time      `grove:"reviewed_at"`
	DeliveredAt   *time.Time      `grove:"delivered_at"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func EncodeRedemption(r *reward.Redemption) *Redemption {
	var delivery json.RawMessage
	if r.Delivery != nil {
		delivery, _ = json.Marshal(r.Delivery) //nolint:errcheck // plain struct
	}
	return &Redemption{
		ID:            r.ID.String(),
		TenantID:      r.TenantID,
		RewardID:      r.RewardID.String(),
		RewardName:    r.RewardName,
		UserID:        r.UserID,
		Status:        string(r.Status),
		PointsTotal:   r.PointsTotal,
		PointsMonthly: r.PointsMonthly,
		Pickup:        string(r.Pickup),
		Delivery:      delivery,
		AdminNote:     r.AdminNote,
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    r.ReviewedAt,
		DeliveredAt:   r.DeliveredAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func DecodeRedemption(m *Redemption) (*reward.Redemption, error) {
	redID, err := id.ParseRedemptionID(m.ID)
	if err != nil {
		return nil, err
	}
	rewardID, err := id.ParseRewardID(m.RewardID)
	if err != nil {
		return nil, err
	}
	r := &reward.Redemption{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            redID,
		TenantID:      m.TenantID,
		RewardID:      rewardID,
		RewardName:    m.RewardName,
		UserID:        m.UserID,
		Status:        reward.Status(m.Status),
		PointsTotal:   m.PointsTotal,
		PointsMonthly: m.PointsMonthly,
		Pickup:        reward.PickupMethod(m.Pickup),
		AdminNote:     m.AdminNote,
		ReviewedBy:    m.ReviewedBy,
		ReviewedAt:    m.ReviewedAt,
		DeliveredAt:   m.DeliveredAt,
	}
	if len(m.Delivery) > 0 && string(m.Delivery) != "null" {
		r.Delivery = new(reward.Delivery)
		if err := json.Unmarshal(m.Delivery, r.Delivery); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ==================== Member models ====================

// Member is a tally_members row.
type Member struct {
	grove.BaseModel `grove:"table:tally_members"`

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	Name      string    `grove:"name"`
	Email     string    `grove:"email"`
	Role      string    `grove:"role"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func EncodeMember(m *member.Member) *Member {
	return &Member{
		ID:        m.ID.String(),
		TenantID:  m.TenantID,
		Name:      m.Name,
		Email:     m.Email,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func DecodeMember(m *Member) (*member.Member, error) {
	memberID, err := id.ParseMemberID(m.ID)
	if err != nil {
		return nil, err
	}
	return &member.Member{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       memberID,
		TenantID: m.TenantID,
		Name:     m.Name,
		Email:    m.Email,
		Role:     member.Role(m.Role),
	}, nil
}

// ==================== Notification models ====================

// Notification is a tally_notifications row.
type Notification struct {
	grove.BaseModel `grove:"table:tally_notifications"`

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	UserID    string    `grove:"user_id"`
	Kind      string    `grove:"kind"`
	Title     string    `grove:"title"`
	Message   string    `grove:"message"`
	Link      string    `grove:"link"`
	Read      bool      `grove:"read"`
	CreatedAt time.Time `grove:"created_at"`
}

func EncodeNotification(n *notification.Notification) *Notification {
	return &Notification{
		ID:        n.ID.String(),
		TenantID:  n.TenantID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func DecodeNotification(m *Notification) (*notification.Notification, error) {
	ntfID, err := id.ParseNotificationID(m.ID)
	if err != nil {
		return nil, err
	}
	return &notification.Notification{
		ID:        ntfID,
		TenantID:  m.TenantID,
		UserID:    m.UserID,
		Kind:      notification.Kind(m.Kind),
		Title:     m.Title,
		Message:   m.Message,
		Link:      m.Link,
		Read:      m.Read,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

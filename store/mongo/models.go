package mongo

import (
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

type invoiceModel struct {
	grove.BaseModel `grove:"table:tally_invoices"`

	ID                string        `grove:"id,pk"               bson:"_id"`
	TenantID          string        `grove:"tenant_id"           bson:"tenant_id"`
	Number            string        `grove:"number"              bson:"number"`
	Year              int           `grove:"year"                bson:"year"`
	Month             int           `grove:"month"               bson:"month"`
	Sequence          int           `grove:"sequence"            bson:"sequence"`
	CustomerName      string        `grove:"customer_name"       bson:"customer_name"`
	Customer          customerModel `grove:"customer"            bson:"customer"`
	ContactID         string        `grove:"contact_id"          bson:"contact_id"`
	Lines             []lineModel   `grove:"lines"               bson:"lines"`
	Currency          string        `grove:"currency"            bson:"currency"`
	Subtotal          int64         `grove:"subtotal"            bson:"subtotal"`
	Tax               int64         `grove:"tax"                 bson:"tax"`
	Total             int64         `grove:"total"               bson:"total"`
	AmountPaid        int64         `grove:"amount_paid"         bson:"amount_paid"`
	AmountDue         int64         `grove:"amount_due"          bson:"amount_due"`
	PaymentStatus     string        `grove:"payment_status"      bson:"payment_status"`
	IssueDate         time.Time     `grove:"issue_date"          bson:"issue_date"`
	DueDate           time.Time     `grove:"due_date"            bson:"due_date"`
	PaymentMethod     string        `grove:"payment_method"      bson:"payment_method"`
	Notes             string        `grove:"notes"               bson:"notes"`
	CreatedBy         string        `grove:"created_by"          bson:"created_by"`
	OverdueNotifiedAt *time.Time    `grove:"overdue_notified_at" bson:"overdue_notified_at,omitempty"`
	CreatedAt         time.Time     `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time     `grove:"updated_at"          bson:"updated_at"`
}

type customerModel struct {
	Name       string `bson:"name"`
	VATNumber  string `bson:"vat_number,omitempty"`
	TaxCode    string `bson:"tax_code,omitempty"`
	Address    string `bson:"address,omitempty"`
	City       string `bson:"city,omitempty"`
	PostalCode string `bson:"postal_code,omitempty"`
	Country    string `bson:"country,omitempty"`
	Email      string `bson:"email,omitempty"`
	Phone      string `bson:"phone,omitempty"`
}

type lineModel struct {
	Description string `bson:"description"`
	Quantity    int64  `bson:"quantity"`
	UnitPrice   int64  `bson:"unit_price"`
	VATRate     int64  `bson:"vat_rate"`
	Amount      int64  `bson:"amount"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	lines := make([]lineModel, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = lineModel{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.Amount,
			VATRate:     l.VATRate,
			Amount:      l.Amount.Amount,
		}
	}
	c := inv.Customer
	return &invoiceModel{
		ID:           inv.ID.String(),
		TenantID:     inv.TenantID,
		Number:       inv.Number,
		Year:         inv.Year,
		Month:        int(inv.IssueDate.Month()),
		Sequence:     inv.Sequence,
		CustomerName: c.Name,
		Customer: customerModel{
			Name: c.Name, VATNumber: c.VATNumber, TaxCode: c.TaxCode,
			Address: c.Address, City: c.City, PostalCode: c.PostalCode,
			Country: c.Country, Email: c.Email, Phone: c.Phone,
		},
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

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}

	lines := make([]invoice.LineItem, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = invoice.LineItem{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   types.New(l.UnitPrice, m.Currency),
			VATRate:     l.VATRate,
			Amount:      types.New(l.Amount, m.Currency),
		}
	}
	c := m.Customer
	return &invoice.Invoice{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:       invID,
		TenantID: m.TenantID,
		Number:   m.Number,
		Year:     m.Year,
		Sequence: m.Sequence,
		Customer: invoice.Customer{
			Name: c.Name, VATNumber: c.VATNumber, TaxCode: c.TaxCode,
			Address: c.Address, City: c.City, PostalCode: c.PostalCode,
			Country: c.Country, Email: c.Email, Phone: c.Phone,
		},
		ContactID:         m.ContactID,
		Lines:             lines,
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
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:tally_payments"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	TenantID   string    `grove:"tenant_id"   bson:"tenant_id"`
	InvoiceID  string    `grove:"invoice_id"  bson:"invoice_id"`
	Amount     int64     `grove:"amount"      bson:"amount"`
	Currency   string    `grove:"currency"    bson:"currency"`
	Method     string    `grove:"method"      bson:"method"`
	PaidAt     time.Time `grove:"paid_at"     bson:"paid_at"`
	Reference  string    `grove:"reference"   bson:"reference"`
	Notes      string    `grove:"notes"       bson:"notes"`
	RecordedBy string    `grove:"recorded_by" bson:"recorded_by"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
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

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
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

type scoreModel struct {
	grove.BaseModel `grove:"table:tally_scores"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Points    int64     `grove:"points"     bson:"points"`
	Period    string    `grove:"period"     bson:"period"`
	Reason    string    `grove:"reason"     bson:"reason"`
	Source    string    `grove:"source"     bson:"source"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}

func toScoreModel(s *score.Score) *scoreModel {
	return &scoreModel{
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

func fromScoreModel(m *scoreModel) (*score.Score, error) {
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

// ==================== Reward models ====================

type rewardModel struct {
	grove.BaseModel `grove:"table:tally_rewards"`

	ID           string    `grove:"id,pk"         bson:"_id"`
	TenantID     string    `grove:"tenant_id"     bson:"tenant_id"`
	Name         string    `grove:"name"          bson:"name"`
	Description  string    `grove:"description"   bson:"description"`
	ImageURL     string    `grove:"image_url"     bson:"image_url"`
	CostLifetime int64     `grove:"cost_lifetime" bson:"cost_lifetime"`
	CostMonthly  int64     `grove:"cost_monthly"  bson:"cost_monthly"`
	Quantity     int64     `grove:"quantity"      bson:"quantity"`
	Claimed      int64     `grove:"claimed"       bson:"claimed"`
	Available    bool      `grove:"available"     bson:"available"`
	CreatedAt    time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"    bson:"updated_at"`
}

func toRewardModel(r *reward.Reward) *rewardModel {
	return &rewardModel{
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

func fromRewardModel(m *rewardModel) (*reward.Reward, error) {
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

// redemptionModel carries Open alongside Status so the partial unique
// index can use a plain equality filter.
type redemptionModel struct {
	grove.BaseModel `grove:"table:tally_redemptions"`

	ID            string         `grove:"id,pk"          bson:"_id"`
	TenantID      string         `grove:"tenant_id"      bson:"tenant_id"`
	RewardID      string         `grove:"reward_id"      bson:"reward_id"`
	RewardName    string         `grove:"reward_name"    bson:"reward_name"`
	UserID        string         `grove:"user_id"        bson:"user_id"`
	Status        string         `grove:"status"         bson:"status"`
	Open          bool           `grove:"open"           bson:"open"`
	PointsTotal   int64          `grove:"points_total"   bson:"points_total"`
	PointsMonthly int64          `grove:"points_monthly" bson:"points_monthly"`
	Pickup        string         `grove:"pickup"         bson:"pickup"`
	Delivery      *deliveryModel `grove:"delivery"       bson:"delivery,omitempty"`
	AdminNote     string         `grove:"admin_note"     bson:"admin_note"`
	ReviewedBy    string         `grove:"reviewed_by"    bson:"reviewed_by"`
	ReviewedAt    *time.Time     `grove:"reviewed_at"    bson:"reviewed_at,omitempty"`
	DeliveredAt   *time.Time     `grove:"delivered_at"   bson:"delivered_at,omitempty"`
	CreatedAt     time.Time      `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time      `grove:"updated_at"     bson:"updated_at"`
}

type deliveryModel struct {
	Address    string `bson:"address"`
	City       string `bson:"city"`
	PostalCode string `bson:"postal_code"`
	Phone      string `bson:"phone"`
	Notes      string `bson:"notes,omitempty"`
}

func toRedemptionModel(r *reward.Redemption) *redemptionModel {
	m := &redemptionModel{
		ID:            r.ID.String(),
		TenantID:      r.TenantID,
		RewardID:      r.RewardID.String(),
		RewardName:    r.RewardName,
		UserID:        r.UserID,
		Status:        string(r.Status),
		Open:          r.Status.Open(),
		PointsTotal:   r.PointsTotal,
		PointsMonthly: r.PointsMonthly,
		Pickup:        string(r.Pickup),
		AdminNote:     r.AdminNote,
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    r.ReviewedAt,
		DeliveredAt:   r.DeliveredAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if d := r.Delivery; d != nil {
		m.Delivery = &deliveryModel{
			Address: d.Address, City: d.City, PostalCode: d.PostalCode,
			Phone: d.Phone, Notes: d.Notes,
		}
	}
	return m
}

func fromRedemptionModel(m *redemptionModel) (*reward.Redemption, error) {
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
	if d := m.Delivery; d != nil {
		r.Delivery = &reward.Delivery{
			Address: d.Address, City: d.City, PostalCode: d.PostalCode,
			Phone: d.Phone, Notes: d.Notes,
		}
	}
	return r, nil
}

// ==================== Member models ====================

type memberModel struct {
	grove.BaseModel `grove:"table:tally_members"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	Name      string    `grove:"name"       bson:"name"`
	Email     string    `grove:"email"      bson:"email"`
	Role      string    `grove:"role"       bson:"role"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toMemberModel(m *member.Member) *memberModel {
	return &memberModel{
		ID:        m.ID.String(),
		TenantID:  m.TenantID,
		Name:      m.Name,
		Email:     m.Email,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromMemberModel(m *memberModel) (*member.Member, error) {
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

type notificationModel struct {
	grove.BaseModel `grove:"table:tally_notifications"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	TenantID  string    `grove:"tenant_id"  bson:"tenant_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Kind      string    `grove:"kind"       bson:"kind"`
	Title     string    `grove:"title"      bson:"title"`
	Message   string    `grove:"message"    bson:"message"`
	Link      string    `grove:"link"       bson:"link"`
	Read      bool      `grove:"read"       bson:"read"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}

func toNotificationModel(n *notification.Notification) *notificationModel {
	return &notificationModel{
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

func fromNotificationModel(m *notificationModel) (*notification.Notification, error) {
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

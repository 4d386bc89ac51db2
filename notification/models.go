// Package notification stores in-app messages addressed to one member.
package notification

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
)

// Kind classifies a notification.
type Kind string

const (
	KindRewardRequested Kind = "reward_requested"
	KindRewardApproved  Kind = "reward_approved"
	KindRewardRejected  Kind = "reward_rejected"
	KindPickupChosen    Kind = "reward_pickup_chosen"
	KindRewardDelivered Kind = "reward_delivered"
	KindInvoiceOverdue  Kind = "invoice_overdue"
)

// Notification is a message for one user.
type Notification struct {
	ID        id.NotificationID `json:"id"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id"`
	Kind      Kind              `json:"kind"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Link      string            `json:"link,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, tenantID, userID string, opts ListOpts) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, tenantID, userID string, ntfID id.NotificationID) error
}

// ListOpts filters ListNotifications. Results are newest first.
type ListOpts struct {
	UnreadOnly bool
	Limit      int
}

package tally

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/notification"
)

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

// ListNotifications lists the caller's notifications, newest first.
func (t *Tally) ListNotifications(ctx context.Context, opts notification.ListOpts) ([]*notification.Notification, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListNotifications(ctx, sc.TenantID, sc.UserID, opts)
}

// MarkNotificationRead marks one of the caller's notifications read.
func (t *Tally) MarkNotificationRead(ctx context.Context, ntfID id.NotificationID) error {
	sc, err := t.scope(ctx)
	if err != nil {
		return err
	}
	return t.store.MarkNotificationRead(ctx, sc.TenantID, sc.UserID, ntfID)
}

// notify stores a notification. Delivery failures are logged and never
// fail the operation that caused them.
func (t *Tally) notify(ctx context.Context, tenantID, userID string, kind notification.Kind, title, message, link string) {
	n := &notification.Notification{
		ID:        id.NewNotificationID(),
		TenantID:  tenantID,
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: t.now(),
	}
	if err := t.store.CreateNotification(ctx, n); err != nil {
		t.logger.Warn("notification not stored",
			"tenant_id", tenantID,
			"user_id", userID,
			"kind", string(kind),
			"error", err,
		)
	}
}

// notifyAdmins sends the same notification to every admin of the tenant.
func (t *Tally) notifyAdmins(ctx context.Context, tenantID string, kind notification.Kind, title, message, link string) int {
	admins, err := t.store.ListMembers(ctx, tenantID, member.RoleAdmin)
	if err != nil {
		t.logger.Warn("admins not notified", "tenant_id", tenantID, "kind", string(kind), "error", err)
		return 0
	}
	for _, a := range admins {
		t.notify(ctx, tenantID, a.ID.String(), kind, title, message, link)
	}
	return len(admins)
}

// memberName returns a display name for userID, falling back to the ID.
func (t *Tally) memberName(ctx context.Context, tenantID, userID string) string {
	memberID, err := id.ParseMemberID(userID)
	if err != nil {
		return userID
	}
	m, err := t.store.GetMember(ctx, tenantID, memberID)
	if err != nil || m.Name == "" {
		return userID
	}
	return m.Name
}

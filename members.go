package tally

import (
	"context"
	"net/mail"
	"strings"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Members
// ──────────────────────────────────────────────────

// AddMember adds m to the caller's tenant. Admin only.
func (t *Tally) AddMember(ctx context.Context, m *member.Member) error {
	sc, err := t.adminScope(ctx)
	if err != nil {
		return err
	}
	m.TenantID = sc.TenantID
	m.ID = id.Nil
	return t.ImportMember(ctx, m)
}

// ImportMember stores m without a caller scope. It is meant for
// provisioning (configuration seeding, the forge extension) and is not
// reachable over HTTP. A preset ID is kept so issued tokens stay valid.
func (t *Tally) ImportMember(ctx context.Context, m *member.Member) error {
	if strings.TrimSpace(m.TenantID) == "" {
		return invalid("tenant_id", "is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return invalid("name", "is required")
	}
	if m.Email != "" {
		if _, err := mail.ParseAddress(m.Email); err != nil {
			return invalid("email", "%v", err)
		}
	}
	if m.Role == "" {
		m.Role = member.RoleEmployee
	}
	if !m.Role.Valid() {
		return invalid("role", "unknown role %q", m.Role)
	}
	if m.ID.IsNil() {
		m.ID = id.NewMemberID()
	} else if m.ID.Prefix() != id.PrefixMember {
		return invalid("id", "expected a %s id", id.PrefixMember)
	}
	m.Entity = types.NewEntity(t.now())

	if err := t.store.CreateMember(ctx, m); err != nil {
		return err
	}
	t.logger.Info("member added",
		"tenant_id", m.TenantID,
		"member_id", m.ID.String(),
		"role", string(m.Role),
	)
	return nil
}

// GetMember returns a member of the caller's tenant.
func (t *Tally) GetMember(ctx context.Context, memberID id.MemberID) (*member.Member, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.GetMember(ctx, sc.TenantID, memberID)
}

// ListMembers lists the caller's tenant members, optionally of one role.
func (t *Tally) ListMembers(ctx context.Context, role member.Role) ([]*member.Member, error) {
	sc, err := t.scope(ctx)
	if err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, invalid("role", "unknown role %q", role)
	}
	return t.store.ListMembers(ctx, sc.TenantID, role)
}

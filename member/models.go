// Package member is the tenant's directory of users and their roles.
package member

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Role is a member's role within the tenant.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleEmployee }

// Member is a user belonging to exactly one tenant.
type Member struct {
	types.Entity

	ID       id.MemberID `json:"id"`
	TenantID string      `json:"tenant_id"`
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Role     Role        `json:"role"`
}

// IsAdmin reports whether m has the admin role.
func (m *Member) IsAdmin() bool { return m.Role == RoleAdmin }

// Store persists members.
type Store interface {
	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, tenantID string, memberID id.MemberID) (*Member, error)
	ListMembers(ctx context.Context, tenantID string, role Role) ([]*Member, error)
}

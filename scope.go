package tally

import (
	"context"
	"fmt"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
)

// Scope identifies the caller of an operation: the tenant whose data it
// may touch, the member acting, and that member's role.
type Scope struct {
	TenantID string
	UserID   string
	Role     member.Role
}

// IsAdmin reports whether the caller has the admin role.
func (s Scope) IsAdmin() bool { return s.Role == member.RoleAdmin }

type scopeKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope stored in ctx.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// ResolveScope loads the member behind an authenticated identity and
// returns its scope. The role comes from the member record, not from
// whatever the caller claimed.
func (t *Tally) ResolveScope(ctx context.Context, tenantID, userID string) (Scope, error) {
	if tenantID == "" || userID == "" {
		return Scope{}, ErrUnauthorized
	}
	memberID, err := id.ParseMemberID(userID)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	m, err := t.store.GetMember(ctx, tenantID, memberID)
	if err != nil {
		if IsNotFound(err) {
			return Scope{}, fmt.Errorf("%w: not a member of tenant %s", ErrUnauthorized, tenantID)
		}
		return Scope{}, err
	}
	return Scope{TenantID: m.TenantID, UserID: m.ID.String(), Role: m.Role}, nil
}

func (t *Tally) scope(ctx context.Context) (Scope, error) {
	s, ok := ScopeFrom(ctx)
	if !ok || s.TenantID == "" || s.UserID == "" {
		return Scope{}, ErrUnauthorized
	}
	return s, nil
}

func (t *Tally) adminScope(ctx context.Context) (Scope, error) {
	s, err := t.scope(ctx)
	if err != nil {
		return Scope{}, err
	}
	if !s.IsAdmin() {
		return Scope{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return s, nil
}

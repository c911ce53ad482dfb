// Package access maps family membership roles to permissions and gates
// requests against them.
package access

import (
	"context"
	"log/slog"

	"github.com/dukerupert/heirloom/internal/model"
)

type Permission string

const (
	View   Permission = "view"
	Edit   Permission = "edit"
	Manage Permission = "manage"
	Invite Permission = "invite"
	Admin  Permission = "admin"
)

// rolePermissions is a flat table; no role inherits from another.
var rolePermissions = map[model.Role]map[Permission]bool{
	model.RoleOwner:  {View: true, Edit: true, Manage: true, Invite: true, Admin: true},
	model.RoleMember: {View: true, Edit: true, Invite: true},
	model.RoleEditor: {View: true, Edit: true},
	model.RoleViewer: {View: true},
}

// Allows reports whether role grants perm.
func Allows(role model.Role, perm Permission) bool {
	return rolePermissions[role][perm]
}

// Permissions returns the permissions granted to role in a stable order.
func Permissions(role model.Role) []Permission {
	var perms []Permission
	for _, p := range []Permission{View, Edit, Manage, Invite, Admin} {
		if Allows(role, p) {
			perms = append(perms, p)
		}
	}
	return perms
}

// MembershipReader returns the active membership for a user in a family, or
// nil if there is none.
type MembershipReader interface {
	GetActiveMembership(ctx context.Context, familyID, userID int64) (*model.Membership, error)
}

// DenialRecorder is notified of every denied check.
type DenialRecorder interface {
	RecordDenial(perm Permission)
}

type Gate struct {
	memberships MembershipReader
	recorder    DenialRecorder
	logger      *slog.Logger
}

func NewGate(memberships MembershipReader, recorder DenialRecorder, logger *slog.Logger) *Gate {
	return &Gate{memberships: memberships, recorder: recorder, logger: logger}
}

// Check reports whether userID holds perm in familyID. A missing or inactive
// membership, or a lookup failure, is a denial and never an error.
func (g *Gate) Check(ctx context.Context, userID, familyID int64, perm Permission) bool {
	role, ok := g.Role(ctx, userID, familyID)
	if ok && Allows(role, perm) {
		return true
	}
	if g.recorder != nil {
		g.recorder.RecordDenial(perm)
	}
	return false
}

// Role returns the caller's role in the family if they hold an active
// membership.
func (g *Gate) Role(ctx context.Context, userID, familyID int64) (model.Role, bool) {
	if userID == 0 || familyID == 0 {
		return "", false
	}
	m, err := g.memberships.GetActiveMembership(ctx, familyID, userID)
	if err != nil {
		g.logger.Error("membership lookup", "user_id", userID, "family_id", familyID, "error", err)
		return "", false
	}
	if m == nil || !m.Active {
		return "", false
	}
	return m.Role, true
}

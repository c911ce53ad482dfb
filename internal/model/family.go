package model

import "time"

// Role is a user's access level within one family.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleMember, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Assignable reports whether r may be granted by invitation or role change.
// Ownership is only ever set at family creation.
func (r Role) Assignable() bool {
	return r.Valid() && r != RoleOwner
}

type Family struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	AccessCode string    `json:"access_code"`
	OwnerID    int64     `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Membership struct {
	ID        int64      `json:"id"`
	FamilyID  int64      `json:"family_id"`
	UserID    int64      `json:"user_id"`
	Role      Role       `json:"role"`
	InvitedBy *int64     `json:"invited_by"`
	InvitedAt *time.Time `json:"invited_at"`
	JoinedAt  time.Time  `json:"joined_at"`
	Active    bool       `json:"active"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MemberProfile is a membership joined with the member's display identity.
type MemberProfile struct {
	Membership
	Email string `json:"email"`
	Name  string `json:"name"`
}

// FamilyWithRole is one entry of a user's family list.
type FamilyWithRole struct {
	Family
	Role Role `json:"role"`
}

type Invitation struct {
	ID         int64      `json:"id"`
	FamilyID   int64      `json:"family_id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	InvitedBy  int64      `json:"invited_by"`
	Token      string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
	ConsumedBy *int64     `json:"consumed_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func (i *Invitation) IsConsumed() bool {
	return i.ConsumedAt != nil
}

// IsPending reports whether the invitation can still be accepted.
func (i *Invitation) IsPending(now time.Time) bool {
	return !i.IsConsumed() && !i.IsExpired(now)
}

package session

import (
	"time"

	"github.com/premproperties/portalauth/permission"
)

// Kind separates the admin and member cookie families.
type Kind string

const (
	KindAdmin  Kind = "admin"
	KindMember Kind = "member"
)

// ParseKind accepts "admin" or "member".
func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(raw); k {
	case KindAdmin, KindMember:
		return k, true
	default:
		return "", false
	}
}

// Login methods recorded in the session.
const (
	MethodOTP      = "otp"
	MethodPassword = "password"
)

// Session is the trusted result of a successful login.
type Session struct {
	Kind          Kind
	Authenticated bool
	Subject       string
	Email         string
	Name          string
	Role          permission.Role
	Permissions   permission.Set
	LoginMethod   string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// roleMatchesKind enforces the fixed schema per kind: admin sessions carry an
// admin role, member sessions carry the member role.
func roleMatchesKind(kind Kind, role permission.Role) bool {
	switch kind {
	case KindAdmin:
		return role.IsAdmin()
	case KindMember:
		return role == permission.RoleMember
	default:
		return false
	}
}

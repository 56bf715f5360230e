package permission

import "strings"

// Role names the class of a principal. Roles are compared exactly.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleSubAdmin   Role = "sub_admin"
	RoleMember     Role = "member"
)

// ParseRole accepts only the declared roles.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.TrimSpace(raw)); r {
	case RoleSuperAdmin, RoleSubAdmin, RoleMember:
		return r, true
	default:
		return "", false
	}
}

// Unrestricted reports whether the role holds every capability regardless of
// its explicit set.
func (r Role) Unrestricted() bool {
	return r == RoleSuperAdmin
}

// IsAdmin reports whether the role belongs to the admin family.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleSubAdmin
}

// Allows is the single permission decision: unrestricted roles pass every
// check, restricted roles pass only for capabilities in set, and anything
// undeclared is denied.
func (r Role) Allows(set Set, c Capability) bool {
	if !c.Valid() {
		return false
	}
	if !r.IsAdmin() {
		return false
	}
	if r.Unrestricted() {
		return true
	}
	return set.Has(c)
}

package session

import (
	"time"

	"github.com/premproperties/portalauth/permission"
)

// IsAuthenticated is true iff s decoded successfully, is flagged
// authenticated, and has not reached its expiry at now.
func IsAuthenticated(s *Session, now time.Time) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	return now.Before(s.ExpiresAt)
}

// HasPermission resolves name against the closed capability set. Unknown
// names and missing sessions are denied.
func HasPermission(s *Session, name string) bool {
	c, ok := permission.ParseCapability(name)
	if !ok {
		return false
	}
	return HasCapability(s, c)
}

// HasCapability is HasPermission for an already-resolved capability.
func HasCapability(s *Session, c permission.Capability) bool {
	if s == nil || !s.Authenticated || s.Kind != KindAdmin {
		return false
	}
	return s.Role.Allows(s.Permissions, c)
}

// HasRole is an exact role match.
func HasRole(s *Session, role permission.Role) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	return s.Role == role
}

package session

import (
	"net/http"
	"time"
)

const (
	AdminCookieName  = "admin-session"
	MemberCookieName = "member-session"
)

// CookieOptions carries the transport attributes for one cookie family.
type CookieOptions struct {
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

func CookieName(kind Kind) string {
	if kind == KindAdmin {
		return AdminCookieName
	}
	return MemberCookieName
}

// NewCookie builds the session cookie. It is always HttpOnly and scoped to /.
func NewCookie(kind Kind, value string, opts CookieOptions) *http.Cookie {
	sameSite := opts.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     CookieName(kind),
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   int(opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSite,
	}
}

// ExpiredCookie clears the session cookie for kind.
func ExpiredCookie(kind Kind, opts CookieOptions) *http.Cookie {
	c := NewCookie(kind, "", opts)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// ReadCookie returns the raw cookie value for kind, or "" if absent.
func ReadCookie(r *http.Request, kind Kind) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(CookieName(kind))
	if err != nil {
		return ""
	}
	return c.Value
}

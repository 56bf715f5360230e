package portalauth

import (
	"context"
	"net/http"
	"time"

	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

// IssueSession builds and signs the session for an authenticated identity.
// It returns the session and the cookie value.
func (e *Engine) IssueSession(ident *Identity, method string) (session.Session, string, error) {
	if !e.ready() {
		return session.Session{}, "", ErrEngineNotReady
	}
	if ident == nil || ident.ID == "" || ident.Email == "" {
		return session.Session{}, "", ErrIdentityNotFound
	}
	if !ident.Active {
		return session.Session{}, "", ErrUnauthorized
	}

	now := e.now().Truncate(time.Second)
	s := session.Session{
		Kind:          ident.Kind,
		Authenticated: true,
		Subject:       ident.ID,
		Email:         ident.Email,
		Name:          ident.Name,
		Role:          ident.Role,
		LoginMethod:   method,
		IssuedAt:      now,
		ExpiresAt:     now.Add(e.sessionTTL(ident.Kind)),
	}
	if ident.Kind == session.KindAdmin {
		s.Permissions = ident.Permissions
	} else {
		s.Role = permission.RoleMember
	}

	raw, err := e.codec.Encode(s)
	if err != nil {
		return session.Session{}, "", err
	}
	e.metricInc(MetricSessionIssued)
	e.emitAudit(context.Background(), auditEventSessionIssued, true, ident.ID, ident.Kind, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return s, raw, nil
}

// ParseSession decodes a cookie value for kind. Any failure, including a
// valid session of the other kind, yields nil.
func (e *Engine) ParseSession(raw string, kind session.Kind) *session.Session {
	if e == nil || e.codec == nil {
		return nil
	}
	return e.codec.DecodeKind(raw, kind)
}

// SessionFromRequest reads and decodes the cookie for kind.
func (e *Engine) SessionFromRequest(r *http.Request, kind session.Kind) *session.Session {
	raw := session.ReadCookie(r, kind)
	if raw == "" {
		return nil
	}
	return e.ParseSession(raw, kind)
}

// Authorize is the per-operation permission check handlers run before a
// state change. It does not trust that middleware already ran.
func (e *Engine) Authorize(ctx context.Context, s *session.Session, c permission.Capability) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if session.IsAuthenticated(s, e.now()) && session.HasCapability(s, c) {
		return nil
	}

	subject := ""
	var kind session.Kind
	if s != nil {
		subject, kind = s.Subject, s.Kind
	}
	e.emitAudit(ctx, auditEventAuthorizationDenied, false, subject, kind, ErrUnauthorized, func() map[string]string {
		return map[string]string{"capability": c.String()}
	})
	return ErrUnauthorized
}

// IsAuthenticated applies the engine clock to session.IsAuthenticated.
func (e *Engine) IsAuthenticated(s *session.Session) bool {
	return session.IsAuthenticated(s, e.now())
}

// CookieOptions returns the cookie attributes for kind: Strict for admins,
// Lax for members, MaxAge matching the session TTL.
func (e *Engine) CookieOptions(kind session.Kind) session.CookieOptions {
	opts := session.CookieOptions{
		MaxAge:   e.sessionTTL(kind),
		Secure:   e.config.Session.CookieSecure,
		Domain:   e.config.Session.CookieDomain,
		SameSite: http.SameSiteLaxMode,
	}
	if kind == session.KindAdmin {
		opts.SameSite = http.SameSiteStrictMode
	}
	return opts
}

// SessionCookie wraps raw in the cookie for kind.
func (e *Engine) SessionCookie(kind session.Kind, raw string) *http.Cookie {
	return session.NewCookie(kind, raw, e.CookieOptions(kind))
}

// ClearSessionCookie returns the cookie that logs kind out.
func (e *Engine) ClearSessionCookie(kind session.Kind) *http.Cookie {
	return session.ExpiredCookie(kind, e.CookieOptions(kind))
}

func (e *Engine) sessionTTL(kind session.Kind) time.Duration {
	if kind == session.KindAdmin {
		return e.config.Session.AdminTTL
	}
	return e.config.Session.MemberTTL
}

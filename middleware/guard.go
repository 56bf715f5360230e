package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

// WithSession stores s in ctx the way RequireSession does.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// RequireSession admits requests carrying a valid session cookie of kind.
// API paths are refused with a 401 JSON body, pages are redirected to
// loginPath.
func RequireSession(engine *portalauth.Engine, kind session.Kind, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var s *session.Session
			if engine != nil {
				s = engine.SessionFromRequest(r, kind)
			}
			if s == nil || !engine.IsAuthenticated(s) {
				if isAPIPath(r.URL.Path) {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequirePermission must run behind RequireSession.
func RequirePermission(c permission.Capability) func(http.Handler) http.Handler {
	return requireSessionCheck(func(s *session.Session) bool {
		return session.HasCapability(s, c)
	})
}

// RequireRole admits only sessions whose role is exactly role.
func RequireRole(role permission.Role) func(http.Handler) http.Handler {
	return requireSessionCheck(func(s *session.Session) bool {
		return session.HasRole(s, role)
	})
}

func requireSessionCheck(allowed func(*session.Session) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok || !allowed(s) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectIfAuthenticated sends visitors who already hold a valid session of
// kind to target, so the login page is skipped.
func RedirectIfAuthenticated(engine *portalauth.Engine, kind session.Kind, target string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine != nil {
				if s := engine.SessionFromRequest(r, kind); engine.IsAuthenticated(s) {
					http.Redirect(w, r, target, http.StatusFound)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}

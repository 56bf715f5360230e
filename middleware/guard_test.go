package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentities struct{}

func (stubIdentities) FindIdentity(context.Context, session.Kind, string) (portalauth.Identity, error) {
	return portalauth.Identity{}, portalauth.ErrIdentityNotFound
}

func (stubIdentities) UpdateCredential(context.Context, session.Kind, string, string) error {
	return portalauth.ErrIdentityNotFound
}

type stubNotifier struct{}

func (stubNotifier) SendOTP(context.Context, portalauth.OTPNotice) error { return nil }

func (stubNotifier) SendPasswordReset(context.Context, portalauth.ResetNotice) error { return nil }

func newEngine(t *testing.T) *portalauth.Engine {
	t.Helper()
	cfg := portalauth.DefaultConfig()
	cfg.Session.Secret = []byte(strings.Repeat("m", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithIdentityProvider(stubIdentities{}).
		WithNotifier(stubNotifier{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func issue(t *testing.T, engine *portalauth.Engine, ident portalauth.Identity) *http.Cookie {
	t.Helper()
	_, raw, err := engine.IssueSession(&ident, session.MethodOTP)
	require.NoError(t, err)
	return engine.SessionCookie(ident.Kind, raw)
}

var subAdmin = portalauth.Identity{
	ID:          "adm_7",
	Kind:        session.KindAdmin,
	Email:       "listings@premproperties.example",
	Role:        permission.RoleSubAdmin,
	Permissions: permission.NewSet(permission.Properties),
	Active:      true,
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(s.Subject))
})

func TestRequireSessionAPIReturnsJSON401(t *testing.T) {
	engine := newEngine(t)
	h := RequireSession(engine, session.KindAdmin, "/admin/login")(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/session", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestRequireSessionPageRedirects(t *testing.T) {
	engine := newEngine(t)
	h := RequireSession(engine, session.KindAdmin, "/admin/login")(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/properties", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get("Location"))
}

func TestRequireSessionAdmitsValidCookie(t *testing.T) {
	engine := newEngine(t)
	h := RequireSession(engine, session.KindAdmin, "/admin/login")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/admin/properties", nil)
	req.AddCookie(issue(t, engine, subAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, subAdmin.ID, rec.Body.String())
}

func TestRequireSessionRejectsOtherKind(t *testing.T) {
	engine := newEngine(t)
	h := RequireSession(engine, session.KindMember, "/login")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/member/session", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName(session.KindMember), Value: issue(t, engine, subAdmin).Value})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermissionAndRole(t *testing.T) {
	engine := newEngine(t)
	cookie := issue(t, engine, subAdmin)
	gate := RequireSession(engine, session.KindAdmin, "/admin/login")

	cases := []struct {
		name   string
		guard  func(http.Handler) http.Handler
		status int
	}{
		{"granted capability", RequirePermission(permission.Properties), http.StatusOK},
		{"missing capability", RequirePermission(permission.Settings), http.StatusForbidden},
		{"matching role", RequireRole(permission.RoleSubAdmin), http.StatusOK},
		{"other role", RequireRole(permission.RoleSuperAdmin), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/properties", nil)
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			gate(tc.guard(okHandler)).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequirePermissionWithoutSession(t *testing.T) {
	rec := httptest.NewRecorder()
	RequirePermission(permission.Properties)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/x", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRedirectIfAuthenticated(t *testing.T) {
	engine := newEngine(t)
	h := RedirectIfAuthenticated(engine, session.KindAdmin, "/admin")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/admin/login", nil)
	req.AddCookie(issue(t, engine, subAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/login", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

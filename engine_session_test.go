package portalauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

func TestIssueAndParseAdminSession(t *testing.T) {
	te := newTestEngine(t, testEngineOptions{})
	admin := testAdmin()

	s, raw, err := te.IssueSession(&admin, session.MethodOTP)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if s.ExpiresAt.Sub(s.IssuedAt) != 8*time.Hour {
		t.Fatalf("admin session should last 8h, got %v", s.ExpiresAt.Sub(s.IssuedAt))
	}

	got := te.ParseSession(raw, session.KindAdmin)
	if got == nil {
		t.Fatal("expected a decoded session")
	}
	if got.Subject != admin.ID || got.Role != permission.RoleSubAdmin || got.LoginMethod != session.MethodOTP {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.Permissions.Has(permission.Properties) || got.Permissions.Has(permission.Team) {
		t.Fatalf("unexpected permissions %v", got.Permissions.Names())
	}
	if te.ParseSession(raw, session.KindMember) != nil {
		t.Fatal("an admin session must not decode as a member session")
	}
	if te.ParseSession(raw+"x", session.KindAdmin) != nil {
		t.Fatal("a tampered session must not decode")
	}
	if !te.IsAuthenticated(got) {
		t.Fatal("fresh session should be authenticated")
	}

	te.clock.Advance(9 * time.Hour)
	if te.ParseSession(raw, session.KindAdmin) != nil {
		t.Fatal("an expired session must not decode")
	}
}

func TestIssueMemberSessionDropsAdminFields(t *testing.T) {
	te := newTestEngine(t, testEngineOptions{})
	member := testMember()
	member.Role = permission.RoleSuperAdmin
	member.Permissions = permission.NewSet(permission.All()...)

	s, raw, err := te.IssueSession(&member, session.MethodPassword)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if s.Role != permission.RoleMember || !s.Permissions.Empty() {
		t.Fatalf("member session must carry only the member role, got %+v", s)
	}
	if s.ExpiresAt.Sub(s.IssuedAt) != 24*time.Hour {
		t.Fatalf("member session should last 24h")
	}
	if te.ParseSession(raw, session.KindMember) == nil {
		t.Fatal("expected member session to decode")
	}
}

func TestIssueSessionRejectsUnusableIdentity(t *testing.T) {
	te := newTestEngine(t, testEngineOptions{})

	if _, _, err := te.IssueSession(nil, session.MethodOTP); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
	inactive := testAdmin()
	inactive.Active = false
	if _, _, err := te.IssueSession(&inactive, session.MethodOTP); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	te := newTestEngine(t, testEngineOptions{})
	ctx := context.Background()

	admin := testAdmin()
	sub, _, _ := te.IssueSession(&admin, session.MethodOTP)

	superAdmin := testAdmin()
	superAdmin.ID = "adm_root"
	superAdmin.Role = permission.RoleSuperAdmin
	superAdmin.Permissions = permission.Set{}
	root, _, _ := te.IssueSession(&superAdmin, session.MethodOTP)

	member := testMember()
	mem, _, _ := te.IssueSession(&member, session.MethodOTP)

	cases := []struct {
		name string
		s    *session.Session
		c    permission.Capability
		ok   bool
	}{
		{"sub admin granted", &sub, permission.Properties, true},
		{"sub admin missing capability", &sub, permission.Settings, false},
		{"super admin unrestricted", &root, permission.Settings, true},
		{"member never", &mem, permission.Properties, false},
		{"nil session", nil, permission.Properties, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := te.Authorize(ctx, tc.s, tc.c)
			if tc.ok && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}

	te.clock.Advance(9 * time.Hour)
	if err := te.Authorize(ctx, &root, permission.Settings); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired session should be refused, got %v", err)
	}
}

func TestSessionCookies(t *testing.T) {
	te := newTestEngine(t, testEngineOptions{})

	adminOpts := te.CookieOptions(session.KindAdmin)
	if adminOpts.SameSite != http.SameSiteStrictMode || adminOpts.MaxAge != 8*time.Hour || !adminOpts.Secure {
		t.Fatalf("unexpected admin cookie options %+v", adminOpts)
	}
	memberOpts := te.CookieOptions(session.KindMember)
	if memberOpts.SameSite != http.SameSiteLaxMode || memberOpts.MaxAge != 24*time.Hour {
		t.Fatalf("unexpected member cookie options %+v", memberOpts)
	}

	member := testMember()
	_, raw, err := te.IssueSession(&member, session.MethodOTP)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	cookie := te.SessionCookie(session.KindMember, raw)
	if !cookie.HttpOnly || cookie.Name != session.CookieName(session.KindMember) {
		t.Fatalf("unexpected cookie %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/member/dashboard", nil)
	req.AddCookie(cookie)
	s := te.SessionFromRequest(req, session.KindMember)
	if s == nil || s.Email != member.Email {
		t.Fatalf("expected session from request, got %+v", s)
	}
	if te.SessionFromRequest(req, session.KindAdmin) != nil {
		t.Fatal("member cookie must not authenticate the admin area")
	}

	cleared := te.ClearSessionCookie(session.KindMember)
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("unexpected logout cookie %+v", cleared)
	}
}

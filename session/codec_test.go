package session

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/premproperties/portalauth/permission"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	codec, err := NewCodec(CodecConfig{
		Secret: testSecret,
		Issuer: "portalauth-test",
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func adminSession(issued time.Time) Session {
	return Session{
		Kind:          KindAdmin,
		Authenticated: true,
		Subject:       "adm-1",
		Email:         "admin@example.com",
		Name:          "Admin",
		Role:          permission.RoleSubAdmin,
		Permissions:   permission.NewSet(permission.Gallery, permission.Team),
		LoginMethod:   MethodOTP,
		IssuedAt:      issued,
		ExpiresAt:     issued.Add(8 * time.Hour),
	}
}

func sameSession(t *testing.T, got *Session, want Session) {
	t.Helper()
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Kind != want.Kind || got.Authenticated != want.Authenticated ||
		got.Subject != want.Subject || got.Email != want.Email || got.Name != want.Name ||
		got.Role != want.Role || got.Permissions != want.Permissions || got.LoginMethod != want.LoginMethod {
		t.Fatalf("session mismatch:\n got %+v\nwant %+v", *got, want)
	}
	if !got.IssuedAt.Equal(want.IssuedAt) || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("time mismatch: got %v/%v want %v/%v", got.IssuedAt, got.ExpiresAt, want.IssuedAt, want.ExpiresAt)
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec(CodecConfig{Secret: []byte("short"), Issuer: "x"}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewCodec(CodecConfig{Secret: testSecret}); err == nil {
		t.Fatal("expected empty issuer to be rejected")
	}
	if _, err := NewCodec(CodecConfig{Secret: testSecret, Issuer: "x", Leeway: time.Hour}); err == nil {
		t.Fatal("expected large leeway to be rejected")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	clock := &fakeClock{now: issued.Add(time.Minute)}
	codec := newTestCodec(t, clock)

	member := Session{
		Kind:          KindMember,
		Authenticated: true,
		Subject:       "mem-7",
		Email:         "member@example.com",
		Name:          "Member",
		Role:          permission.RoleMember,
		LoginMethod:   MethodPassword,
		IssuedAt:      issued,
		ExpiresAt:     issued.Add(24 * time.Hour),
	}
	super := adminSession(issued)
	super.Role = permission.RoleSuperAdmin
	super.Permissions = permission.Set{}

	for _, s := range []Session{adminSession(issued), member, super} {
		token, err := codec.Encode(s)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		sameSession(t, codec.Decode(token), s)
		sameSession(t, codec.DecodeKind(token, s.Kind), s)
	}
}

func TestCodecToleratesURLEncoding(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	codec := newTestCodec(t, &fakeClock{now: issued})

	s := adminSession(issued)
	token, err := codec.Encode(s)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	escaped := strings.ReplaceAll(url.QueryEscape(token), ".", "%2E")
	sameSession(t, codec.Decode(escaped), s)
}

func TestCodecRejectsWrongKind(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	codec := newTestCodec(t, &fakeClock{now: issued})

	token, err := codec.Encode(adminSession(issued))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if codec.DecodeKind(token, KindMember) != nil {
		t.Fatal("admin token must not decode as member session")
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	clock := &fakeClock{now: issued}
	codec := newTestCodec(t, clock)

	token, err := codec.Encode(adminSession(issued))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	clock.now = issued.Add(8*time.Hour + time.Second)
	if codec.Decode(token) != nil {
		t.Fatal("expected expired session to decode to nil")
	}
}

func TestCodecRejectsTamperedAndForeignTokens(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	codec := newTestCodec(t, &fakeClock{now: issued})

	token, err := codec.Encode(adminSession(issued))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	forged := strings.Replace(string(payload), `"sub_admin"`, `"super_admin"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))
	if codec.Decode(strings.Join(parts, ".")) != nil {
		t.Fatal("tampered payload must not decode")
	}

	other, err := NewCodec(CodecConfig{Secret: []byte("another-secret-another-secret-xx"), Issuer: "portalauth-test", Now: func() time.Time { return issued }})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	foreign, err := other.Encode(adminSession(issued))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if codec.Decode(foreign) != nil {
		t.Fatal("token signed with a different key must not decode")
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"authenticated": true, "kind": "admin", "role": "super_admin",
		"sub": "x", "email": "x@example.com", "iss": "portalauth-test",
		"iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
	})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if codec.Decode(none) != nil {
		t.Fatal("alg=none token must not decode")
	}
}

func TestCodecRejectsLegacyBase64JSON(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{now: time.Now()})
	legacy := base64.StdEncoding.EncodeToString([]byte(`{"authenticated":true,"role":"super_admin","permissions":["all"]}`))
	if codec.Decode(legacy) != nil {
		t.Fatal("unsigned legacy cookie must not decode")
	}
}

func TestCodecSchemaValidation(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	codec := newTestCodec(t, &fakeClock{now: issued})

	sign := func(mc jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"authenticated": true, "kind": "admin", "role": "sub_admin",
			"sub": "adm-1", "email": "a@example.com", "iss": "portalauth-test",
			"iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
			"permissions": []string{"Gallery", "all", "Unknown"},
			"extra":       "ignored",
		}
	}

	s := codec.Decode(sign(base()))
	if s == nil {
		t.Fatal("expected valid claims to decode")
	}
	if !s.Permissions.Has(permission.Gallery) || len(s.Permissions.Capabilities()) != 1 {
		t.Fatalf("unexpected permissions: %v", s.Permissions.Names())
	}

	mutations := map[string]func(jwt.MapClaims){
		"not authenticated": func(m jwt.MapClaims) { m["authenticated"] = false },
		"missing kind":      func(m jwt.MapClaims) { delete(m, "kind") },
		"unknown role":      func(m jwt.MapClaims) { m["role"] = "root" },
		"member role admin": func(m jwt.MapClaims) { m["role"] = "member" },
		"missing subject":   func(m jwt.MapClaims) { delete(m, "sub") },
		"missing email":     func(m jwt.MapClaims) { delete(m, "email") },
		"missing exp":       func(m jwt.MapClaims) { delete(m, "exp") },
		"wrong issuer":      func(m jwt.MapClaims) { m["iss"] = "elsewhere" },
	}
	for name, mutate := range mutations {
		mc := base()
		mutate(mc)
		if codec.Decode(sign(mc)) != nil {
			t.Fatalf("%s: expected nil session", name)
		}
	}
}

func TestEncodeRejectsMalformedSessions(t *testing.T) {
	issued := time.Unix(1_760_000_000, 0).UTC()
	codec := newTestCodec(t, &fakeClock{now: issued})

	bad := []Session{
		{},
		func() Session { s := adminSession(issued); s.Authenticated = false; return s }(),
		func() Session { s := adminSession(issued); s.Role = permission.RoleMember; return s }(),
		func() Session { s := adminSession(issued); s.ExpiresAt = issued; return s }(),
		func() Session { s := adminSession(issued); s.Email = ""; return s }(),
	}
	for i, s := range bad {
		if _, err := codec.Encode(s); err == nil {
			t.Fatalf("case %d: expected Encode to fail", i)
		}
	}
}

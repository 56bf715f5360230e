package session

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/premproperties/portalauth/permission"
)

const minSecretBytes = 32

// CodecConfig configures signing and validation of session tokens.
type CodecConfig struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

// Codec signs and verifies session tokens.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

type claims struct {
	Authenticated bool     `json:"authenticated"`
	Kind          string   `json:"kind"`
	Email         string   `json:"email"`
	Name          string   `json:"name,omitempty"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions"`
	LoginMethod   string   `json:"login_method,omitempty"`
	jwt.RegisteredClaims
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("session issuer must not be empty")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid session leeway")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}

	return &Codec{
		secret: secret,
		issuer: cfg.Issuer,
		now:    cfg.Now,
		parser: jwt.NewParser(options...),
	}, nil
}

// Encode signs s. Only well-formed authenticated sessions are encodable.
func (c *Codec) Encode(s Session) (string, error) {
	if !s.Authenticated {
		return "", errors.New("session is not authenticated")
	}
	if s.Subject == "" || s.Email == "" {
		return "", errors.New("session subject and email are required")
	}
	if !roleMatchesKind(s.Kind, s.Role) {
		return "", errors.New("session role does not match session kind")
	}
	if s.IssuedAt.IsZero() || !s.ExpiresAt.After(s.IssuedAt) {
		return "", errors.New("session expiry must follow issuance")
	}

	perms := s.Permissions.Names()
	if s.Kind == KindMember {
		perms = []string{}
	}

	cl := claims{
		Authenticated: true,
		Kind:          string(s.Kind),
		Email:         s.Email,
		Name:          s.Name,
		Role:          string(s.Role),
		Permissions:   perms,
		LoginMethod:   s.LoginMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
}

// Decode returns the session carried by raw, or nil if raw is missing,
// malformed, tampered, expired, or does not match the session schema.
func (c *Codec) Decode(raw string) *Session {
	if c == nil {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.Contains(raw, "%") {
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return nil
		}
		raw = unescaped
	}

	var cl claims
	token, err := c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil
	}

	return fromClaims(&cl)
}

// DecodeKind is Decode restricted to one cookie family.
func (c *Codec) DecodeKind(raw string, kind Kind) *Session {
	s := c.Decode(raw)
	if s == nil || s.Kind != kind {
		return nil
	}
	return s
}

func fromClaims(cl *claims) *Session {
	if !cl.Authenticated {
		return nil
	}
	kind, ok := ParseKind(cl.Kind)
	if !ok {
		return nil
	}
	role, ok := permission.ParseRole(cl.Role)
	if !ok || !roleMatchesKind(kind, role) {
		return nil
	}
	if cl.Subject == "" || cl.Email == "" {
		return nil
	}
	if cl.IssuedAt == nil || cl.ExpiresAt == nil {
		return nil
	}

	var perms permission.Set
	if kind == KindAdmin {
		// Unknown names are dropped; they can only narrow access.
		perms, _ = permission.ParseSet(cl.Permissions)
	}

	return &Session{
		Kind:          kind,
		Authenticated: true,
		Subject:       cl.Subject,
		Email:         cl.Email,
		Name:          cl.Name,
		Role:          role,
		Permissions:   perms,
		LoginMethod:   cl.LoginMethod,
		IssuedAt:      cl.IssuedAt.Time.UTC(),
		ExpiresAt:     cl.ExpiresAt.Time.UTC(),
	}
}

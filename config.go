package portalauth

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/premproperties/portalauth/password"
)

// Config is the engine configuration. Build it from DefaultConfig and
// override fields; Builder.Build calls Validate.
type Config struct {
	OTP           OTPConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	Session       SessionConfig
	RateLimit     RateLimitConfig
	TokenStore    TokenStoreConfig
	Delivery      DeliveryConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset links.
type PasswordResetConfig struct {
	TTL time.Duration
	// LinkBase is the public site URL. Links take the form
	// LinkBase/reset-password?token=..&email=..&type=..
	LinkBase string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the new-password policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	Policy         password.Policy
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// Secret signs session cookies (HS256). At least 32 bytes.
	Secret       []byte
	Issuer       string
	AdminTTL     time.Duration
	MemberTTL    time.Duration
	CookieSecure bool
	CookieDomain string
	Leeway       time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sets sliding windows. A zero limit disables that window.
type RateLimitConfig struct {
	Enabled bool

	LoginLimit  int
	LoginWindow time.Duration

	VerifyLimit  int
	VerifyWindow time.Duration

	RequestLimit  int
	RequestWindow time.Duration

	// Account windows are keyed by email only and cap one account no
	// matter how many client addresses the attempts arrive from.
	AccountLoginLimit    int
	AccountLoginWindow   time.Duration
	AccountRequestLimit  int
	AccountRequestWindow time.Duration

	RedisPrefix string
}

/*
====================================
TOKEN STORE CONFIG
====================================
*/

type TokenStoreBackend string

const (
	TokenStoreMemory   TokenStoreBackend = "memory"
	TokenStoreRedis    TokenStoreBackend = "redis"
	TokenStorePostgres TokenStoreBackend = "postgres"
)

type TokenStoreConfig struct {
	Backend       TokenStoreBackend
	RedisPrefix   string
	OpTimeout     time.Duration
	SweepInterval time.Duration
}

/*
====================================
DELIVERY CONFIG
====================================
*/

type DeliveryConfig struct {
	Timeout time.Duration
	// Enumeration delay bounds for unknown-email requests.
	EnumerationDelayMin    time.Duration
	EnumerationDelaySpread time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 6-digit OTPs valid for ten
// minutes with five attempts, one-hour reset links, 8h admin and 24h member
// sessions.
func DefaultConfig() Config {
	argon := password.DefaultConfig()
	return Config{
		OTP: OTPConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		},
		PasswordReset: PasswordResetConfig{
			TTL:      time.Hour,
			LinkBase: "http://localhost:3000",
		},
		Password: PasswordConfig{
			Memory:         argon.Memory,
			Time:           argon.Time,
			Parallelism:    argon.Parallelism,
			SaltLength:     argon.SaltLength,
			KeyLength:      argon.KeyLength,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Session: SessionConfig{
			Issuer:       "portalauth",
			AdminTTL:     8 * time.Hour,
			MemberTTL:    24 * time.Hour,
			CookieSecure: true,
			Leeway:       30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			LoginLimit:    5,
			LoginWindow:   15 * time.Minute,
			VerifyLimit:   10,
			VerifyWindow:  15 * time.Minute,
			RequestLimit:  5,
			RequestWindow: 15 * time.Minute,

			AccountLoginLimit:    20,
			AccountLoginWindow:   time.Hour,
			AccountRequestLimit:  10,
			AccountRequestWindow: time.Hour,

			RedisPrefix: "parl",
		},
		TokenStore: TokenStoreConfig{
			Backend:       TokenStoreMemory,
			RedisPrefix:   "pat",
			OpTimeout:     3 * time.Second,
			SweepInterval: 5 * time.Minute,
		},
		Delivery: DeliveryConfig{
			Timeout:                10 * time.Second,
			EnumerationDelayMin:    20 * time.Millisecond,
			EnumerationDelaySpread: 20 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c *Config) Validate() error {
	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}

	// Password Reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	u, err := url.Parse(c.PasswordReset.LinkBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("PasswordReset LinkBase must be an absolute http(s) URL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if err := c.Password.Policy.Check(); err != nil {
		return errors.New("Password Policy: " + err.Error())
	}

	// Session
	if len(c.Session.Secret) < 32 {
		return errors.New("Session Secret must be at least 32 bytes")
	}
	if strings.TrimSpace(c.Session.Issuer) == "" {
		return errors.New("Session Issuer must be set")
	}
	if c.Session.AdminTTL <= 0 || c.Session.MemberTTL <= 0 {
		return errors.New("Session AdminTTL and MemberTTL must be > 0")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be within [0, 2m]")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.LoginLimit < 0 || c.RateLimit.VerifyLimit < 0 || c.RateLimit.RequestLimit < 0 ||
			c.RateLimit.AccountLoginLimit < 0 || c.RateLimit.AccountRequestLimit < 0 {
			return errors.New("RateLimit limits must be >= 0")
		}
		if (c.RateLimit.LoginLimit > 0 && c.RateLimit.LoginWindow <= 0) ||
			(c.RateLimit.VerifyLimit > 0 && c.RateLimit.VerifyWindow <= 0) ||
			(c.RateLimit.RequestLimit > 0 && c.RateLimit.RequestWindow <= 0) ||
			(c.RateLimit.AccountLoginLimit > 0 && c.RateLimit.AccountLoginWindow <= 0) ||
			(c.RateLimit.AccountRequestLimit > 0 && c.RateLimit.AccountRequestWindow <= 0) {
			return errors.New("RateLimit windows must be > 0 when a limit is set")
		}
	}

	// Token store
	switch c.TokenStore.Backend {
	case TokenStoreMemory, TokenStoreRedis, TokenStorePostgres:
	default:
		return errors.New("TokenStore Backend must be memory, redis or postgres")
	}
	if c.TokenStore.OpTimeout <= 0 {
		return errors.New("TokenStore OpTimeout must be > 0")
	}
	if c.TokenStore.SweepInterval <= 0 {
		return errors.New("TokenStore SweepInterval must be > 0")
	}

	// Delivery
	if c.Delivery.Timeout <= 0 {
		return errors.New("Delivery Timeout must be > 0")
	}
	if c.Delivery.EnumerationDelayMin < 0 || c.Delivery.EnumerationDelaySpread < 0 {
		return errors.New("Delivery enumeration delays must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Session.Secret != nil {
		out.Session.Secret = append([]byte(nil), cfg.Session.Secret...)
	}
	return out
}

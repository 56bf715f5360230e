// Package appconfig loads the portalauth process configuration from a YAML
// file, a .env file and the environment, in increasing precedence.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/identity"
	"github.com/premproperties/portalauth/notify"
)

type Config struct {
	HTTP struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For
		// header is believed.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"http"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		// auto | ssl | none
		TLS string `yaml:"tls"`
	} `yaml:"smtp"`

	// AdminFile is the JSON list of admin accounts.
	AdminFile string `yaml:"admin_file"`

	MasterAdmin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"master_admin"`

	Log struct {
		// dev | prod
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Auth struct {
		SessionSecret    string        `yaml:"session_secret"`
		SiteURL          string        `yaml:"site_url"`
		TokenStore       string        `yaml:"token_store"`
		CookieSecure     *bool         `yaml:"cookie_secure"`
		CookieDomain     string        `yaml:"cookie_domain"`
		OTPTTL           time.Duration `yaml:"otp_ttl"`
		ResetTTL         time.Duration `yaml:"reset_ttl"`
		AdminSessionTTL  time.Duration `yaml:"admin_session_ttl"`
		MemberSessionTTL time.Duration `yaml:"member_session_ttl"`
		RateLimit        *bool         `yaml:"rate_limit"`
		Audit            bool          `yaml:"audit"`
	} `yaml:"auth"`
}

// Load reads path (optional), then envFile (optional, missing is fine),
// then applies environment overrides and defaults.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Auth.TokenStore == "" {
		switch {
		case c.Redis.Addr != "":
			c.Auth.TokenStore = string(portalauth.TokenStoreRedis)
		case c.Postgres.DSN != "":
			c.Auth.TokenStore = string(portalauth.TokenStorePostgres)
		default:
			c.Auth.TokenStore = string(portalauth.TokenStoreMemory)
		}
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		return errors.New("session secret is required (SESSION_SECRET or auth.session_secret)")
	}
	switch portalauth.TokenStoreBackend(c.Auth.TokenStore) {
	case portalauth.TokenStoreMemory:
	case portalauth.TokenStoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("token_store redis needs redis.addr")
		}
	case portalauth.TokenStorePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("token_store postgres needs postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown token_store %q", c.Auth.TokenStore)
	}
	if (c.MasterAdmin.Email == "") != (c.MasterAdmin.Password == "") {
		return errors.New("master admin needs both email and password")
	}
	return nil
}

// Production reports whether the process runs with production settings.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Log.Env, "prod")
}

// EngineConfig overlays the file and environment settings on
// portalauth.DefaultConfig and validates the result.
func (c *Config) EngineConfig() (portalauth.Config, error) {
	cfg := portalauth.DefaultConfig()
	cfg.Session.Secret = []byte(c.Auth.SessionSecret)
	cfg.Session.CookieSecure = c.Production()
	if c.Auth.CookieSecure != nil {
		cfg.Session.CookieSecure = *c.Auth.CookieSecure
	}
	cfg.Session.CookieDomain = c.Auth.CookieDomain
	if c.Auth.AdminSessionTTL > 0 {
		cfg.Session.AdminTTL = c.Auth.AdminSessionTTL
	}
	if c.Auth.MemberSessionTTL > 0 {
		cfg.Session.MemberTTL = c.Auth.MemberSessionTTL
	}
	if c.Auth.OTPTTL > 0 {
		cfg.OTP.TTL = c.Auth.OTPTTL
	}
	if c.Auth.ResetTTL > 0 {
		cfg.PasswordReset.TTL = c.Auth.ResetTTL
	}
	if c.Auth.SiteURL != "" {
		cfg.PasswordReset.LinkBase = strings.TrimRight(c.Auth.SiteURL, "/")
	}
	if c.Auth.RateLimit != nil {
		cfg.RateLimit.Enabled = *c.Auth.RateLimit
	}
	cfg.TokenStore.Backend = portalauth.TokenStoreBackend(c.Auth.TokenStore)
	cfg.Audit.Enabled = c.Auth.Audit

	if err := cfg.Validate(); err != nil {
		return portalauth.Config{}, err
	}
	return cfg, nil
}

// SMTPConfig reports ok=false when no SMTP host is configured.
func (c *Config) SMTPConfig() (notify.SMTPConfig, bool) {
	if c.SMTP.Host == "" {
		return notify.SMTPConfig{}, false
	}
	return notify.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		TLS:      c.SMTP.TLS,
	}, true
}

func (c *Config) MasterAdminConfig() identity.MasterAdmin {
	return identity.MasterAdmin{
		Email:    c.MasterAdmin.Email,
		Password: c.MasterAdmin.Password,
	}
}

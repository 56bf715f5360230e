package appconfig

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "PORTALAUTH_"

// getEnvStr reads PORTALAUTH_<key> first, then each legacy name.
func getEnvStr(key string, legacy ...string) (string, bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v, true
	}
	for _, name := range legacy {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

func getEnvInt(key string, legacy ...string) (int, bool) {
	if s, ok := getEnvStr(key, legacy...); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string, legacy ...string) (bool, bool) {
	if s, ok := getEnvStr(key, legacy...); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides lets the environment win over the YAML file. The
// unprefixed names are the ones the existing site deployment already sets.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := getEnvDur("HTTP_SHUTDOWN_TIMEOUT"); ok {
		c.HTTP.ShutdownTimeout = v
	}
	if v, ok := getEnvStr("TRUSTED_PROXIES"); ok {
		c.HTTP.TrustedProxies = strings.Split(v, ",")
	}

	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN", "DATABASE_URL"); ok {
		c.Postgres.DSN = v
	}

	if v, ok := getEnvStr("SMTP_HOST", "SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT", "SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME", "SMTP_USER"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD", "SMTP_PASS"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM", "SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	} else if secure, ok := getEnvBool("SMTP_SECURE", "SMTP_SECURE"); ok && secure {
		c.SMTP.TLS = "ssl"
	}

	if v, ok := getEnvStr("ADMIN_FILE"); ok {
		c.AdminFile = v
	}
	if v, ok := getEnvStr("ADMIN_EMAIL", "ADMIN_EMAIL"); ok {
		c.MasterAdmin.Email = v
	}
	if v, ok := getEnvStr("ADMIN_PASSWORD", "ADMIN_PASSWORD"); ok {
		c.MasterAdmin.Password = v
	}

	if v, ok := getEnvStr("LOG_ENV"); ok {
		c.Log.Env = strings.ToLower(v)
	} else if v, ok := getEnvStr("NODE_ENV", "NODE_ENV"); ok && v == "production" {
		c.Log.Env = "prod"
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	if v, ok := getEnvStr("SESSION_SECRET", "SESSION_SECRET"); ok {
		c.Auth.SessionSecret = v
	}
	if v, ok := getEnvStr("SITE_URL", "SITE_URL", "NEXT_PUBLIC_SITE_URL"); ok {
		c.Auth.SiteURL = v
	}
	if v, ok := getEnvStr("TOKEN_STORE"); ok {
		c.Auth.TokenStore = strings.ToLower(v)
	}
	if v, ok := getEnvBool("COOKIE_SECURE"); ok {
		c.Auth.CookieSecure = &v
	}
	if v, ok := getEnvBool("RATE_LIMIT"); ok {
		c.Auth.RateLimit = &v
	}
	if v, ok := getEnvBool("AUDIT"); ok {
		c.Auth.Audit = v
	}
}

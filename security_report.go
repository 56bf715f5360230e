package portalauth

import "time"

// SecurityReport is a read-only snapshot of the engine's security posture,
// logged by the server at startup.
type SecurityReport struct {
	CookieSecure       bool
	SigningAlgorithm   string
	AdminSessionTTL    time.Duration
	MemberSessionTTL   time.Duration
	OTPDigits          int
	OTPTTL             time.Duration
	OTPMaxAttempts     int
	ResetTTL           time.Duration
	Argon2             PasswordConfigReport
	UpgradeOnLogin     bool
	RateLimitingActive bool
	TokenStore         TokenStoreBackend
	AuditEnabled       bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rl := e.config.RateLimit
	rateLimiting := rl.Enabled && (rl.LoginLimit > 0 || rl.VerifyLimit > 0 || rl.RequestLimit > 0 ||
		rl.AccountLoginLimit > 0 || rl.AccountRequestLimit > 0)

	return SecurityReport{
		CookieSecure:     e.config.Session.CookieSecure,
		SigningAlgorithm: "HS256",
		AdminSessionTTL:  e.config.Session.AdminTTL,
		MemberSessionTTL: e.config.Session.MemberTTL,
		OTPDigits:        e.config.OTP.Digits,
		OTPTTL:           e.config.OTP.TTL,
		OTPMaxAttempts:   e.config.OTP.MaxAttempts,
		ResetTTL:         e.config.PasswordReset.TTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		RateLimitingActive: rateLimiting,
		TokenStore:         e.config.TokenStore.Backend,
		AuditEnabled:       e.config.Audit.Enabled,
	}
}

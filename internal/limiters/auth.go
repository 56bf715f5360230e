package limiters

import (
	"context"
	"errors"
	"strings"

	"github.com/premproperties/portalauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrAuthRateLimited = errors.New("auth rate limited")
	ErrAuthUnavailable = errors.New("auth limiter unavailable")
)

// AuthConfig holds the windows the portal throttles. Login and Request are
// keyed by client address and email; the Account windows are keyed by email
// alone so that rotating addresses does not lift the cap on one account.
type AuthConfig struct {
	Login          rate.Window
	Verify         rate.Window
	Request        rate.Window
	LoginAccount   rate.Window
	RequestAccount rate.Window
}

// AuthLimiter throttles login, OTP verification and email-sending requests.
type AuthLimiter struct {
	login          rate.Limiter
	verify         rate.Limiter
	request        rate.Limiter
	loginAccount   rate.Limiter
	requestAccount rate.Limiter
}

// NewAuthLimiter uses Redis when a client is supplied and process memory
// otherwise. A window with a zero limit is not enforced.
func NewAuthLimiter(redisClient redis.UniversalClient, prefix string, cfg AuthConfig) *AuthLimiter {
	if prefix == "" {
		prefix = "parl"
	}
	build := func(scope string, w rate.Window) rate.Limiter {
		if w.Limit <= 0 {
			return nil
		}
		if redisClient == nil {
			return rate.NewMemoryLimiter(w)
		}
		return rate.NewRedisLimiter(redisClient, prefix+":"+scope, w)
	}
	return &AuthLimiter{
		login:          build("login", cfg.Login),
		verify:         build("verify", cfg.Verify),
		request:        build("request", cfg.Request),
		loginAccount:   build("login_acct", cfg.LoginAccount),
		requestAccount: build("request_acct", cfg.RequestAccount),
	}
}

// NewAuthLimiterFrom wires pre-built limiters; used by tests and custom
// deployments.
func NewAuthLimiterFrom(login, verify, request rate.Limiter) *AuthLimiter {
	return &AuthLimiter{login: login, verify: verify, request: request}
}

// WithAccountLimiters sets the email-keyed windows on a limiter built by
// NewAuthLimiterFrom.
func (l *AuthLimiter) WithAccountLimiters(login, request rate.Limiter) *AuthLimiter {
	l.loginAccount = login
	l.requestAccount = request
	return l
}

func (l *AuthLimiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := check(ctx, l.login, pairKey(ip, email)); err != nil {
		return err
	}
	return check(ctx, l.loginAccount, accountKey(email))
}

// ResetLogin clears both login windows after a successful login.
func (l *AuthLimiter) ResetLogin(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	var errs []error
	if l.login != nil {
		if err := l.login.Reset(ctx, pairKey(ip, email)); err != nil {
			errs = append(errs, err)
		}
	}
	if l.loginAccount != nil {
		if err := l.loginAccount.Reset(ctx, accountKey(email)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrAuthUnavailable}, errs...)...)
	}
	return nil
}

func (l *AuthLimiter) CheckVerify(ctx context.Context, ip string) error {
	if ip == "" {
		ip = "unknown"
	}
	return check(ctx, l.verify, ip)
}

func (l *AuthLimiter) CheckRequest(ctx context.Context, email, ip string) error {
	if err := check(ctx, l.request, pairKey(ip, email)); err != nil {
		return err
	}
	return check(ctx, l.requestAccount, accountKey(email))
}

func check(ctx context.Context, lim rate.Limiter, key string) error {
	if lim == nil {
		return nil
	}
	res, err := lim.Allow(ctx, key)
	if err != nil {
		return errors.Join(ErrAuthUnavailable, err)
	}
	if !res.Allowed {
		return ErrAuthRateLimited
	}
	return nil
}

func pairKey(ip, email string) string {
	if ip == "" {
		ip = "unknown"
	}
	return ip + "|" + accountKey(email)
}

func accountKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

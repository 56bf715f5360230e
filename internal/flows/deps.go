package flows

import (
	"context"
	"errors"
	"time"

	"github.com/premproperties/portalauth/internal/stores"
	"go.uber.org/zap"
)

// Identity is the flow-local view of an admin or member account.
type Identity struct {
	ID         string
	Email      string
	Name       string
	Credential string
	Active     bool
	Immutable  bool
}

// AuditFunc matches Engine.emitAudit.
type AuditFunc func(ctx context.Context, event string, success bool, subject string, err error, metadata func() map[string]string)

// RateLimitFunc matches Engine.emitRateLimit.
type RateLimitFunc func(ctx context.Context, scope string, metadata func() map[string]string)

// Common groups the dependencies every flow shares.
type Common struct {
	Logger              *zap.Logger
	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	// MapLimiterError returns nil when the limiter should fail open.
	MapLimiterError func(error) error
	MapStoreError   func(error) error

	LookupIdentity     func(ctx context.Context, email string) (Identity, error)
	IsIdentityNotFound func(error) bool

	SleepEnumerationDelay func(context.Context) error

	MetricInc     func(int)
	EmitAudit     AuditFunc
	EmitRateLimit RateLimitFunc
}

// TokenDeps binds a flow to the token store.
type TokenDeps struct {
	Put    func(context.Context, stores.TokenRecord) error
	Delete func(ctx context.Context, email, purpose, id string) error
	Update func(ctx context.Context, email, purpose string, fn stores.UpdateFunc) error

	NewID  func() string
	Digest func(string) string
	Equal  func(a, b string) bool
}

func normalizeCommon(c *Common) {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.ClientIPFromContext == nil {
		c.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if c.MapLimiterError == nil {
		c.MapLimiterError = func(err error) error { return err }
	}
	if c.MapStoreError == nil {
		c.MapStoreError = func(err error) error { return err }
	}
	if c.IsIdentityNotFound == nil {
		c.IsIdentityNotFound = func(error) bool { return false }
	}
	if c.SleepEnumerationDelay == nil {
		c.SleepEnumerationDelay = func(context.Context) error { return nil }
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if c.EmitRateLimit == nil {
		c.EmitRateLimit = func(context.Context, string, func() map[string]string) {}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// checkLimiter runs a limiter check and reports the error the caller should
// return, if any.
func checkLimiter(ctx context.Context, c Common, scope, event string, check func() error, meta func() map[string]string) error {
	err := check()
	if err == nil {
		return nil
	}
	mapped := c.MapLimiterError(err)
	if mapped == nil {
		c.Logger.Error("rate limiter unavailable, admitting request",
			zap.String("scope", scope), zap.Error(err))
		return nil
	}
	c.EmitAudit(ctx, event, false, "", mapped, meta)
	c.EmitRateLimit(ctx, scope, meta)
	return mapped
}

// enumerationSafe is the response for unknown or inactive addresses on
// request paths: a short random delay, an audit record and no error.
func enumerationSafe(ctx context.Context, c Common, event, email, purpose string, metric int) error {
	if err := c.SleepEnumerationDelay(ctx); err != nil {
		return err
	}
	c.EmitAudit(ctx, event, true, "", nil, func() map[string]string {
		return map[string]string{
			"email":            email,
			"purpose":          purpose,
			"enumeration_safe": "true",
		}
	})
	c.Logger.Info("request for unknown or inactive identity",
		zap.String("email", email), zap.String("purpose", purpose))
	c.MetricInc(metric)
	return nil
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/premproperties/portalauth/internal/stores"
	"go.uber.org/zap"
)

type OTPMetrics struct {
	OTPRequest       int
	OTPVerifySuccess int
	OTPVerifyFailure int
	OTPExhausted     int
	DeliveryFailure  int
}

type OTPEvents struct {
	OTPRequest string
	OTPVerify  string
}

type OTPErrors struct {
	EngineNotReady   error
	NotFound         error
	Expired          error
	Exhausted        error
	Delivery         error
	Unauthorized     error
	IdentityNotFound error
	// Mismatch builds the error for a wrong code with attempts left.
	Mismatch func(remaining int) error
}

// OTPNotice is what the notifier receives for a freshly issued code.
type OTPNotice struct {
	Identity  Identity
	Purpose   string
	Code      string
	ExpiresAt time.Time
}

type OTPDeps struct {
	Common
	Token TokenDeps

	Digits      int
	TTL         time.Duration
	MaxAttempts int

	CheckRequestLimiter func(ctx context.Context, email, ip string) error
	CheckVerifyLimiter  func(ctx context.Context, ip string) error

	GenerateCode func(digits int) (string, error)
	Deliver      func(context.Context, OTPNotice) error

	Metrics OTPMetrics
	Events  OTPEvents
	Errors  OTPErrors
}

// RunRequestOTP issues a fresh code for (email, purpose) and hands it to the
// notifier. Unknown and inactive addresses get the same nil result as known
// ones.
func RunRequestOTP(ctx context.Context, email, purpose string, deps OTPDeps) error {
	normalizeCommon(&deps.Common)
	if deps.Token.Put == nil || deps.Token.Delete == nil || deps.LookupIdentity == nil || deps.GenerateCode == nil || deps.Deliver == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	meta := func() map[string]string {
		return map[string]string{"email": email, "purpose": purpose}
	}
	if deps.CheckRequestLimiter != nil {
		if err := checkLimiter(ctx, deps.Common, "otp_request", deps.Events.OTPRequest, func() error {
			return deps.CheckRequestLimiter(ctx, email, ip)
		}, meta); err != nil {
			return err
		}
	}

	ident, err := deps.LookupIdentity(ctx, email)
	if err != nil {
		if isContextError(err) {
			return err
		}
		if !deps.IsIdentityNotFound(err) {
			mapped := deps.MapStoreError(err)
			deps.Logger.Error("identity lookup failed", zap.String("purpose", purpose), zap.Error(err))
			deps.EmitAudit(ctx, deps.Events.OTPRequest, false, "", mapped, meta)
			return mapped
		}
		return enumerationSafe(ctx, deps.Common, deps.Events.OTPRequest, email, purpose, deps.Metrics.OTPRequest)
	}
	if !ident.Active {
		return enumerationSafe(ctx, deps.Common, deps.Events.OTPRequest, email, purpose, deps.Metrics.OTPRequest)
	}

	code, err := deps.GenerateCode(deps.Digits)
	if err != nil {
		deps.Logger.Error("otp generation failed", zap.Error(err))
		return deps.Errors.EngineNotReady
	}

	now := deps.Now()
	rec := stores.TokenRecord{
		ID:        deps.Token.NewID(),
		Email:     email,
		Purpose:   purpose,
		Value:     deps.Token.Digest(code),
		CreatedAt: now,
		ExpiresAt: now.Add(deps.TTL),
	}
	if err := deps.Token.Put(ctx, rec); err != nil {
		mapped := deps.MapStoreError(err)
		deps.Logger.Error("otp store failed", zap.String("purpose", purpose), zap.Error(err))
		deps.EmitAudit(ctx, deps.Events.OTPRequest, false, ident.ID, mapped, meta)
		return mapped
	}

	if err := deps.Deliver(ctx, OTPNotice{Identity: ident, Purpose: purpose, Code: code, ExpiresAt: rec.ExpiresAt}); err != nil {
		if delErr := deps.Token.Delete(ctx, email, purpose, rec.ID); delErr != nil {
			deps.Logger.Error("otp cleanup after delivery failure failed", zap.Error(delErr))
		}
		deps.Logger.Error("otp delivery failed", zap.String("purpose", purpose), zap.Error(err))
		deps.MetricInc(deps.Metrics.DeliveryFailure)
		deps.EmitAudit(ctx, deps.Events.OTPRequest, false, ident.ID, deps.Errors.Delivery, meta)
		return deps.Errors.Delivery
	}

	deps.EmitAudit(ctx, deps.Events.OTPRequest, true, ident.ID, nil, meta)
	deps.MetricInc(deps.Metrics.OTPRequest)
	return nil
}

// RunVerifyOTP checks code against the pending record and consumes it on
// success. The whole decision runs inside one store update, so a code can be
// redeemed at most once.
func RunVerifyOTP(ctx context.Context, email, purpose, code string, deps OTPDeps) (Identity, error) {
	normalizeCommon(&deps.Common)
	if deps.Token.Update == nil || deps.LookupIdentity == nil || deps.Errors.Mismatch == nil {
		return Identity{}, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	meta := func() map[string]string {
		return map[string]string{"email": email, "purpose": purpose}
	}
	if deps.CheckVerifyLimiter != nil {
		if err := checkLimiter(ctx, deps.Common, "otp_verify", deps.Events.OTPVerify, func() error {
			return deps.CheckVerifyLimiter(ctx, ip)
		}, meta); err != nil {
			return Identity{}, err
		}
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	presented := deps.Token.Digest(code)

	var outcome error
	err := deps.Token.Update(ctx, email, purpose, func(rec *stores.TokenRecord) (stores.Action, error) {
		outcome = nil
		switch {
		case rec.Expired(deps.Now()):
			outcome = deps.Errors.Expired
			return stores.Delete, outcome
		case rec.Attempts >= maxAttempts:
			outcome = deps.Errors.Exhausted
			return stores.Delete, outcome
		case deps.Token.Equal(rec.Value, presented):
			return stores.Delete, nil
		}

		rec.Attempts++
		if rec.Attempts >= maxAttempts {
			outcome = deps.Errors.Exhausted
			return stores.Delete, outcome
		}
		outcome = deps.Errors.Mismatch(maxAttempts - rec.Attempts)
		return stores.Save, outcome
	})
	if err != nil {
		switch {
		case outcome != nil && errors.Is(err, outcome):
			err = outcome
		case errors.Is(err, stores.ErrTokenNotFound):
			err = deps.Errors.NotFound
		case isContextError(err):
		default:
			deps.Logger.Error("otp verify store failed", zap.String("purpose", purpose), zap.Error(err))
			err = deps.MapStoreError(err)
		}
		if errors.Is(err, deps.Errors.Exhausted) {
			deps.MetricInc(deps.Metrics.OTPExhausted)
		}
		deps.MetricInc(deps.Metrics.OTPVerifyFailure)
		deps.EmitAudit(ctx, deps.Events.OTPVerify, false, "", err, meta)
		return Identity{}, err
	}

	ident, err := deps.LookupIdentity(ctx, email)
	if err != nil {
		if deps.IsIdentityNotFound(err) {
			err = deps.Errors.IdentityNotFound
		} else if !isContextError(err) {
			deps.Logger.Error("identity reload failed", zap.Error(err))
			err = deps.MapStoreError(err)
		}
		deps.EmitAudit(ctx, deps.Events.OTPVerify, false, "", err, meta)
		return Identity{}, err
	}
	if !ident.Active {
		deps.EmitAudit(ctx, deps.Events.OTPVerify, false, ident.ID, deps.Errors.Unauthorized, meta)
		return Identity{}, deps.Errors.Unauthorized
	}

	deps.MetricInc(deps.Metrics.OTPVerifySuccess)
	deps.EmitAudit(ctx, deps.Events.OTPVerify, true, ident.ID, nil, meta)
	return ident, nil
}

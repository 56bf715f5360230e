package portalauth

import (
	"context"

	"github.com/premproperties/portalauth/internal"
	internalflows "github.com/premproperties/portalauth/internal/flows"
)

// RequestOTP issues a one-time code for email and mails it. purpose must be
// PurposeAdminOTP or PurposeMemberOTP.
//
// Unknown and inactive addresses return nil after a short random delay so
// callers cannot probe which emails have accounts. A delivery failure for a
// known address returns ErrDelivery and removes the pending code.
func (e *Engine) RequestOTP(ctx context.Context, email string, purpose Purpose) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email, purpose, err := normalizeRequest(email, purpose, Purpose.IsOTP)
	if err != nil {
		return err
	}
	return internalflows.RunRequestOTP(ctx, email, string(purpose), e.otpFlowDeps(purpose, nil))
}

// VerifyOTP redeems code for (email, purpose) and returns the identity to
// issue a session for.
//
// Errors: ErrNotFound with no pending code, ErrExpired past the TTL,
// ErrExhausted once the attempt budget is spent, *MismatchError for a wrong
// code with attempts left. A code succeeds at most once, even under
// concurrent calls.
func (e *Engine) VerifyOTP(ctx context.Context, email string, purpose Purpose, code string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	email, purpose, err := normalizeRequest(email, purpose, Purpose.IsOTP)
	if err != nil {
		return nil, err
	}

	var found Identity
	if _, err := internalflows.RunVerifyOTP(ctx, email, string(purpose), code, e.otpFlowDeps(purpose, &found)); err != nil {
		return nil, err
	}
	return &found, nil
}

func (e *Engine) otpFlowDeps(purpose Purpose, found *Identity) internalflows.OTPDeps {
	kind := purpose.Kind()
	deps := internalflows.OTPDeps{
		Common:       e.commonFlowDeps(kind, found),
		Token:        e.tokenFlowDeps(),
		Digits:       e.config.OTP.Digits,
		TTL:          e.config.OTP.TTL,
		MaxAttempts:  e.config.OTP.MaxAttempts,
		GenerateCode: internal.NewOTP,
		Deliver: func(ctx context.Context, n internalflows.OTPNotice) error {
			return e.deliver(ctx, func(ctx context.Context) error {
				return e.notifier.SendOTP(ctx, OTPNotice{
					Kind:      kind,
					Email:     n.Identity.Email,
					Name:      n.Identity.Name,
					Code:      n.Code,
					ExpiresAt: n.ExpiresAt,
				})
			})
		},
		Metrics: internalflows.OTPMetrics{
			OTPRequest:       int(MetricOTPRequest),
			OTPVerifySuccess: int(MetricOTPVerifySuccess),
			OTPVerifyFailure: int(MetricOTPVerifyFailure),
			OTPExhausted:     int(MetricOTPExhausted),
			DeliveryFailure:  int(MetricDeliveryFailure),
		},
		Events: internalflows.OTPEvents{
			OTPRequest: auditEventOTPRequest,
			OTPVerify:  auditEventOTPVerify,
		},
		Errors: internalflows.OTPErrors{
			EngineNotReady:   ErrEngineNotReady,
			NotFound:         ErrNotFound,
			Expired:          ErrExpired,
			Exhausted:        ErrExhausted,
			Delivery:         ErrDelivery,
			Unauthorized:     ErrUnauthorized,
			IdentityNotFound: ErrIdentityNotFound,
			Mismatch: func(remaining int) error {
				return &MismatchError{Remaining: remaining}
			},
		},
	}

	if e.limiter != nil {
		deps.CheckRequestLimiter = e.limiter.CheckRequest
		deps.CheckVerifyLimiter = e.limiter.CheckVerify
	}
	return deps
}

package portalauth

import (
	"context"

	"github.com/premproperties/portalauth/internal"
	internalflows "github.com/premproperties/portalauth/internal/flows"
)

// RequestPasswordReset mails a single-use reset link for email. It shares
// the rate limit and the non-enumerating response of RequestOTP.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string, purpose Purpose) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email, purpose, err := normalizeRequest(email, purpose, Purpose.IsReset)
	if err != nil {
		return err
	}
	return internalflows.RunRequestPasswordReset(ctx, email, string(purpose), e.passwordResetFlowDeps(purpose))
}

// VerifyResetToken checks token without consuming it. The returned ResetRef
// must be passed to FinalizePasswordReset.
func (e *Engine) VerifyResetToken(ctx context.Context, email string, purpose Purpose, token string) (ResetRef, error) {
	if !e.ready() {
		return ResetRef{}, ErrEngineNotReady
	}
	email, purpose, err := normalizeRequest(email, purpose, Purpose.IsReset)
	if err != nil {
		return ResetRef{}, err
	}
	id, err := internalflows.RunVerifyResetToken(ctx, email, string(purpose), token, e.passwordResetFlowDeps(purpose))
	if err != nil {
		return ResetRef{}, err
	}
	return ResetRef{ID: id}, nil
}

// FinalizePasswordReset sets a new credential and consumes the token.
//
// A policy failure returns *WeakSecretError and leaves both the token and the
// credential untouched. The token is claimed before the credential is
// written; if that write fails the token is restored so the user can retry
// with the same link.
func (e *Engine) FinalizePasswordReset(ctx context.Context, email string, purpose Purpose, ref ResetRef, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email, purpose, err := normalizeRequest(email, purpose, Purpose.IsReset)
	if err != nil {
		return err
	}
	return internalflows.RunFinalizePasswordReset(ctx, email, string(purpose), ref.ID, newPassword, e.passwordResetFlowDeps(purpose))
}

// ResetPassword verifies token and finalizes in one call, as the reset form
// submits both together.
func (e *Engine) ResetPassword(ctx context.Context, email string, purpose Purpose, token, newPassword string) error {
	ref, err := e.VerifyResetToken(ctx, email, purpose, token)
	if err != nil {
		return err
	}
	return e.FinalizePasswordReset(ctx, email, purpose, ref, newPassword)
}

// CheckPasswordPolicy returns *WeakSecretError when candidate fails the
// configured policy.
func (e *Engine) CheckPasswordPolicy(candidate string) error {
	if reasons := e.config.Password.Policy.Validate(candidate); len(reasons) > 0 {
		return &WeakSecretError{Reasons: reasons}
	}
	return nil
}

func (e *Engine) passwordResetFlowDeps(purpose Purpose) internalflows.PasswordResetDeps {
	kind := purpose.Kind()
	deps := internalflows.PasswordResetDeps{
		Common:        e.commonFlowDeps(kind, nil),
		Token:         e.tokenFlowDeps(),
		TTL:           e.config.PasswordReset.TTL,
		LinkBase:      e.config.PasswordReset.LinkBase,
		LinkType:      string(kind),
		GenerateToken: internal.NewResetToken,
		Deliver: func(ctx context.Context, n internalflows.ResetNotice) error {
			return e.deliver(ctx, func(ctx context.Context) error {
				return e.notifier.SendPasswordReset(ctx, ResetNotice{
					Kind:      kind,
					Email:     n.Identity.Email,
					Name:      n.Identity.Name,
					Link:      n.Link,
					ExpiresAt: n.ExpiresAt,
				})
			})
		},
		CheckPolicy:  e.CheckPasswordPolicy,
		HashPassword: e.verifier.Hash,
		UpdateCredential: func(ctx context.Context, email, hash string) error {
			return e.withStoreTimeout(ctx, func(ctx context.Context) error {
				return e.identities.UpdateCredential(ctx, kind, email, hash)
			})
		},
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			DeliveryFailure:             int(MetricDeliveryFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetVerify:  auditEventPasswordResetVerify,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:    ErrEngineNotReady,
			InvalidToken:      ErrInvalidToken,
			Expired:           ErrExpired,
			Delivery:          ErrDelivery,
			IdentityNotFound:  ErrIdentityNotFound,
			ImmutableIdentity: ErrImmutableIdentity,
		},
	}

	if e.limiter != nil {
		deps.CheckRequestLimiter = e.limiter.CheckRequest
	}
	return deps
}

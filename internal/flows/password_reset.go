package flows

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/premproperties/portalauth/internal/stores"
	"go.uber.org/zap"
)

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	DeliveryFailure             int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetVerify  string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady    error
	InvalidToken      error
	Expired           error
	Delivery          error
	IdentityNotFound  error
	ImmutableIdentity error
}

// ResetNotice is what the notifier receives for a freshly issued link.
type ResetNotice struct {
	Identity  Identity
	Purpose   string
	Link      string
	ExpiresAt time.Time
}

type PasswordResetDeps struct {
	Common
	Token TokenDeps

	TTL      time.Duration
	LinkBase string
	LinkType string

	CheckRequestLimiter func(ctx context.Context, email, ip string) error

	GenerateToken func() (string, error)
	Deliver       func(context.Context, ResetNotice) error

	CheckPolicy      func(string) error
	HashPassword     func(string) (string, error)
	UpdateCredential func(ctx context.Context, email, hash string) error

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// ResetLink builds the link mailed to the user.
func ResetLink(base, token, email, linkType string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	q.Set("type", linkType)
	return strings.TrimRight(base, "/") + "/reset-password?" + q.Encode()
}

func RunRequestPasswordReset(ctx context.Context, email, purpose string, deps PasswordResetDeps) error {
	normalizeCommon(&deps.Common)
	if deps.Token.Put == nil || deps.Token.Delete == nil || deps.LookupIdentity == nil || deps.GenerateToken == nil || deps.Deliver == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	meta := func() map[string]string {
		return map[string]string{"email": email, "purpose": purpose}
	}
	if deps.CheckRequestLimiter != nil {
		if err := checkLimiter(ctx, deps.Common, "password_reset_request", deps.Events.PasswordResetRequest, func() error {
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
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", mapped, meta)
			return mapped
		}
		return enumerationSafe(ctx, deps.Common, deps.Events.PasswordResetRequest, email, purpose, deps.Metrics.PasswordResetRequest)
	}
	if !ident.Active {
		return enumerationSafe(ctx, deps.Common, deps.Events.PasswordResetRequest, email, purpose, deps.Metrics.PasswordResetRequest)
	}

	token, err := deps.GenerateToken()
	if err != nil {
		deps.Logger.Error("reset token generation failed", zap.Error(err))
		return deps.Errors.EngineNotReady
	}

	now := deps.Now()
	rec := stores.TokenRecord{
		ID:        deps.Token.NewID(),
		Email:     email,
		Purpose:   purpose,
		Value:     deps.Token.Digest(token),
		CreatedAt: now,
		ExpiresAt: now.Add(deps.TTL),
	}
	if err := deps.Token.Put(ctx, rec); err != nil {
		mapped := deps.MapStoreError(err)
		deps.Logger.Error("reset token store failed", zap.String("purpose", purpose), zap.Error(err))
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, ident.ID, mapped, meta)
		return mapped
	}

	notice := ResetNotice{
		Identity:  ident,
		Purpose:   purpose,
		Link:      ResetLink(deps.LinkBase, token, email, deps.LinkType),
		ExpiresAt: rec.ExpiresAt,
	}
	if err := deps.Deliver(ctx, notice); err != nil {
		if delErr := deps.Token.Delete(ctx, email, purpose, rec.ID); delErr != nil {
			deps.Logger.Error("reset cleanup after delivery failure failed", zap.Error(delErr))
		}
		deps.Logger.Error("reset delivery failed", zap.String("purpose", purpose), zap.Error(err))
		deps.MetricInc(deps.Metrics.DeliveryFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, ident.ID, deps.Errors.Delivery, meta)
		return deps.Errors.Delivery
	}

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, ident.ID, nil, meta)
	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	return nil
}

// RunVerifyResetToken checks a presented token and returns the id of the
// matching record. It never consumes the token.
func RunVerifyResetToken(ctx context.Context, email, purpose, token string, deps PasswordResetDeps) (string, error) {
	normalizeCommon(&deps.Common)
	if deps.Token.Update == nil {
		return "", deps.Errors.EngineNotReady
	}
	meta := func() map[string]string {
		return map[string]string{"email": email, "purpose": purpose}
	}
	if token == "" {
		deps.EmitAudit(ctx, deps.Events.PasswordResetVerify, false, "", deps.Errors.InvalidToken, meta)
		return "", deps.Errors.InvalidToken
	}

	presented := deps.Token.Digest(token)
	var id string
	var outcome error
	err := deps.Token.Update(ctx, email, purpose, func(rec *stores.TokenRecord) (stores.Action, error) {
		id, outcome = "", nil
		if !deps.Token.Equal(rec.Value, presented) {
			outcome = deps.Errors.InvalidToken
			return stores.Keep, outcome
		}
		if rec.Expired(deps.Now()) {
			outcome = deps.Errors.Expired
			return stores.Delete, outcome
		}
		id = rec.ID
		return stores.Keep, nil
	})
	if err != nil {
		err = resetStoreOutcome(err, outcome, purpose, deps)
		deps.EmitAudit(ctx, deps.Events.PasswordResetVerify, false, "", err, meta)
		return "", err
	}

	deps.EmitAudit(ctx, deps.Events.PasswordResetVerify, true, "", nil, meta)
	return id, nil
}

// RunFinalizePasswordReset validates and hashes newPassword, claims the token
// record matching ref, then writes the credential. The claim is a pure
// compare-and-delete so a backend may retry it freely; the credential write
// runs once, after the claim has committed. When that write fails the
// claimed record is put back so the same link can be retried.
func RunFinalizePasswordReset(ctx context.Context, email, purpose, ref, newPassword string, deps PasswordResetDeps) error {
	normalizeCommon(&deps.Common)
	if deps.Token.Update == nil || deps.Token.Put == nil || deps.CheckPolicy == nil || deps.HashPassword == nil || deps.UpdateCredential == nil {
		return deps.Errors.EngineNotReady
	}
	meta := func() map[string]string {
		return map[string]string{"email": email, "purpose": purpose}
	}
	fail := func(err error) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, "", err, meta)
		return err
	}

	if err := deps.CheckPolicy(newPassword); err != nil {
		return fail(err)
	}
	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.Logger.Error("password hashing failed", zap.Error(err))
		return fail(deps.Errors.EngineNotReady)
	}
	if ref == "" {
		return fail(deps.Errors.InvalidToken)
	}

	var claimed stores.TokenRecord
	var outcome error
	err = deps.Token.Update(ctx, email, purpose, func(rec *stores.TokenRecord) (stores.Action, error) {
		claimed, outcome = stores.TokenRecord{}, nil
		if rec.ID != ref {
			outcome = deps.Errors.InvalidToken
			return stores.Keep, outcome
		}
		if rec.Expired(deps.Now()) {
			outcome = deps.Errors.Expired
			return stores.Delete, outcome
		}
		claimed = *rec
		return stores.Delete, nil
	})
	if err != nil {
		return fail(resetStoreOutcome(err, outcome, purpose, deps))
	}

	if err := deps.UpdateCredential(ctx, email, hash); err != nil {
		restoreCtx := context.WithoutCancel(ctx)
		if putErr := deps.Token.Put(restoreCtx, claimed); putErr != nil {
			deps.Logger.Error("reset token restore failed",
				zap.String("purpose", purpose), zap.Error(putErr))
		}
		return fail(mapCredentialError(err, purpose, deps))
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, "", nil, meta)
	return nil
}

func resetStoreOutcome(err, outcome error, purpose string, deps PasswordResetDeps) error {
	switch {
	case outcome != nil && errors.Is(err, outcome):
		return outcome
	case errors.Is(err, stores.ErrTokenNotFound):
		return deps.Errors.InvalidToken
	case isContextError(err):
		return err
	default:
		deps.Logger.Error("reset token store failed", zap.String("purpose", purpose), zap.Error(err))
		return deps.MapStoreError(err)
	}
}

func mapCredentialError(err error, purpose string, deps PasswordResetDeps) error {
	switch {
	case deps.IsIdentityNotFound(err):
		return deps.Errors.IdentityNotFound
	case errors.Is(err, deps.Errors.ImmutableIdentity), isContextError(err):
		return err
	default:
		deps.Logger.Error("credential update failed", zap.String("purpose", purpose), zap.Error(err))
		return deps.MapStoreError(err)
	}
}

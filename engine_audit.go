package portalauth

import (
	"context"
	"errors"

	internalaudit "github.com/premproperties/portalauth/internal/audit"
	"github.com/premproperties/portalauth/session"
	"go.uber.org/zap"
)

const (
	auditEventOTPRequest           = "otp_request"
	auditEventOTPVerify            = "otp_verify"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetVerify  = "password_reset_verify"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventSessionIssued        = "session_issued"
	auditEventAuthorizationDenied  = "authorization_denied"
	auditEventCredentialMigrated   = "credential_migrated"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrMismatch         AuditErrorCode = "mismatch"
	auditErrNotFound         AuditErrorCode = "not_found"
	auditErrExpired          AuditErrorCode = "expired"
	auditErrExhausted        AuditErrorCode = "attempts_exhausted"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrWeakSecret       AuditErrorCode = "password_policy"
	auditErrIdentityNotFound AuditErrorCode = "identity_not_found"
	auditErrImmutable        AuditErrorCode = "immutable_identity"
	auditErrDelivery         AuditErrorCode = "delivery_failed"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrCanceled         AuditErrorCode = "canceled"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	kind session.Kind,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		Kind:      string(kind),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	kind session.Kind,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", kind, nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrMismatch):
		return auditErrMismatch
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrExhausted):
		return auditErrExhausted
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrWeakSecret):
		return auditErrWeakSecret
	case errors.Is(err, ErrIdentityNotFound):
		return auditErrIdentityNotFound
	case errors.Is(err, ErrImmutableIdentity):
		return auditErrImmutable
	case errors.Is(err, ErrDelivery):
		return auditErrDelivery
	case errors.Is(err, ErrStorage), errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}

// NewZapSink returns an AuditSink that writes events to logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

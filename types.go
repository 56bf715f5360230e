package portalauth

import (
	"context"
	"io"
	"strings"
	"time"

	internalaudit "github.com/premproperties/portalauth/internal/audit"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

// Purpose names what a pending code or reset token is for. Records are
// keyed by (email, purpose).
type Purpose string

const (
	PurposeAdminOTP    Purpose = "admin_otp"
	PurposeMemberOTP   Purpose = "member_otp"
	PurposeAdminReset  Purpose = "admin_reset"
	PurposeMemberReset Purpose = "member_reset"
)

// ParsePurpose accepts the four purpose strings, case-insensitively.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidPurpose
	}
	return p, nil
}

func (p Purpose) Valid() bool {
	switch p {
	case PurposeAdminOTP, PurposeMemberOTP, PurposeAdminReset, PurposeMemberReset:
		return true
	}
	return false
}

// Kind is the identity family the purpose applies to.
func (p Purpose) Kind() session.Kind {
	switch p {
	case PurposeAdminOTP, PurposeAdminReset:
		return session.KindAdmin
	case PurposeMemberOTP, PurposeMemberReset:
		return session.KindMember
	}
	return ""
}

func (p Purpose) IsOTP() bool   { return p == PurposeAdminOTP || p == PurposeMemberOTP }
func (p Purpose) IsReset() bool { return p == PurposeAdminReset || p == PurposeMemberReset }

func (p Purpose) String() string { return string(p) }

func OTPPurposeFor(kind session.Kind) (Purpose, error) {
	switch kind {
	case session.KindAdmin:
		return PurposeAdminOTP, nil
	case session.KindMember:
		return PurposeMemberOTP, nil
	}
	return "", ErrInvalidPurpose
}

func ResetPurposeFor(kind session.Kind) (Purpose, error) {
	switch kind {
	case session.KindAdmin:
		return PurposeAdminReset, nil
	case session.KindMember:
		return PurposeMemberReset, nil
	}
	return "", ErrInvalidPurpose
}

// Identity is an admin or member account as seen by the auth core.
//
// Credential holds an argon2id or bcrypt hash, or a legacy plaintext value
// awaiting migration. It is never written to logs or sessions.
type Identity struct {
	ID          string
	Kind        session.Kind
	Email       string
	Name        string
	Role        permission.Role
	Permissions permission.Set
	Credential  string
	Active      bool
	// Immutable marks the master admin configured from the environment.
	Immutable bool
}

// IdentityProvider is the account store the engine reads and updates.
//
// FindIdentity returns ErrIdentityNotFound for unknown emails. Emails are
// passed normalized (trimmed, lower case).
type IdentityProvider interface {
	FindIdentity(ctx context.Context, kind session.Kind, email string) (Identity, error)
	UpdateCredential(ctx context.Context, kind session.Kind, email, credential string) error
}

// IdentityLister is implemented by providers that support bulk credential
// migration.
type IdentityLister interface {
	ListIdentities(ctx context.Context, kind session.Kind) ([]Identity, error)
}

// OTPNotice is handed to the Notifier for delivery. Code is the only place a
// plaintext OTP exists outside the user's inbox.
type OTPNotice struct {
	Kind      session.Kind
	Email     string
	Name      string
	Code      string
	ExpiresAt time.Time
}

type ResetNotice struct {
	Kind      session.Kind
	Email     string
	Name      string
	Link      string
	ExpiresAt time.Time
}

// Notifier delivers codes and reset links. Implementations must honor ctx
// cancellation; the engine bounds every call by Config.Delivery.Timeout.
type Notifier interface {
	SendOTP(ctx context.Context, notice OTPNotice) error
	SendPasswordReset(ctx context.Context, notice ResetNotice) error
}

// ResetRef identifies the verified reset record that FinalizePasswordReset
// must consume. It is opaque to callers.
type ResetRef struct {
	ID string
}

// MigrationReport summarizes a MigrateLegacyCredentials run.
type MigrationReport struct {
	Migrated int
	Skipped  int
	Failed   int
}

// AuditEvent is the structured record passed to an AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink consumes audit events. Emit must not block for long; the engine
// dispatches asynchronously when Config.Audit.Enabled is set.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel for tests and in-process consumers.
type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink writes audit events as structured zap log entries.
type ZapSink = internalaudit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

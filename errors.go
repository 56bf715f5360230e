package portalauth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means no pending code exists for the email and purpose.
	ErrNotFound = errors.New("no pending code")
	// ErrExpired means the code or token outlived its TTL. The record is gone.
	ErrExpired = errors.New("code expired")
	// ErrExhausted means the attempt budget is spent. The record is gone.
	ErrExhausted = errors.New("attempts exhausted")
	// ErrMismatch means a wrong code or password. Use errors.As with
	// *MismatchError for the remaining attempts.
	ErrMismatch = errors.New("code mismatch")
	// ErrWeakSecret means a new password failed the policy.
	ErrWeakSecret = errors.New("password does not meet policy")
	// ErrStorage wraps token or identity storage failures.
	ErrStorage = errors.New("storage unavailable")
	// ErrDelivery means the notifier could not send the email.
	ErrDelivery = errors.New("delivery failed")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken means the reset token is unknown, wrong or already used.
	ErrInvalidToken = errors.New("invalid reset token")
	// ErrIdentityNotFound means the account vanished between request and use.
	ErrIdentityNotFound = errors.New("identity not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidPurpose   = errors.New("invalid purpose")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrEngineNotReady   = errors.New("engine not initialized")
	// ErrImmutableIdentity is returned when a credential update targets the
	// environment-configured master admin.
	ErrImmutableIdentity = errors.New("identity is read-only")
)

// MismatchError reports a wrong OTP with attempts left.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrMismatch, e.Remaining)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }

// WeakSecretError lists the policy rules a new password failed.
type WeakSecretError struct {
	Reasons []string
}

func (e *WeakSecretError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrWeakSecret.Error()
	}
	return ErrWeakSecret.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *WeakSecretError) Unwrap() error { return ErrWeakSecret }

// UserMessage maps err to text that is safe to show to the person signing in.
// Internal detail never reaches the message.
func UserMessage(err error) string {
	var mismatch *MismatchError
	var weak *WeakSecretError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &mismatch):
		if mismatch.Remaining == 1 {
			return "Invalid OTP. 1 attempt remaining."
		}
		return fmt.Sprintf("Invalid OTP. %d attempts remaining.", mismatch.Remaining)
	case errors.Is(err, ErrMismatch):
		return "Invalid email or password."
	case errors.As(err, &weak):
		if len(weak.Reasons) == 0 {
			return "Password does not meet requirements."
		}
		return "Password does not meet requirements: " + strings.Join(weak.Reasons, ", ") + "."
	case errors.Is(err, ErrWeakSecret):
		return "Password does not meet requirements."
	case errors.Is(err, ErrNotFound):
		return "No OTP found. Please request a new one."
	case errors.Is(err, ErrExpired):
		return "This code or link has expired. Please request a new one."
	case errors.Is(err, ErrExhausted):
		return "Too many failed attempts. Please request a new OTP."
	case errors.Is(err, ErrInvalidToken):
		return "This reset link is invalid or has expired."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please try again later."
	case errors.Is(err, ErrDelivery):
		return "We could not send the email. Please try again."
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized."
	case errors.Is(err, ErrInvalidPurpose):
		return "Invalid request type."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrImmutableIdentity):
		return "This account's password is managed by the server configuration."
	case errors.Is(err, ErrIdentityNotFound):
		return "This account could not be updated. Please contact support."
	default:
		return "Something went wrong. Please try again."
	}
}

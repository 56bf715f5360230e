package internaldefs

import (
	"github.com/premproperties/portalauth"
)

type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: portalauth.MetricOTPRequest, Name: "portalauth_otp_request_total", Help: "OTP requests answered, including enumeration-safe responses."},
	{ID: portalauth.MetricOTPVerifySuccess, Name: "portalauth_otp_verify_success_total", Help: "Successful OTP verifications."},
	{ID: portalauth.MetricOTPVerifyFailure, Name: "portalauth_otp_verify_failure_total", Help: "Failed OTP verifications."},
	{ID: portalauth.MetricOTPExhausted, Name: "portalauth_otp_exhausted_total", Help: "OTP records removed after the attempt cap."},
	{ID: portalauth.MetricPasswordResetRequest, Name: "portalauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: portalauth.MetricPasswordResetConfirmSuccess, Name: "portalauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: portalauth.MetricPasswordResetConfirmFailure, Name: "portalauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: portalauth.MetricLoginSuccess, Name: "portalauth_login_success_total", Help: "Successful password logins."},
	{ID: portalauth.MetricLoginFailure, Name: "portalauth_login_failure_total", Help: "Failed password logins."},
	{ID: portalauth.MetricRateLimitHit, Name: "portalauth_rate_limit_hit_total", Help: "Requests denied by a rate limiter."},
	{ID: portalauth.MetricSessionIssued, Name: "portalauth_session_issued_total", Help: "Sessions issued."},
	{ID: portalauth.MetricLegacyCredential, Name: "portalauth_legacy_credential_total", Help: "Logins verified against a plaintext credential."},
	{ID: portalauth.MetricDeliveryFailure, Name: "portalauth_delivery_failure_total", Help: "Emails the notifier failed to send."},
	{ID: portalauth.MetricTokensPurged, Name: "portalauth_tokens_purged_total", Help: "Expired token records removed by the sweeper."},
}

var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricDeliveryLatency, Name: "portalauth_delivery_latency_seconds", Help: "Notifier call latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds, matching
// the core's millisecond buckets. The last core bucket is +Inf.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

const AuditDroppedName = "portalauth_audit_dropped_total"

const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

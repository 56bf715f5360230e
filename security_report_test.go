package portalauth

import (
	"testing"
	"time"
)

func TestSecurityReport(t *testing.T) {
	te := newTestEngine(t, testEngineOptions{})
	r := te.SecurityReport()

	if r.SigningAlgorithm != "HS256" {
		t.Fatalf("expected HS256, got %q", r.SigningAlgorithm)
	}
	if r.AdminSessionTTL != 8*time.Hour || r.MemberSessionTTL != 24*time.Hour {
		t.Fatalf("unexpected session TTLs: %v / %v", r.AdminSessionTTL, r.MemberSessionTTL)
	}
	if r.OTPDigits != 6 || r.OTPMaxAttempts != 5 || r.OTPTTL != 10*time.Minute {
		t.Fatalf("unexpected OTP settings: %+v", r)
	}
	if r.RateLimitingActive {
		t.Fatal("test config disables rate limiting")
	}
	if r.TokenStore != TokenStoreMemory {
		t.Fatalf("expected memory store, got %q", r.TokenStore)
	}
	if r.Argon2.Memory != 8192 {
		t.Fatalf("expected test argon memory, got %d", r.Argon2.Memory)
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got != (SecurityReport{}) {
		t.Fatalf("nil engine should report zero value, got %+v", got)
	}
}

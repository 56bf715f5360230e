package password

import (
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// portalCost is the cheapest cost the portal accepts, which keeps these tests
// fast while still exercising the real floor.
func portalCost() Config {
	return Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func mustArgon2(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	a, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2(%+v): %v", cfg, err)
	}
	return a
}

func TestArgon2EncodesPortalCost(t *testing.T) {
	a := mustArgon2(t, portalCost())

	stored, err := a.Hash("Office-Pass1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if want := fmt.Sprintf("$argon2id$v=19$m=%d,t=1,p=1$", minMemoryKB); !strings.HasPrefix(stored, want) {
		t.Fatalf("stored credential %q does not start with %q", stored, want)
	}

	again, err := a.Hash("Office-Pass1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if again == stored {
		t.Fatal("two hashes of one password must use different salts")
	}

	for _, tc := range []struct {
		presented string
		want      bool
	}{
		{"Office-Pass1", true},
		{"office-pass1", false},
		{"Office-Pass1 ", false},
	} {
		ok, err := a.Verify(tc.presented, stored)
		if err != nil {
			t.Fatalf("Verify(%q): %v", tc.presented, err)
		}
		if ok != tc.want {
			t.Fatalf("Verify(%q) = %v, want %v", tc.presented, ok, tc.want)
		}
	}
}

func TestArgon2RejectsCostBelowFloor(t *testing.T) {
	tests := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = minMemoryKB - 1 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	}
	for name, mutate := range tests {
		cfg := portalCost()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s below floor accepted", name)
		}
	}
}

func TestArgon2RejectsForeignEncodings(t *testing.T) {
	a := mustArgon2(t, portalCost())
	stored, err := a.Hash("Office-Pass1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte("Office-Pass1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	tests := map[string]string{
		"plaintext":     "Office-Pass1",
		"bcrypt":        string(bcryptHash),
		"argon2i":       strings.Replace(stored, "$argon2id$", "$argon2i$", 1),
		"older version": strings.Replace(stored, "$v=19$", "$v=16$", 1),
		"truncated":     stored[:strings.LastIndex(stored, "$")],
		"short salt":    fmt.Sprintf("$argon2id$v=19$m=%d,t=1,p=1$c2FsdA$aGFzaA", minMemoryKB),
	}
	for name, encoded := range tests {
		if _, err := a.Verify("Office-Pass1", encoded); err == nil {
			t.Fatalf("%s: expected a parse error", name)
		}
		if _, err := a.NeedsUpgrade(encoded); err == nil {
			t.Fatalf("%s: NeedsUpgrade expected a parse error", name)
		}
	}
}

func TestArgon2UpgradeWhenCostRaised(t *testing.T) {
	current := portalCost()
	current.Memory = 2 * minMemoryKB
	current.Time = 2
	a := mustArgon2(t, current)

	tests := []struct {
		name string
		cfg  func(*Config)
		want bool
	}{
		{name: "same cost", cfg: func(*Config) {}, want: false},
		{name: "less memory", cfg: func(c *Config) { c.Memory = minMemoryKB }, want: true},
		{name: "fewer passes", cfg: func(c *Config) { c.Time = 1 }, want: true},
		{name: "shorter key", cfg: func(c *Config) { c.KeyLength = 16 }, want: true},
		{name: "more memory", cfg: func(c *Config) { c.Memory = 4 * minMemoryKB }, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			older := current
			tc.cfg(&older)
			stored, err := mustArgon2(t, older).Hash("Listing-Pass2")
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}

			// Old parameters travel in the encoding, so the credential keeps
			// verifying until it is rewritten.
			ok, err := a.Verify("Listing-Pass2", stored)
			if err != nil || !ok {
				t.Fatalf("Verify with current config: ok=%v err=%v", ok, err)
			}
			got, err := a.NeedsUpgrade(stored)
			if err != nil {
				t.Fatalf("NeedsUpgrade: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestArgon2MaxPasswordBytes(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		max   int
	}{
		{name: "configured", limit: 64, max: 64},
		{name: "default", limit: 0, max: DefaultMaxPasswordBytes},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := portalCost()
			cfg.MaxPasswordBytes = tc.limit
			a := mustArgon2(t, cfg)

			atLimit := strings.Repeat("p", tc.max)
			stored, err := a.Hash(atLimit)
			if err != nil {
				t.Fatalf("password of %d bytes rejected: %v", tc.max, err)
			}
			if ok, err := a.Verify(atLimit, stored); err != nil || !ok {
				t.Fatalf("Verify at limit: ok=%v err=%v", ok, err)
			}

			over := atLimit + "p"
			if _, err := a.Hash(over); err == nil {
				t.Fatalf("password of %d bytes accepted by Hash", len(over))
			}
			if _, err := a.Verify(over, stored); err == nil {
				t.Fatalf("password of %d bytes accepted by Verify", len(over))
			}
		})
	}

	if _, err := mustArgon2(t, portalCost()).Hash(""); err == nil {
		t.Fatal("empty password hashed")
	}
}

// Admin files and the members table still carry bcrypt and plaintext values
// from before the argon2id switch. Each must verify once and come back as a
// current argon2id credential.
func TestVerifierRehashesLegacyCredentials(t *testing.T) {
	v, _ := newTestVerifier(t)
	const plain = "Office-Pass1"

	bcryptHash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	weak := portalCost()
	weak.KeyLength = 16
	weakArgon, err := mustArgon2(t, weak).Hash(plain)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	for _, stored := range []string{plain, string(bcryptHash), weakArgon} {
		scheme := DetectScheme(stored)
		if !v.Verify(plain, stored) {
			t.Fatalf("%s credential did not verify", scheme)
		}
		if !v.NeedsRehash(stored) {
			t.Fatalf("%s credential should be rehashed", scheme)
		}

		upgraded, err := v.Hash(plain)
		if err != nil {
			t.Fatalf("%s: Hash: %v", scheme, err)
		}
		if DetectScheme(upgraded) != SchemeArgon2id || v.NeedsRehash(upgraded) {
			t.Fatalf("%s: upgraded credential %q is not current", scheme, upgraded)
		}
		if !v.Verify(plain, upgraded) {
			t.Fatalf("%s: upgraded credential does not verify", scheme)
		}
	}
}

package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Scheme identifies how a stored credential is encoded.
type Scheme uint8

const (
	SchemeEmpty Scheme = iota
	SchemePlaintext
	SchemeBcrypt
	SchemeArgon2id
)

func (s Scheme) String() string {
	switch s {
	case SchemePlaintext:
		return "plaintext"
	case SchemeBcrypt:
		return "bcrypt"
	case SchemeArgon2id:
		return "argon2id"
	default:
		return "empty"
	}
}

// DetectScheme classifies stored by its signature prefix. Anything without a
// recognized prefix is legacy plaintext.
func DetectScheme(stored string) Scheme {
	switch {
	case stored == "":
		return SchemeEmpty
	case strings.HasPrefix(stored, argon2Prefix):
		return SchemeArgon2id
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return SchemeBcrypt
	default:
		return SchemePlaintext
	}
}

// IsHashed reports whether stored is in a recognized hashed form.
func IsHashed(stored string) bool {
	s := DetectScheme(stored)
	return s == SchemeArgon2id || s == SchemeBcrypt
}

// Verifier is the single place where presented secrets meet stored
// credentials. Call sites never branch on the credential format.
type Verifier struct {
	hasher *Argon2
	logger *zap.Logger

	dummyOnce sync.Once
	dummy     string
}

// NewVerifier wires a verifier around hasher. A nil logger disables the
// legacy-credential warning.
func NewVerifier(hasher *Argon2, logger *zap.Logger) (*Verifier, error) {
	if hasher == nil {
		return nil, errors.New("password verifier requires a hasher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{hasher: hasher, logger: logger}, nil
}

// Verify reports whether plain matches stored. It returns false on any
// mismatch or malformed stored value and never returns an error for a
// normal mismatch.
func (v *Verifier) Verify(plain, stored string) bool {
	switch DetectScheme(stored) {
	case SchemeArgon2id:
		ok, err := v.hasher.Verify(plain, stored)
		if err != nil {
			v.logger.Warn("malformed argon2id credential", zap.Error(err))
			return false
		}
		return ok
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	case SchemePlaintext:
		v.logger.Warn("legacy plaintext credential compared; migration pending",
			zap.String("scheme", SchemePlaintext.String()),
		)
		a := sha256.Sum256([]byte(plain))
		b := sha256.Sum256([]byte(stored))
		return subtle.ConstantTimeCompare(a[:], b[:]) == 1
	default:
		return false
	}
}

// Hash always produces the argon2id form; plaintext is never written.
func (v *Verifier) Hash(plain string) (string, error) {
	return v.hasher.Hash(plain)
}

// NeedsRehash reports whether stored should be replaced by a fresh argon2id
// hash the next time the plaintext is known.
func (v *Verifier) NeedsRehash(stored string) bool {
	switch DetectScheme(stored) {
	case SchemeArgon2id:
		upgrade, err := v.hasher.NeedsUpgrade(stored)
		return err != nil || upgrade
	case SchemeEmpty:
		return false
	default:
		return true
	}
}

// Burn spends roughly the cost of one argon2id verification. Login uses it
// for unknown accounts so response timing does not reveal registration.
func (v *Verifier) Burn(plain string) {
	v.dummyOnce.Do(func() {
		v.dummy, _ = v.hasher.Hash("portalauth-timing-equalizer")
	})
	if v.dummy == "" {
		return
	}
	_, _ = v.hasher.Verify(plain, v.dummy)
}

// EqualCode compares two short codes or code digests in constant time.
func EqualCode(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

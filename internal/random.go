package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const resetSecretSize = 32

// NewOTP returns a numeric code of the given length drawn from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewResetToken returns an opaque URL-safe token carrying 256 bits of entropy.
func NewResetToken() (string, error) {
	var secret [resetSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// DigestSecret is the stored form of a code or token. Only digests reach the
// token store.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// RandomDelay returns a uniformly random duration in [min, min+spread).
func RandomDelay(minMillis, spreadMillis int64) (int64, error) {
	if spreadMillis <= 0 {
		return minMillis, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(spreadMillis))
	if err != nil {
		return 0, err
	}
	return minMillis + n.Int64(), nil
}

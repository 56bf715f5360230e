package password

import (
	"errors"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Policy is the strength rule applied to every new credential.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy matches the portal's historical rule: eight characters with
// upper, lower and digit classes.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		MaxLength:    128,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

func (p Policy) Check() error {
	if p.MinLength < 1 {
		return errors.New("password policy min length must be >= 1")
	}
	if p.MaxLength != 0 && p.MaxLength < p.MinLength {
		return errors.New("password policy max length must be >= min length")
	}
	return nil
}

// Validate returns the human-readable rules s fails. An empty result means
// the password is acceptable.
func (p Policy) Validate(s string) []string {
	var reasons []string

	n := utf8.RuneCountInString(s)
	if n < p.MinLength {
		reasons = append(reasons, "must be at least "+strconv.Itoa(p.MinLength)+" characters")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		reasons = append(reasons, "must be at most "+strconv.Itoa(p.MaxLength)+" characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.RequireUpper && !upper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		reasons = append(reasons, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		reasons = append(reasons, "must contain a symbol")
	}
	return reasons
}

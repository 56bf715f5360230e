package stores

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrTokenNotFound    = errors.New("token record not found")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// ExpiryGrace is how long a backend keeps a record past its logical expiry.
const ExpiryGrace = 5 * time.Minute

// TokenRecord is one pending one-time code or reset token.
type TokenRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Purpose   string    `json:"purpose"`
	Value     string    `json:"value"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is logically dead at now.
func (r TokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r TokenRecord) retention() time.Duration {
	ttl := r.ExpiresAt.Sub(r.CreatedAt)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + ExpiryGrace
}

// Action tells Update what to do with the record after the callback runs.
type Action uint8

const (
	Keep Action = iota
	Save
	Delete
)

// UpdateFunc inspects and may modify rec. The returned action is applied
// atomically with the read, then the returned error is passed to the caller.
type UpdateFunc func(rec *TokenRecord) (Action, error)

// TokenStore is implemented by every backend.
type TokenStore interface {
	Put(ctx context.Context, rec TokenRecord) error
	Get(ctx context.Context, email, purpose string) (TokenRecord, error)
	// Delete removes the record for (email, purpose). When id is non-empty the
	// record is removed only if it still carries that id. Missing records are
	// not an error.
	Delete(ctx context.Context, email, purpose, id string) error
	Update(ctx context.Context, email, purpose string, fn UpdateFunc) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// NormalizeEmail is the canonical key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRecord(rec TokenRecord) error {
	if rec.ID == "" {
		return errors.New("token record id is required")
	}
	if rec.Email == "" || rec.Purpose == "" {
		return errors.New("token record key is required")
	}
	if rec.Value == "" {
		return errors.New("token record value is required")
	}
	if !rec.ExpiresAt.After(rec.CreatedAt) {
		return errors.New("token record expiry must follow creation")
	}
	return nil
}

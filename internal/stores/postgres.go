package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the Postgres backend needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const tokenSchema = `CREATE TABLE IF NOT EXISTS auth_tokens (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL,
	purpose    TEXT NOT NULL,
	value      TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	UNIQUE (email, purpose)
)`

const (
	tokenUpsertSQL = `INSERT INTO auth_tokens (id, email, purpose, value, attempts, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email, purpose) DO UPDATE SET
	id = EXCLUDED.id,
	value = EXCLUDED.value,
	attempts = EXCLUDED.attempts,
	created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at`

	tokenSelectSQL = `SELECT id::text, email, purpose, value, attempts, created_at, expires_at
FROM auth_tokens WHERE email = $1 AND purpose = $2`

	tokenSelectForUpdateSQL = tokenSelectSQL + ` FOR UPDATE`

	tokenSaveSQL      = `UPDATE auth_tokens SET value = $2, attempts = $3, expires_at = $4 WHERE id = $1`
	tokenDeleteSQL    = `DELETE FROM auth_tokens WHERE email = $1 AND purpose = $2`
	tokenDeleteIDSQL  = `DELETE FROM auth_tokens WHERE email = $1 AND purpose = $2 AND id = $3`
	tokenDeleteRowSQL = `DELETE FROM auth_tokens WHERE id = $1`
	tokenPurgeSQL     = `DELETE FROM auth_tokens WHERE expires_at < $1`
)

// PostgresTokenStore keeps records in the auth_tokens table. The unique
// (email, purpose) constraint backs the upsert.
type PostgresTokenStore struct {
	pool PgxPool
}

func NewPostgresTokenStore(pool PgxPool) *PostgresTokenStore {
	return &PostgresTokenStore{pool: pool}
}

// EnsureSchema creates auth_tokens if it does not exist.
func (s *PostgresTokenStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, tokenSchema); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresTokenStore) Put(ctx context.Context, rec TokenRecord) error {
	rec.Email = NormalizeEmail(rec.Email)
	if err := validateRecord(rec); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, tokenUpsertSQL,
		rec.ID, rec.Email, rec.Purpose, rec.Value, rec.Attempts, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresTokenStore) Get(ctx context.Context, email, purpose string) (TokenRecord, error) {
	rec, err := scanToken(s.pool.QueryRow(ctx, tokenSelectSQL, NormalizeEmail(email), purpose))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRecord{}, ErrTokenNotFound
		}
		return TokenRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *PostgresTokenStore) Delete(ctx context.Context, email, purpose, id string) error {
	var err error
	if id == "" {
		_, err = s.pool.Exec(ctx, tokenDeleteSQL, NormalizeEmail(email), purpose)
	} else {
		_, err = s.pool.Exec(ctx, tokenDeleteIDSQL, NormalizeEmail(email), purpose, id)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresTokenStore) Update(ctx context.Context, email, purpose string, fn UpdateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	rec, err := scanToken(tx.QueryRow(ctx, tokenSelectForUpdateSQL, NormalizeEmail(email), purpose))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	action, cbErr := fn(&rec)
	switch action {
	case Save:
		_, err = tx.Exec(ctx, tokenSaveSQL, rec.ID, rec.Value, rec.Attempts, rec.ExpiresAt)
	case Delete:
		_, err = tx.Exec(ctx, tokenDeleteRowSQL, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	committed = true
	return cbErr
}

func (s *PostgresTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, tokenPurgeSQL, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanToken(row pgx.Row) (TokenRecord, error) {
	var rec TokenRecord
	err := row.Scan(&rec.ID, &rec.Email, &rec.Purpose, &rec.Value, &rec.Attempts, &rec.CreatedAt, &rec.ExpiresAt)
	return rec, err
}

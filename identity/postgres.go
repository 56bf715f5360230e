package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
)

// PgxQuerier is the subset of *pgxpool.Pool the member store needs.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	memberColumns = `id::text, name, email, password, status`

	memberSelectSQL = `SELECT ` + memberColumns + ` FROM members WHERE lower(email) = $1`
	memberListSQL   = `SELECT ` + memberColumns + ` FROM members ORDER BY email`
	memberUpdateSQL = `UPDATE members SET password = $2 WHERE lower(email) = $1`
)

// MemberStore reads members from Postgres. A NULL status counts as active;
// "suspended" and "inactive" do not.
type MemberStore struct {
	db PgxQuerier
}

var (
	_ portalauth.IdentityProvider = (*MemberStore)(nil)
	_ portalauth.IdentityLister   = (*MemberStore)(nil)
)

func NewMemberStore(db PgxQuerier) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) FindIdentity(ctx context.Context, kind session.Kind, email string) (portalauth.Identity, error) {
	if kind != session.KindMember {
		return portalauth.Identity{}, portalauth.ErrIdentityNotFound
	}
	ident, err := scanMember(s.db.QueryRow(ctx, memberSelectSQL, strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, pgx.ErrNoRows) {
		return portalauth.Identity{}, portalauth.ErrIdentityNotFound
	}
	if err != nil {
		return portalauth.Identity{}, storageError(err)
	}
	return ident, nil
}

func (s *MemberStore) UpdateCredential(ctx context.Context, kind session.Kind, email, credential string) error {
	if kind != session.KindMember {
		return portalauth.ErrIdentityNotFound
	}
	tag, err := s.db.Exec(ctx, memberUpdateSQL, strings.ToLower(strings.TrimSpace(email)), credential)
	if err != nil {
		return storageError(err)
	}
	if tag.RowsAffected() == 0 {
		return portalauth.ErrIdentityNotFound
	}
	return nil
}

func (s *MemberStore) ListIdentities(ctx context.Context, kind session.Kind) ([]portalauth.Identity, error) {
	if kind != session.KindMember {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, memberListSQL)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var out []portalauth.Identity
	for rows.Next() {
		ident, err := scanMember(rows)
		if err != nil {
			return nil, storageError(err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return out, nil
}

func scanMember(row pgx.Row) (portalauth.Identity, error) {
	var (
		id, email      string
		name, password *string
		status         *string
	)
	if err := row.Scan(&id, &name, &email, &password, &status); err != nil {
		return portalauth.Identity{}, err
	}

	ident := portalauth.Identity{
		ID:     id,
		Kind:   session.KindMember,
		Email:  strings.ToLower(email),
		Role:   permission.RoleMember,
		Active: true,
	}
	if name != nil {
		ident.Name = *name
	}
	if password != nil {
		ident.Credential = *password
	}
	if status != nil {
		switch strings.ToLower(*status) {
		case "suspended", "inactive", "disabled":
			ident.Active = false
		}
	}
	return ident, nil
}

func storageError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", portalauth.ErrStorage, err)
}

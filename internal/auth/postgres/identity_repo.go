// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// Unique constraints declared by the identities migration.
const (
	emailConstraint        = "identities_email_key"
	sessionTokenConstraint = "identities_session_token_hash_key"
	resetTokenConstraint   = "identities_reset_token_hash_key"
)

const selectIdentity = `
	SELECT id, email, password_hash, session_token_hash, reset_token_hash,
	       created_at, updated_at
	FROM identities
`

// poolIface is the subset of pgxpool.Pool used by the repository.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IdentityRepository implements auth.CredentialStore using PostgreSQL.
type IdentityRepository struct {
	pool poolIface
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool poolIface) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// FindByEmail retrieves an identity by exact email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID retrieves an identity by ID.
func (r *IdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	return r.findOne(ctx, "id", id.String())
}

// FindBySessionToken retrieves the identity holding a session digest.
func (r *IdentityRepository) FindBySessionToken(ctx context.Context, digest string) (*auth.Identity, error) {
	return r.findOne(ctx, "session_token_hash", digest)
}

// FindByResetToken retrieves the identity holding a reset digest.
func (r *IdentityRepository) FindByResetToken(ctx context.Context, digest string) (*auth.Identity, error) {
	return r.findOne(ctx, "reset_token_hash", digest)
}

func (r *IdentityRepository) findOne(ctx context.Context, column, value string) (*auth.Identity, error) {
	row := r.pool.QueryRow(ctx, selectIdentity+"WHERE "+column+" = $1", value)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("by", column).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by "+column).
			Wrap(err)
	}
	return identity, nil
}

// Insert creates an identity. The unique constraint on email makes the
// duplicate check atomic.
func (r *IdentityRepository) Insert(ctx context.Context, email string, passwordHash []byte) (*auth.Identity, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	identity := &auth.Identity{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		identity.ID.String(),
		identity.Email,
		identity.PasswordHash,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == emailConstraint {
			return nil, oops.Code("IDENTITY_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			Wrap(err)
	}
	return identity, nil
}

// Update applies a partial update to an identity.
func (r *IdentityRepository) Update(ctx context.Context, id ulid.ULID, fields ...auth.Field) error {
	return r.update(ctx, id, nil, fields)
}

// UpdateIf applies a partial update while the identity still holds guard.
func (r *IdentityRepository) UpdateIf(ctx context.Context, id ulid.ULID, guard auth.Field, fields ...auth.Field) error {
	if guard.Token() == nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("column", string(guard.Column)).
			Errorf("guard must carry a token digest")
	}
	return r.update(ctx, id, &guard, fields)
}

func (r *IdentityRepository) update(ctx context.Context, id ulid.ULID, guard *auth.Field, fields []auth.Field) error {
	if err := auth.ValidateFields(fields); err != nil {
		return err
	}

	sql, args := buildUpdate(id, guard, fields, time.Now().UTC())
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok &&
			(constraint == sessionTokenConstraint || constraint == resetTokenConstraint) {
			return oops.Code("IDENTITY_TOKEN_CONFLICT").
				With("constraint", constraint).
				Wrap(auth.ErrTokenConflict)
		}
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", "update identity").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// buildUpdate renders UPDATE identities SET ... WHERE id = $1 [AND guard].
func buildUpdate(id ulid.ULID, guard *auth.Field, fields []auth.Field, now time.Time) (string, []any) {
	args := []any{id.String()}
	sets := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		args = append(args, f.Value())
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Column, len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	sql := "UPDATE identities SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if guard != nil {
		args = append(args, *guard.Token())
		sql += fmt.Sprintf(" AND %s = $%d", guard.Column, len(args))
	}
	return sql, args
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// scanIdentity scans a row into an Identity.
func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		idStr    string
		identity auth.Identity
	)
	if err := row.Scan(
		&idStr,
		&identity.Email,
		&identity.PasswordHash,
		&identity.SessionTokenHash,
		&identity.ResetTokenHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").With("id", idStr).Wrap(err)
	}
	identity.ID = id
	return &identity, nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*IdentityRepository)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

var identityColumns = []string{
	"id", "email", "password_hash", "session_token_hash", "reset_token_hash", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func TestIdentityRepository_FindByEmail(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()
	digest := "abc123"

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		errCode   string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(identityColumns).
					AddRow(id.String(), "u@x.com", []byte("hash"), &digest, (*string)(nil), now, now)
				mock.ExpectQuery(`FROM identities\s+WHERE email = \$1`).
					WithArgs("u@x.com").
					WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM identities\s+WHERE email = \$1`).
					WithArgs("u@x.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: auth.ErrNotFound,
			errCode: "IDENTITY_NOT_FOUND",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM identities\s+WHERE email = \$1`).
					WithArgs("u@x.com").
					WillReturnError(errors.New("connection refused"))
			},
			errCode: "IDENTITY_GET_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			repo := NewIdentityRepository(mock)
			got, err := repo.FindByEmail(context.Background(), "u@x.com")

			if tt.errCode != "" {
				require.Error(t, err)
				assert.Nil(t, got)
				errutil.AssertErrorCode(t, err, tt.errCode)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, id, got.ID)
				assert.Equal(t, "u@x.com", got.Email)
				assert.Equal(t, []byte("hash"), got.PasswordHash)
				require.NotNil(t, got.SessionTokenHash)
				assert.Equal(t, digest, *got.SessionTokenHash)
				assert.Nil(t, got.ResetTokenHash)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepository_FindByTokens(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()
	digest := "d1"

	mock := newMock(t)
	mock.ExpectQuery(`WHERE session_token_hash = \$1`).
		WithArgs(digest).
		WillReturnRows(pgxmock.NewRows(identityColumns).
			AddRow(id.String(), "u@x.com", []byte("hash"), &digest, (*string)(nil), now, now))
	mock.ExpectQuery(`WHERE reset_token_hash = \$1`).
		WithArgs(digest).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(identityColumns).
			AddRow("not-a-ulid", "u@x.com", []byte("hash"), (*string)(nil), (*string)(nil), now, now))

	repo := NewIdentityRepository(mock)
	ctx := context.Background()

	got, err := repo.FindBySessionToken(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = repo.FindByResetToken(ctx, digest)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = repo.FindByID(ctx, id)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "IDENTITY_INVALID_ID")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_Insert(t *testing.T) {
	insertSQL := regexp.QuoteMeta("INSERT INTO identities (id, email, password_hash, created_at, updated_at)")

	t.Run("inserts identity", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(insertSQL).
			WithArgs(pgxmock.AnyArg(), "u@x.com", []byte("hash"), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		identity, err := NewIdentityRepository(mock).Insert(context.Background(), "u@x.com", []byte("hash"))
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, identity.ID)
		assert.Equal(t, "u@x.com", identity.Email)
		assert.False(t, identity.HasSession())
		assert.False(t, identity.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(insertSQL).
			WithArgs(pgxmock.AnyArg(), "u@x.com", []byte("hash"), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: emailConstraint})

		identity, err := NewIdentityRepository(mock).Insert(context.Background(), "u@x.com", []byte("hash"))
		require.Error(t, err)
		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(insertSQL).
			WithArgs(pgxmock.AnyArg(), "u@x.com", []byte("hash"), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		_, err := NewIdentityRepository(mock).Insert(context.Background(), "u@x.com", []byte("hash"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "IDENTITY_CREATE_FAILED")
	})
}

func TestIdentityRepository_Update(t *testing.T) {
	id := ulid.Make()
	digest := "session-digest"

	t.Run("sets session token", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET session_token_hash = $2, updated_at = $3 WHERE id = $1")).
			WithArgs(id.String(), &digest, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := NewIdentityRepository(mock).Update(context.Background(), id, auth.SetSessionToken(digest))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clears token with NULL", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE identities SET session_token_hash = $2, updated_at = $3 WHERE id = $1")).
			WithArgs(id.String(), (*string)(nil), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := NewIdentityRepository(mock).Update(context.Background(), id, auth.ClearSessionToken())
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE identities SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewIdentityRepository(mock).Update(context.Background(), id, auth.ClearResetToken())
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorContext(t, err, "id", id.String())
	})

	t.Run("token held by another identity", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE identities SET`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: sessionTokenConstraint})

		err := NewIdentityRepository(mock).Update(context.Background(), id, auth.SetSessionToken(digest))
		assert.ErrorIs(t, err, auth.ErrTokenConflict)
	})

	t.Run("rejects empty field list without querying", func(t *testing.T) {
		mock := newMock(t)
		err := NewIdentityRepository(mock).Update(context.Background(), id)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "FIELD_INVALID")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdentityRepository_UpdateIf(t *testing.T) {
	id := ulid.Make()
	digest := "reset-digest"
	sql := regexp.QuoteMeta(
		"UPDATE identities SET password_hash = $2, reset_token_hash = $3, updated_at = $4 WHERE id = $1 AND reset_token_hash = $5")

	t.Run("guard matches", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(sql).
			WithArgs(id.String(), []byte("new"), (*string)(nil), pgxmock.AnyArg(), digest).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := NewIdentityRepository(mock).UpdateIf(context.Background(), id, auth.SetResetToken(digest),
			auth.SetPasswordHash([]byte("new")), auth.ClearResetToken())
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard no longer matches", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(sql).
			WithArgs(id.String(), []byte("new"), (*string)(nil), pgxmock.AnyArg(), digest).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewIdentityRepository(mock).UpdateIf(context.Background(), id, auth.SetResetToken(digest),
			auth.SetPasswordHash([]byte("new")), auth.ClearResetToken())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("clear guard is rejected", func(t *testing.T) {
		mock := newMock(t)
		err := NewIdentityRepository(mock).UpdateIf(context.Background(), id, auth.ClearResetToken(), auth.ClearResetToken())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "IDENTITY_UPDATE_FAILED")
	})
}

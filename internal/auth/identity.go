// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is a registered set of credentials.
type Identity struct {
	ID           ulid.ULID
	Email        string
	PasswordHash []byte
	// SessionTokenHash is the digest of the live session token, nil when
	// no session is active.
	SessionTokenHash *string
	// ResetTokenHash is the digest of the pending reset token, nil when no
	// reset is pending.
	ResetTokenHash *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasSession reports whether the identity holds a live session token.
func (i *Identity) HasSession() bool {
	return i.SessionTokenHash != nil
}

// HasPendingReset reports whether the identity holds a live reset token.
func (i *Identity) HasPendingReset() bool {
	return i.ResetTokenHash != nil
}

// Column names a mutable identity field.
type Column string

// Mutable identity columns.
const (
	ColumnSessionToken Column = "session_token_hash"
	ColumnResetToken   Column = "reset_token_hash"
	ColumnPasswordHash Column = "password_hash"
)

// Field is a single column assignment for CredentialStore.Update.
// A token field with a nil value clears the column.
type Field struct {
	Column Column
	token  *string
	hash   []byte
}

// SetSessionToken assigns the session token digest.
func SetSessionToken(digest string) Field {
	return Field{Column: ColumnSessionToken, token: &digest}
}

// ClearSessionToken removes the session token digest.
func ClearSessionToken() Field {
	return Field{Column: ColumnSessionToken}
}

// SetResetToken assigns the reset token digest.
func SetResetToken(digest string) Field {
	return Field{Column: ColumnResetToken, token: &digest}
}

// ClearResetToken removes the reset token digest.
func ClearResetToken() Field {
	return Field{Column: ColumnResetToken}
}

// SetPasswordHash replaces the password digest.
func SetPasswordHash(hash []byte) Field {
	return Field{Column: ColumnPasswordHash, hash: hash}
}

// Token returns the token digest carried by a token field, nil for a clear.
func (f Field) Token() *string {
	return f.token
}

// Hash returns the password digest carried by a password field.
func (f Field) Hash() []byte {
	return f.hash
}

// Value returns the column value in a form database drivers accept.
func (f Field) Value() any {
	if f.Column == ColumnPasswordHash {
		return f.hash
	}
	return f.token
}

// IsClear reports whether the field removes a token.
func (f Field) IsClear() bool {
	return f.Column != ColumnPasswordHash && f.token == nil
}

// Validate checks that the field is well formed.
func (f Field) Validate() error {
	switch f.Column {
	case ColumnSessionToken, ColumnResetToken:
		if f.token != nil && *f.token == "" {
			return oops.Code("FIELD_INVALID").
				With("column", string(f.Column)).
				Errorf("token digest cannot be empty")
		}
	case ColumnPasswordHash:
		if len(f.hash) == 0 {
			return oops.Code("FIELD_INVALID").
				With("column", string(f.Column)).
				Errorf("password hash cannot be empty")
		}
	default:
		return oops.Code("FIELD_INVALID").
			With("column", string(f.Column)).
			Errorf("unknown column")
	}
	return nil
}

// ApplyTo writes the field onto an in-memory identity.
func (f Field) ApplyTo(identity *Identity) {
	switch f.Column {
	case ColumnSessionToken:
		identity.SessionTokenHash = copyToken(f.token)
	case ColumnResetToken:
		identity.ResetTokenHash = copyToken(f.token)
	case ColumnPasswordHash:
		identity.PasswordHash = append([]byte(nil), f.hash...)
	}
}

// Matches reports whether the identity currently holds the field's value.
// Only token fields carrying a digest can match.
func (f Field) Matches(identity *Identity) bool {
	if f.token == nil {
		return false
	}
	var current *string
	switch f.Column {
	case ColumnSessionToken:
		current = identity.SessionTokenHash
	case ColumnResetToken:
		current = identity.ResetTokenHash
	default:
		return false
	}
	return current != nil && *current == *f.token
}

func copyToken(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ValidateFields checks a batch of updates.
func ValidateFields(fields []Field) error {
	if len(fields) == 0 {
		return oops.Code("FIELD_INVALID").Errorf("at least one field is required")
	}
	seen := make(map[Column]bool, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Column] {
			return oops.Code("FIELD_INVALID").
				With("column", string(f.Column)).
				Errorf("column assigned twice")
		}
		seen[f.Column] = true
	}
	return nil
}

// CredentialStore persists identities.
//
// Lookups return ErrNotFound (possibly wrapped) when nothing matches.
// Token lookups take the stored digest, never the plaintext token.
type CredentialStore interface {
	// FindByEmail retrieves an identity by exact email.
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// FindByID retrieves an identity by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	// FindBySessionToken retrieves the identity holding a session digest.
	FindBySessionToken(ctx context.Context, digest string) (*Identity, error)

	// FindByResetToken retrieves the identity holding a reset digest.
	FindByResetToken(ctx context.Context, digest string) (*Identity, error)

	// Insert atomically creates an identity. It returns ErrDuplicateEmail
	// when the email is already registered.
	Insert(ctx context.Context, email string, passwordHash []byte) (*Identity, error)

	// Update applies a partial update. It returns ErrNotFound when the ID
	// does not exist and ErrTokenConflict when a token digest is held by
	// another identity.
	Update(ctx context.Context, id ulid.ULID, fields ...Field) error

	// UpdateIf applies fields only while the identity still holds the
	// value described by guard. It returns ErrNotFound when the ID does
	// not exist or the guard no longer matches.
	UpdateIf(ctx context.Context, id ulid.ULID, guard Field, fields ...Field) error
}

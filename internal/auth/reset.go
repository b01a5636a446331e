// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// ResetTokenManager issues and consumes single-use password reset tokens.
type ResetTokenManager struct {
	store  CredentialStore
	hasher PasswordHasher
}

// NewResetTokenManager creates a new ResetTokenManager.
func NewResetTokenManager(store CredentialStore, hasher PasswordHasher) (*ResetTokenManager, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &ResetTokenManager{store: store, hasher: hasher}, nil
}

// Issue generates a reset token for the identity registered under email,
// replacing any pending token. Returns ErrUserNotFound for unknown emails.
func (m *ResetTokenManager) Issue(ctx context.Context, email string) (string, error) {
	identity, err := m.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return "", oops.Code("RESET_USER_NOT_FOUND").
			With("email", email).
			Wrap(ErrUserNotFound)
	}
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find by email").
			Wrap(err)
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, digest, err := GenerateToken()
		if err != nil {
			return "", oops.Code("RESET_REQUEST_FAILED").
				With("operation", "generate reset token").
				Wrap(err)
		}

		err = m.store.Update(ctx, identity.ID, SetResetToken(digest))
		if err == nil {
			return token, nil
		}
		if errors.Is(err, ErrTokenConflict) {
			continue
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}

	return "", oops.Code("RESET_REQUEST_FAILED").
		With("identity_id", identity.ID.String()).
		With("attempts", maxTokenAttempts).
		Errorf("could not allocate a unique reset token")
}

// Consume redeems a reset token: the password digest is replaced and the
// token cleared in one guarded update, so only one caller can succeed.
// The token is burned even when the new password cannot be hashed.
// Returns ErrInvalidToken when no identity holds the token.
func (m *ResetTokenManager) Consume(ctx context.Context, token, newPassword string) error {
	if !wellFormedToken(token) {
		return invalidToken()
	}
	digest := HashToken(token)

	identity, err := m.store.FindByResetToken(ctx, digest)
	if errors.Is(err, ErrNotFound) {
		return invalidToken()
	}
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "find by reset token").
			Wrap(err)
	}

	guard := SetResetToken(digest)

	hash, hashErr := m.hasher.Hash(newPassword)
	if hashErr != nil {
		if err := m.store.UpdateIf(ctx, identity.ID, guard, ClearResetToken()); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalidToken()
			}
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "burn reset token").
				With("identity_id", identity.ID.String()).
				Wrap(err)
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash new password").
			With("identity_id", identity.ID.String()).
			Wrap(hashErr)
	}

	err = m.store.UpdateIf(ctx, identity.ID, guard, SetPasswordHash(hash), ClearResetToken())
	if errors.Is(err, ErrNotFound) {
		return invalidToken()
	}
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "replace password").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}
	return nil
}

func invalidToken() error {
	return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// maxTokenAttempts bounds how often a token is regenerated after a digest
// collision reported by the store.
const maxTokenAttempts = 3

// SessionManager issues and resolves session tokens. An identity holds at
// most one session token; issuing a new one replaces the previous one.
type SessionManager struct {
	store CredentialStore
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(store CredentialStore) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	return &SessionManager{store: store}, nil
}

// CreateSession issues a fresh session token for the identity and stores
// its digest, overwriting any previous session. Returns the plaintext token.
func (m *SessionManager) CreateSession(ctx context.Context, identity *Identity) (string, error) {
	if identity == nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Errorf("identity is required")
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, digest, err := GenerateToken()
		if err != nil {
			return "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "generate session token").
				Wrap(err)
		}

		err = m.store.Update(ctx, identity.ID, SetSessionToken(digest))
		if err == nil {
			identity.SessionTokenHash = &digest
			return token, nil
		}
		if errors.Is(err, ErrTokenConflict) {
			continue
		}
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session token").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}

	return "", oops.Code("SESSION_CREATE_FAILED").
		With("identity_id", identity.ID.String()).
		With("attempts", maxTokenAttempts).
		Errorf("could not allocate a unique session token")
}

// Resolve returns the identity holding token, or nil when the token is
// empty, malformed or matches no live session.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*Identity, error) {
	if !wellFormedToken(token) {
		return nil, nil
	}

	identity, err := m.store.FindBySessionToken(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "find by session token").
			Wrap(err)
	}
	return identity, nil
}

// Destroy clears the identity's session token. Destroying an absent
// session, or a session of an unknown identity, is a no-op.
func (m *SessionManager) Destroy(ctx context.Context, id ulid.ULID) error {
	err := m.store.Update(ctx, id, ClearSessionToken())
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return oops.Code("SESSION_DESTROY_FAILED").
		With("operation", "clear session token").
		With("identity_id", id.String()).
		Wrap(err)
}

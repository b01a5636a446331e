// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authcore/internal/auth"
)

// fakeStore is an in-memory CredentialStore for flow tests.
type fakeStore struct {
	mu         sync.Mutex
	identities map[ulid.ULID]*auth.Identity
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{identities: make(map[ulid.ULID]*auth.Identity)}
}

func clone(i *auth.Identity) *auth.Identity {
	c := *i
	c.PasswordHash = append([]byte(nil), i.PasswordHash...)
	if i.SessionTokenHash != nil {
		v := *i.SessionTokenHash
		c.SessionTokenHash = &v
	}
	if i.ResetTokenHash != nil {
		v := *i.ResetTokenHash
		c.ResetTokenHash = &v
	}
	return &c
}

func (s *fakeStore) find(match func(*auth.Identity) bool) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if match(i) {
			return clone(i), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	return s.find(func(i *auth.Identity) bool { return i.Email == email })
}

func (s *fakeStore) FindByID(_ context.Context, id ulid.ULID) (*auth.Identity, error) {
	return s.find(func(i *auth.Identity) bool { return i.ID == id })
}

func (s *fakeStore) FindBySessionToken(_ context.Context, digest string) (*auth.Identity, error) {
	return s.find(func(i *auth.Identity) bool { return i.SessionTokenHash != nil && *i.SessionTokenHash == digest })
}

func (s *fakeStore) FindByResetToken(_ context.Context, digest string) (*auth.Identity, error) {
	return s.find(func(i *auth.Identity) bool { return i.ResetTokenHash != nil && *i.ResetTokenHash == digest })
}

func (s *fakeStore) Insert(_ context.Context, email string, hash []byte) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.Email == email {
			return nil, auth.ErrDuplicateEmail
		}
	}
	now := time.Now()
	i := &auth.Identity{ID: ulid.Make(), Email: email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	s.identities[i.ID] = i
	return clone(i), nil
}

func (s *fakeStore) Update(ctx context.Context, id ulid.ULID, fields ...auth.Field) error {
	return s.apply(id, nil, fields)
}

func (s *fakeStore) UpdateIf(_ context.Context, id ulid.ULID, guard auth.Field, fields ...auth.Field) error {
	return s.apply(id, &guard, fields)
}

func (s *fakeStore) apply(id ulid.ULID, guard *auth.Field, fields []auth.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if err := auth.ValidateFields(fields); err != nil {
		return err
	}
	i, ok := s.identities[id]
	if !ok || (guard != nil && !guard.Matches(i)) {
		return auth.ErrNotFound
	}
	for _, f := range fields {
		f.ApplyTo(i)
	}
	i.UpdatedAt = time.Now()
	return nil
}

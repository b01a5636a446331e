// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/mocks"
	"github.com/holomush/authcore/pkg/errutil"
)

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		store       auth.CredentialStore
		hasher      auth.PasswordHasher
		expectError string
	}{
		{
			name:        "nil credential store",
			store:       nil,
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "credential store is required",
		},
		{
			name:        "nil password hasher",
			store:       mocks.NewMockCredentialStore(t),
			hasher:      nil,
			expectError: "password hasher is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.store, tt.hasher)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewServiceWithLogger_NilLogger(t *testing.T) {
	svc, err := auth.NewServiceWithLogger(mocks.NewMockCredentialStore(t), mocks.NewMockPasswordHasher(t), nil)
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "logger")
}

type serviceFixture struct {
	svc     *auth.Service
	store   *mocks.MockCredentialStore
	hasher  *mocks.MockPasswordHasher
	metrics *mocks.MockMetricsRecorder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:   mocks.NewMockCredentialStore(t),
		hasher:  mocks.NewMockPasswordHasher(t),
		metrics: mocks.NewMockMetricsRecorder(t),
	}
	svc, err := auth.NewServiceWithLogger(f.store, f.hasher, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	f.svc = svc.WithMetrics(f.metrics)
	return f
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates identity with hashed password", func(t *testing.T) {
		f := newServiceFixture(t)
		created := &auth.Identity{ID: ulid.Make(), Email: "u@x.com", PasswordHash: []byte("digest")}
		f.store.On("FindByEmail", ctx, "u@x.com").Return(nil, auth.ErrNotFound)
		f.hasher.On("Hash", "pw1").Return([]byte("digest"), nil)
		f.store.On("Insert", ctx, "u@x.com", []byte("digest")).Return(created, nil)
		f.metrics.On("RecordOperation", "register", auth.ResultSuccess).Once()

		identity, err := f.svc.Register(ctx, "u@x.com", "pw1")
		require.NoError(t, err)
		assert.Equal(t, created, identity)
	})

	t.Run("existing email fails fast", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(&auth.Identity{ID: ulid.Make()}, nil)
		f.metrics.On("RecordOperation", "register", auth.ResultFailure).Once()

		identity, err := f.svc.Register(ctx, "u@x.com", "pw1")
		require.Error(t, err)
		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "AUTH_DUPLICATE_EMAIL")
	})

	t.Run("concurrent registration loses at insert", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(nil, auth.ErrNotFound)
		f.hasher.On("Hash", "pw1").Return([]byte("digest"), nil)
		f.store.On("Insert", ctx, "u@x.com", []byte("digest")).Return(nil, auth.ErrDuplicateEmail)
		f.metrics.On("RecordOperation", "register", auth.ResultFailure).Once()

		_, err := f.svc.Register(ctx, "u@x.com", "pw1")
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("rejected password", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(nil, auth.ErrNotFound)
		f.hasher.On("Hash", "bad\xff").Return(nil, auth.ErrInvalidEncoding)
		f.metrics.On("RecordOperation", "register", auth.ResultFailure).Once()

		_, err := f.svc.Register(ctx, "u@x.com", "bad\xff")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.ErrorIs(t, err, auth.ErrInvalidPassword)
		errutil.AssertErrorContext(t, err, "operation", "hash password")
	})

	t.Run("hash failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(nil, auth.ErrNotFound)
		f.hasher.On("Hash", "pw1").Return(nil, errors.New("entropy exhausted"))
		f.metrics.On("RecordOperation", "register", auth.ResultError).Once()

		_, err := f.svc.Register(ctx, "u@x.com", "pw1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidPassword)
		errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(nil, errors.New("connection refused"))
		f.metrics.On("RecordOperation", "register", auth.ResultError).Once()

		_, err := f.svc.Register(ctx, "u@x.com", "pw")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	identity := &auth.Identity{ID: ulid.Make(), Email: "u@x.com", PasswordHash: []byte("digest")}

	t.Run("correct password", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(identity, nil)
		f.hasher.On("Verify", []byte("digest"), "pw1").Return(true)
		f.hasher.On("NeedsUpgrade", []byte("digest")).Return(false)
		f.metrics.On("RecordOperation", "login", auth.ResultSuccess).Once()

		ok, err := f.svc.Login(ctx, "u@x.com", "pw1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(identity, nil)
		f.hasher.On("Verify", []byte("digest"), "nope").Return(false)
		f.metrics.On("RecordOperation", "login", auth.ResultFailure).Once()

		ok, err := f.svc.Login(ctx, "u@x.com", "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown email still runs verification", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "ghost@x.com").Return(nil, auth.ErrNotFound)
		f.hasher.On("Verify", mock.AnythingOfType("[]uint8"), "pw1").Return(false).Once()
		f.metrics.On("RecordOperation", "login", auth.ResultFailure).Once()

		ok, err := f.svc.Login(ctx, "ghost@x.com", "pw1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown email verifies the hasher's own dummy digest", func(t *testing.T) {
		store := mocks.NewMockCredentialStore(t)
		hasher := &dummyDigestHasher{MockPasswordHasher: mocks.NewMockPasswordHasher(t)}
		svc, err := auth.NewServiceWithLogger(store, hasher, slog.New(slog.DiscardHandler))
		require.NoError(t, err)

		store.On("FindByEmail", ctx, "ghost@x.com").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", []byte("bcrypt-dummy"), "pw1").Return(false).Once()

		ok, err := svc.Login(ctx, "ghost@x.com", "pw1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upgrades outdated hash", func(t *testing.T) {
		f := newServiceFixture(t)
		legacy := &auth.Identity{ID: ulid.Make(), Email: "u@x.com", PasswordHash: []byte("old")}
		f.store.On("FindByEmail", ctx, "u@x.com").Return(legacy, nil)
		f.hasher.On("Verify", []byte("old"), "pw1").Return(true)
		f.hasher.On("NeedsUpgrade", []byte("old")).Return(true)
		f.hasher.On("Hash", "pw1").Return([]byte("new"), nil)
		f.store.On("Update", ctx, legacy.ID, auth.SetPasswordHash([]byte("new"))).Return(nil)
		f.metrics.On("RecordOperation", "login", auth.ResultSuccess).Once()

		ok, err := f.svc.Login(ctx, "u@x.com", "pw1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "u@x.com").Return(nil, errors.New("timeout"))
		f.metrics.On("RecordOperation", "login", auth.ResultError).Once()

		ok, err := f.svc.Login(ctx, "u@x.com", "pw1")
		require.Error(t, err)
		assert.False(t, ok)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})
}

func TestService_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email yields no token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "ghost@x.com").Return(nil, auth.ErrNotFound)
		f.metrics.On("RecordOperation", "create_session", auth.ResultFailure).Once()

		token, err := f.svc.CreateSession(ctx, "ghost@x.com")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("issues token", func(t *testing.T) {
		f := newServiceFixture(t)
		identity := &auth.Identity{ID: ulid.Make(), Email: "u@x.com"}
		f.store.On("FindByEmail", ctx, "u@x.com").Return(identity, nil)
		f.store.On("Update", ctx, identity.ID, mock.AnythingOfType("auth.Field")).Return(nil)
		f.metrics.On("RecordOperation", "create_session", auth.ResultSuccess).Once()

		token, err := f.svc.CreateSession(ctx, "u@x.com")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	})
}

func TestService_ResolveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("empty token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.metrics.On("RecordOperation", "resolve_session", auth.ResultFailure).Once()

		identity, err := f.svc.ResolveSession(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, identity)
	})

	t.Run("live token", func(t *testing.T) {
		f := newServiceFixture(t)
		token := uuid.NewString()
		identity := &auth.Identity{ID: ulid.Make()}
		f.store.On("FindBySessionToken", ctx, auth.HashToken(token)).Return(identity, nil)
		f.metrics.On("RecordOperation", "resolve_session", auth.ResultSuccess).Once()

		got, err := f.svc.ResolveSession(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, identity, got)
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	id := ulid.Make()
	f.store.On("Update", ctx, id, auth.ClearSessionToken()).Return(nil).Twice()
	f.metrics.On("RecordOperation", "logout", auth.ResultSuccess).Twice()

	require.NoError(t, f.svc.Logout(ctx, id))
	require.NoError(t, f.svc.Logout(ctx, id))
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("request for unknown email", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("FindByEmail", ctx, "ghost@x.com").Return(nil, auth.ErrNotFound)
		f.metrics.On("RecordOperation", "request_reset", auth.ResultFailure).Once()

		_, err := f.svc.RequestPasswordReset(ctx, "ghost@x.com")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("reset with invalid token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.metrics.On("RecordOperation", "reset_password", auth.ResultFailure).Once()

		err := f.svc.ResetPassword(ctx, "", "pw")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("reset with rejected password", func(t *testing.T) {
		f := newServiceFixture(t)
		token := uuid.NewString()
		digest := auth.HashToken(token)
		identity := &auth.Identity{ID: ulid.Make(), ResetTokenHash: &digest}
		f.store.On("FindByResetToken", ctx, digest).Return(identity, nil)
		f.hasher.On("Hash", "bad\xff").Return(nil, auth.ErrInvalidEncoding)
		f.store.On("UpdateIf", ctx, identity.ID, auth.SetResetToken(digest), auth.ClearResetToken()).Return(nil)
		f.metrics.On("RecordOperation", "reset_password", auth.ResultFailure).Once()

		err := f.svc.ResetPassword(ctx, token, "bad\xff")
		assert.ErrorIs(t, err, auth.ErrInvalidPassword)
		assert.NotErrorIs(t, err, auth.ErrInvalidToken)
	})
}

// dummyDigestHasher is a mock hasher that supplies its own dummy digest.
type dummyDigestHasher struct {
	*mocks.MockPasswordHasher
}

func (dummyDigestHasher) DummyDigest() []byte {
	return []byte("bcrypt-dummy")
}

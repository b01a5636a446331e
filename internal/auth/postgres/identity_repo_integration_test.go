// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/postgres"
)

func uniqueEmail(t *testing.T) string {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", ulid.Make().String())
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM identities WHERE email = $1`, email)
	})
	return email
}

func TestIdentityRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewIdentityRepository(testPool)
	email := uniqueEmail(t)

	created, err := repo.Insert(ctx, email, []byte("hash"))
	require.NoError(t, err)

	byEmail, err := repo.FindByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, []byte("hash"), byEmail.PasswordHash)
	assert.Nil(t, byEmail.SessionTokenHash)

	_, err = repo.Insert(ctx, email, []byte("other"))
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	require.NoError(t, repo.Update(ctx, created.ID, auth.SetSessionToken("s1"), auth.SetResetToken("r1")))
	bySession, err := repo.FindBySessionToken(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySession.ID)
	byReset, err := repo.FindByResetToken(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byReset.ID)

	err = repo.UpdateIf(ctx, created.ID, auth.SetResetToken("stale"), auth.ClearResetToken())
	assert.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, repo.UpdateIf(ctx, created.ID, auth.SetResetToken("r1"),
		auth.SetPasswordHash([]byte("new")), auth.ClearResetToken()))
	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), byID.PasswordHash)
	assert.Nil(t, byID.ResetTokenHash)
	require.NotNil(t, byID.SessionTokenHash)

	err = repo.Update(ctx, ulid.Make(), auth.ClearSessionToken())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestIdentityRepository_TokenConflict(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewIdentityRepository(testPool)

	a, err := repo.Insert(ctx, uniqueEmail(t), []byte("hash"))
	require.NoError(t, err)
	b, err := repo.Insert(ctx, uniqueEmail(t), []byte("hash"))
	require.NoError(t, err)

	digest := ulid.Make().String()
	require.NoError(t, repo.Update(ctx, a.ID, auth.SetSessionToken(digest)))
	err = repo.Update(ctx, b.ID, auth.SetSessionToken(digest))
	assert.ErrorIs(t, err, auth.ErrTokenConflict)
}

func TestIdentityRepository_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewIdentityRepository(testPool)
	email := uniqueEmail(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Insert(ctx, email, []byte("hash")); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestService_EndToEndOnPostgres(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewIdentityRepository(testPool)
	svc, err := auth.NewServiceWithLogger(repo, auth.NewBcryptHasher(bcrypt.MinCost), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	email := uniqueEmail(t)

	_, err = svc.Register(ctx, email, "pw1")
	require.NoError(t, err)
	token, err := svc.CreateSession(ctx, email)
	require.NoError(t, err)
	identity, err := svc.ResolveSession(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, identity)

	reset, err := svc.RequestPasswordReset(ctx, email)
	require.NoError(t, err)
	require.NoError(t, svc.ResetPassword(ctx, reset, "pw2"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, reset, "pw3"), auth.ErrInvalidToken)

	ok, err := svc.Login(ctx, email, "pw2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.Logout(ctx, identity.ID))
	identity, err = svc.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/pkg/errutil"
)

// Operation results reported to a MetricsRecorder.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	RecordOperation(operation, result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string) {}

// Service orchestrates registration, login, sessions and password resets.
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	sessions *SessionManager
	resets   *ResetTokenManager
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// NewService creates a new Service using the default logger.
func NewService(store CredentialStore, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(store, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with a custom logger.
func NewServiceWithLogger(store CredentialStore, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}

	sessions, err := NewSessionManager(store)
	if err != nil {
		return nil, err
	}
	resets, err := NewResetTokenManager(store, hasher)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:    store,
		hasher:   hasher,
		sessions: sessions,
		resets:   resets,
		logger:   logger,
		metrics:  noopRecorder{},
	}, nil
}

// WithMetrics attaches a recorder and returns the service.
func (s *Service) WithMetrics(m MetricsRecorder) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Register creates an identity for email. Returns ErrDuplicateEmail when
// the email is already registered, including when a concurrent
// registration wins the race.
func (s *Service) Register(ctx context.Context, email, password string) (*Identity, error) {
	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		s.metrics.RecordOperation("register", ResultFailure)
		return nil, duplicateEmail(email)
	case !errors.Is(err, ErrNotFound):
		s.metrics.RecordOperation("register", ResultError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "find by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.metrics.RecordOperation("register", passwordResult(err))
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	identity, err := s.store.Insert(ctx, email, hash)
	if errors.Is(err, ErrDuplicateEmail) {
		s.metrics.RecordOperation("register", ResultFailure)
		return nil, duplicateEmail(email)
	}
	if err != nil {
		s.metrics.RecordOperation("register", ResultError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert identity").
			Wrap(err)
	}

	s.metrics.RecordOperation("register", ResultSuccess)
	s.logger.InfoContext(ctx, "identity registered", "identity_id", identity.ID.String())
	return identity, nil
}

// Login reports whether password is correct for email. Unknown emails
// yield false. An error is returned only when the store fails.
func (s *Service) Login(ctx context.Context, email, password string) (bool, error) {
	identity, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Verify(dummyDigest(s.hasher), password)
		s.metrics.RecordOperation("login", ResultFailure)
		return false, nil
	}
	if err != nil {
		s.metrics.RecordOperation("login", ResultError)
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find by email").
			Wrap(err)
	}

	if !s.hasher.Verify(identity.PasswordHash, password) {
		s.metrics.RecordOperation("login", ResultFailure)
		return false, nil
	}

	if s.hasher.NeedsUpgrade(identity.PasswordHash) {
		s.upgradeHash(ctx, identity, password)
	}

	s.metrics.RecordOperation("login", ResultSuccess)
	return true, nil
}

func (s *Service) upgradeHash(ctx context.Context, identity *Identity, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.Update(ctx, identity.ID, SetPasswordHash(hash))
	}
	if err != nil {
		errutil.LogWarn(ctx, s.logger, "best-effort password hash upgrade failed", err,
			"identity_id", identity.ID.String(),
			"operation", "upgrade_hash")
		return
	}
	identity.PasswordHash = hash
}

// CreateSession issues a session token for the identity registered under
// email. Returns an empty token when the email is unknown.
func (s *Service) CreateSession(ctx context.Context, email string) (string, error) {
	identity, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.metrics.RecordOperation("create_session", ResultFailure)
		return "", nil
	}
	if err != nil {
		s.metrics.RecordOperation("create_session", ResultError)
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "find by email").
			Wrap(err)
	}

	token, err := s.sessions.CreateSession(ctx, identity)
	if err != nil {
		s.metrics.RecordOperation("create_session", ResultError)
		return "", err
	}
	s.metrics.RecordOperation("create_session", ResultSuccess)
	return token, nil
}

// ResolveSession returns the identity owning token, or nil when there is none.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Identity, error) {
	identity, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		s.metrics.RecordOperation("resolve_session", ResultError)
		return nil, err
	}
	if identity == nil {
		s.metrics.RecordOperation("resolve_session", ResultFailure)
		return nil, nil
	}
	s.metrics.RecordOperation("resolve_session", ResultSuccess)
	return identity, nil
}

// Logout destroys the identity's session. It is idempotent.
func (s *Service) Logout(ctx context.Context, id ulid.ULID) error {
	if err := s.sessions.Destroy(ctx, id); err != nil {
		s.metrics.RecordOperation("logout", ResultError)
		return err
	}
	s.metrics.RecordOperation("logout", ResultSuccess)
	return nil
}

// RequestPasswordReset issues a reset token for email.
// Returns ErrUserNotFound when the email is unknown.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := s.resets.Issue(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.metrics.RecordOperation("request_reset", ResultFailure)
		return "", err
	case err != nil:
		s.metrics.RecordOperation("request_reset", ResultError)
		return "", err
	}
	s.metrics.RecordOperation("request_reset", ResultSuccess)
	return token, nil
}

// ResetPassword redeems a reset token and sets a new password.
// Returns ErrInvalidToken when the token is not live.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	err := s.resets.Consume(ctx, token, newPassword)
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidPassword):
		s.metrics.RecordOperation("reset_password", ResultFailure)
		return err
	case err != nil:
		s.metrics.RecordOperation("reset_password", ResultError)
		return err
	}
	s.metrics.RecordOperation("reset_password", ResultSuccess)
	return nil
}

// passwordResult classifies a hashing error: a rejected password is the
// caller's failure, anything else is an error.
func passwordResult(err error) string {
	if errors.Is(err, ErrInvalidPassword) {
		return ResultFailure
	}
	return ResultError
}

func duplicateEmail(email string) error {
	return oops.Code("AUTH_DUPLICATE_EMAIL").
		With("email", email).
		Wrap(ErrDuplicateEmail)
}

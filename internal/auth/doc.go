// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential and session authentication primitives.
//
// # Identities
//
// An Identity is a registered email with a password digest and at most one
// live session token and one pending reset token. Identities live in a
// CredentialStore; the postgres and redisstore subpackages provide
// implementations. Tokens are never stored in plaintext: stores hold the
// SHA-256 digest of the token handed to the client.
//
// # Components
//
//   - PasswordHasher - salted one-way hashing with constant-time verification
//   - SessionManager - issues, resolves and destroys session tokens
//   - ResetTokenManager - issues and consumes single-use reset tokens
//   - Service - register, login, sessions and the password reset flow
//   - BasicExtractor - decodes Authorization: Basic headers
//
// Services are created with New* constructors that validate dependencies.
//
// Lookup operations report absence as a nil result rather than an error.
// Errors are reserved for the taxonomy sentinels (ErrDuplicateEmail,
// ErrUserNotFound, ErrInvalidToken) and for infrastructure failures.
package auth

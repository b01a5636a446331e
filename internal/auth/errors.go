// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned by a CredentialStore when no identity matches.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrUserNotFound is returned when a reset is requested for an unknown email.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidToken is returned when a reset token matches no live reset.
var ErrInvalidToken = errors.New("invalid reset token")

// ErrTokenConflict is returned by a CredentialStore when a token digest
// is already held by a different identity.
var ErrTokenConflict = errors.New("token already in use")

// ErrInvalidPassword is returned when a password cannot be hashed because
// the hasher rejects its content. It is a caller error, not a store failure.
var ErrInvalidPassword = errors.New("invalid password")

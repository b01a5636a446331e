// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// GenerateToken creates a random version 4 UUID token and its digest.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is handed to the client; the digest is stored.
func GenerateToken() (token, digest string, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "uuid.NewRandom").
			Wrap(err)
	}
	token = id.String()
	return token, HashToken(token), nil
}

// HashToken computes the hex-encoded SHA-256 digest of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored digest in
// constant time.
func VerifyToken(token, digest string) bool {
	if token == "" || digest == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// wellFormedToken reports whether token parses as a UUID. Malformed tokens
// are rejected before touching the store.
func wellFormedToken(token string) bool {
	if token == "" {
		return false
	}
	_, err := uuid.Parse(token)
	return err == nil
}

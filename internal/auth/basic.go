// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

const basicPrefix = "Basic "

// BasicExtractor decodes HTTP Basic credentials and resolves them to an
// identity. It holds no per-request state.
type BasicExtractor struct {
	store  CredentialStore
	hasher PasswordHasher
}

// NewBasicExtractor creates a new BasicExtractor.
func NewBasicExtractor(store CredentialStore, hasher PasswordHasher) (*BasicExtractor, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &BasicExtractor{store: store, hasher: hasher}, nil
}

// ExtractBase64 returns the encoded part of an Authorization header value.
// The header must start with exactly "Basic "; the remainder is trimmed.
func (e *BasicExtractor) ExtractBase64(header string) (string, bool) {
	if !strings.HasPrefix(header, basicPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(basicPrefix):]), true
}

// Decode base64-decodes token into UTF-8 text.
func (e *BasicExtractor) Decode(token string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// SplitCredentials splits decoded text at the first colon. Passwords may
// contain colons; emails may not.
func (e *BasicExtractor) SplitCredentials(text string) (email, password string, ok bool) {
	email, password, ok = strings.Cut(text, ":")
	if !ok {
		return "", "", false
	}
	return email, password, true
}

// ResolveIdentity returns the identity whose password matches, or nil.
func (e *BasicExtractor) ResolveIdentity(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		e.hasher.Verify(dummyDigest(e.hasher), password)
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("BASIC_RESOLVE_FAILED").
			With("operation", "find by email").
			Wrap(err)
	}
	if !e.hasher.Verify(identity.PasswordHash, password) {
		return nil, nil
	}
	return identity, nil
}

// CurrentIdentity runs the full pipeline over an Authorization header value.
// Any malformed step yields a nil identity.
func (e *BasicExtractor) CurrentIdentity(ctx context.Context, header string) (*Identity, error) {
	encoded, ok := e.ExtractBase64(header)
	if !ok {
		return nil, nil
	}
	text, ok := e.Decode(encoded)
	if !ok {
		return nil, nil
	}
	email, password, ok := e.SplitCredentials(text)
	if !ok {
		return nil, nil
	}
	return e.ResolveIdentity(ctx, email, password)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

const argon2Prefix = "$argon2id$"

// ErrInvalidEncoding is returned when a password is not valid UTF-8.
var ErrInvalidEncoding = fmt.Errorf("%w: not valid UTF-8", ErrInvalidPassword)

// ErrPasswordTooLong is returned by BcryptHasher for passwords over 72 bytes.
var ErrPasswordTooLong = fmt.Errorf("%w: longer than 72 bytes", ErrInvalidPassword)

// dummyPassword is hashed into per-hasher dummy digests. Verifying against
// such a digest only equalises timing; callers never treat it as a match.
const dummyPassword = "authcore-dummy-password"

// dummyArgon2idHash is verified when an email is unknown so that login
// takes the same time whether or not the identity exists.
//
//nolint:gosec // G101: intentionally fake hash, never matches any password.
const dummyArgon2idHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// DummyDigester is implemented by hashers that can supply a digest with
// their own cost parameters, verified in place of a missing identity's.
type DummyDigester interface {
	DummyDigest() []byte
}

// dummyDigest returns the digest to verify when no identity exists.
// Hashers without their own dummy fall back to the argon2id one.
func dummyDigest(h PasswordHasher) []byte {
	if d, ok := h.(DummyDigester); ok {
		if digest := d.DummyDigest(); len(digest) > 0 {
			return digest
		}
	}
	return []byte(dummyArgon2idHash)
}

func invalidEncoding() error {
	return oops.Code("AUTH_INVALID_ENCODING").Wrap(ErrInvalidEncoding)
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password. A fresh salt is drawn
	// on every call.
	Hash(password string) ([]byte, error)

	// Verify reports whether password matches digest. A malformed digest
	// never matches.
	Verify(digest []byte, password string) bool

	// NeedsUpgrade reports whether digest should be replaced with one
	// produced by this hasher.
	NeedsUpgrade(digest []byte) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It also verifies bcrypt digests so they can be upgraded on login.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id digest in PHC string format.
func (h *Argon2idHasher) Hash(password string) ([]byte, error) {
	if !utf8.ValidString(password) {
		return nil, invalidEncoding()
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return []byte(encoded), nil
}

// Verify checks the password against an argon2id or bcrypt digest.
func (h *Argon2idHasher) Verify(digest []byte, password string) bool {
	return verifyDigest(digest, password)
}

// DummyDigest returns an argon2id digest with the current parameters.
func (h *Argon2idHasher) DummyDigest() []byte {
	return []byte(dummyArgon2idHash)
}

// NeedsUpgrade returns true when digest is not argon2id with the current parameters.
func (h *Argon2idHasher) NeedsUpgrade(digest []byte) bool {
	p, err := parseArgon2id(string(digest))
	if err != nil {
		return true
	}
	return p.memory != argon2Memory || p.time != argon2Time ||
		p.threads != argon2Threads || len(p.key) != argon2KeyLen
}

// BcryptHasher implements PasswordHasher using bcrypt.
// bcrypt rejects passwords longer than 72 bytes.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewBcryptHasher creates a BcryptHasher. A cost outside bcrypt's range
// falls back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a bcrypt digest.
func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	if !utf8.ValidString(password) {
		return nil, invalidEncoding()
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, oops.Code("AUTH_PASSWORD_TOO_LONG").
			With("algorithm", "bcrypt").
			Wrap(ErrPasswordTooLong)
	}
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("algorithm", "bcrypt").
			Wrap(err)
	}
	return digest, nil
}

// Verify checks the password against a bcrypt or argon2id digest.
func (h *BcryptHasher) Verify(digest []byte, password string) bool {
	return verifyDigest(digest, password)
}

// DummyDigest returns a bcrypt digest at the configured cost, computed on
// first use. It is nil if bcrypt fails.
func (h *BcryptHasher) DummyDigest() []byte {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte(dummyPassword), h.cost)
	})
	return h.dummy
}

// NeedsUpgrade returns true when digest is not bcrypt at the configured cost.
func (h *BcryptHasher) NeedsUpgrade(digest []byte) bool {
	cost, err := bcrypt.Cost(digest)
	if err != nil {
		return true
	}
	return cost != h.cost
}

// NewHasher returns the hasher for a configured algorithm name.
func NewHasher(algorithm string, bcryptCost int) (PasswordHasher, error) {
	switch algorithm {
	case "", "argon2id":
		return NewArgon2idHasher(), nil
	case "bcrypt":
		return NewBcryptHasher(bcryptCost), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASHER").
			With("algorithm", algorithm).
			Errorf("unknown password hash algorithm")
	}
}

func verifyDigest(digest []byte, password string) bool {
	switch {
	case bytes.HasPrefix(digest, []byte(argon2Prefix)):
		return verifyArgon2id(string(digest), password)
	case bytes.HasPrefix(digest, []byte("$2")):
		return bcrypt.CompareHashAndPassword(digest, []byte(password)) == nil
	default:
		return false
	}
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2id(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid threads value %d", threads)
	}
	if time == 0 || memory == 0 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid cost parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return &argon2Params{
		memory:  memory,
		time:    time,
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, nil
}

func verifyArgon2id(encoded, password string) bool {
	p, err := parseArgon2id(encoded)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1
}

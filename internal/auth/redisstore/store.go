// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redisstore implements auth.CredentialStore on Redis.
//
// Each identity is a hash keyed by ID. Email, session digest and reset
// digest are secondary string keys pointing at the ID. Registration
// claims the email key with SETNX inside a script; updates run under
// WATCH so token swaps and guarded updates are atomic.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "authcore:"

const maxWatchRetries = 8

const (
	fieldID        = "id"
	fieldEmail     = "email"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// insertScript claims the email index and writes the identity hash in one step.
// KEYS[1] email index, KEYS[2] identity hash.
// ARGV: id, email, password hash, timestamp.
var insertScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], 'id', ARGV[1], 'email', ARGV[2], 'password_hash', ARGV[3],
  'created_at', ARGV[4], 'updated_at', ARGV[4])
return 1
`)

// Store implements auth.CredentialStore using Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Store. An empty prefix selects DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) identityKey(id string) string { return s.prefix + "identity:" + id }
func (s *Store) emailKey(email string) string { return s.prefix + "email:" + email }

func (s *Store) tokenKey(column auth.Column, digest string) string {
	if column == auth.ColumnSessionToken {
		return s.prefix + "session:" + digest
	}
	return s.prefix + "reset:" + digest
}

// FindByEmail retrieves an identity by exact email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	return s.findByIndex(ctx, s.emailKey(email), "email", func(i *auth.Identity) bool {
		return i.Email == email
	})
}

// FindByID retrieves an identity by ID.
func (s *Store) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	identity, err := s.load(ctx, s.client, s.identityKey(id.String()))
	if err != nil {
		return nil, s.lookupError(err, "id")
	}
	return identity, nil
}

// FindBySessionToken retrieves the identity holding a session digest.
func (s *Store) FindBySessionToken(ctx context.Context, digest string) (*auth.Identity, error) {
	return s.findByIndex(ctx, s.tokenKey(auth.ColumnSessionToken, digest), "session_token_hash",
		func(i *auth.Identity) bool { return auth.SetSessionToken(digest).Matches(i) })
}

// FindByResetToken retrieves the identity holding a reset digest.
func (s *Store) FindByResetToken(ctx context.Context, digest string) (*auth.Identity, error) {
	return s.findByIndex(ctx, s.tokenKey(auth.ColumnResetToken, digest), "reset_token_hash",
		func(i *auth.Identity) bool { return auth.SetResetToken(digest).Matches(i) })
}

// findByIndex follows a secondary key to the identity hash. An index
// entry that no longer agrees with the hash is treated as absent.
func (s *Store) findByIndex(ctx context.Context, indexKey, by string, valid func(*auth.Identity) bool) (*auth.Identity, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, s.lookupError(auth.ErrNotFound, by)
	}
	if err != nil {
		return nil, s.lookupError(err, by)
	}

	identity, err := s.load(ctx, s.client, s.identityKey(id))
	if err != nil {
		return nil, s.lookupError(err, by)
	}
	if !valid(identity) {
		return nil, s.lookupError(auth.ErrNotFound, by)
	}
	return identity, nil
}

func (s *Store) lookupError(err error, by string) error {
	if errors.Is(err, auth.ErrNotFound) {
		return oops.Code("IDENTITY_NOT_FOUND").With("by", by).Wrap(auth.ErrNotFound)
	}
	return oops.Code("IDENTITY_GET_FAILED").
		With("operation", "get identity by "+by).
		Wrap(err)
}

// Insert creates an identity, claiming the email atomically.
func (s *Store) Insert(ctx context.Context, email string, passwordHash []byte) (*auth.Identity, error) {
	if err := auth.SetPasswordHash(passwordHash).Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	identity := &auth.Identity{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := insertScript.Run(ctx, s.client,
		[]string{s.emailKey(email), s.identityKey(identity.ID.String())},
		identity.ID.String(), email, passwordHash, now.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return nil, oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			Wrap(err)
	}
	if created == 0 {
		return nil, oops.Code("IDENTITY_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
	}
	return identity, nil
}

// Update applies a partial update to an identity.
func (s *Store) Update(ctx context.Context, id ulid.ULID, fields ...auth.Field) error {
	return s.update(ctx, id, nil, fields)
}

// UpdateIf applies a partial update while the identity still holds guard.
func (s *Store) UpdateIf(ctx context.Context, id ulid.ULID, guard auth.Field, fields ...auth.Field) error {
	if guard.Token() == nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("column", string(guard.Column)).
			Errorf("guard must carry a token digest")
	}
	return s.update(ctx, id, &guard, fields)
}

func (s *Store) update(ctx context.Context, id ulid.ULID, guard *auth.Field, fields []auth.Field) error {
	if err := auth.ValidateFields(fields); err != nil {
		return err
	}

	key := s.identityKey(id.String())
	watched := []string{key}
	for _, f := range fields {
		if tok := f.Token(); tok != nil {
			watched = append(watched, s.tokenKey(f.Column, *tok))
		}
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			return s.applyTx(ctx, tx, key, id, guard, fields)
		}, watched...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		switch {
		case err == nil:
			return nil
		case errors.Is(err, auth.ErrNotFound):
			return oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
		case errors.Is(err, auth.ErrTokenConflict):
			return oops.Code("IDENTITY_TOKEN_CONFLICT").With("id", id.String()).Wrap(auth.ErrTokenConflict)
		default:
			return oops.Code("IDENTITY_UPDATE_FAILED").
				With("operation", "update identity").
				With("id", id.String()).
				Wrap(err)
		}
	}

	return oops.Code("IDENTITY_UPDATE_FAILED").
		With("id", id.String()).
		With("retries", maxWatchRetries).
		Errorf("concurrent modification retries exhausted")
}

func (s *Store) applyTx(ctx context.Context, tx *redis.Tx, key string, id ulid.ULID, guard *auth.Field, fields []auth.Field) error {
	current, err := s.load(ctx, tx, key)
	if err != nil {
		return err
	}
	if guard != nil && !guard.Matches(current) {
		return auth.ErrNotFound
	}

	for _, f := range fields {
		tok := f.Token()
		if tok == nil {
			continue
		}
		owner, err := tx.Get(ctx, s.tokenKey(f.Column, *tok)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != id.String() {
			return auth.ErrTokenConflict
		}
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range fields {
			switch f.Column {
			case auth.ColumnPasswordHash:
				pipe.HSet(ctx, key, string(f.Column), f.Hash())
			case auth.ColumnSessionToken, auth.ColumnResetToken:
				var previous *string
				if f.Column == auth.ColumnSessionToken {
					previous = current.SessionTokenHash
				} else {
					previous = current.ResetTokenHash
				}
				if previous != nil {
					pipe.Del(ctx, s.tokenKey(f.Column, *previous))
				}
				if tok := f.Token(); tok != nil {
					pipe.Set(ctx, s.tokenKey(f.Column, *tok), id.String(), 0)
					pipe.HSet(ctx, key, string(f.Column), *tok)
				} else {
					pipe.HDel(ctx, key, string(f.Column))
				}
			}
		}
		pipe.HSet(ctx, key, fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano))
		return nil
	})
	return err
}

// load reads and decodes an identity hash.
func (s *Store) load(ctx context.Context, c redis.Cmdable, key string) (*auth.Identity, error) {
	values, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, auth.ErrNotFound
	}
	return decodeIdentity(values)
}

func decodeIdentity(values map[string]string) (*auth.Identity, error) {
	id, err := ulid.Parse(values[fieldID])
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").With("id", values[fieldID]).Wrap(err)
	}
	identity := &auth.Identity{
		ID:           id,
		Email:        values[fieldEmail],
		PasswordHash: []byte(values[string(auth.ColumnPasswordHash)]),
	}
	if v, ok := values[string(auth.ColumnSessionToken)]; ok {
		identity.SessionTokenHash = &v
	}
	if v, ok := values[string(auth.ColumnResetToken)]; ok {
		identity.ResetTokenHash = &v
	}
	if identity.CreatedAt, err = time.Parse(time.RFC3339Nano, values[fieldCreatedAt]); err != nil {
		return nil, oops.Code("IDENTITY_INVALID_TIMESTAMP").With("field", fieldCreatedAt).Wrap(err)
	}
	if identity.UpdatedAt, err = time.Parse(time.RFC3339Nano, values[fieldUpdatedAt]); err != nil {
		return nil, oops.Code("IDENTITY_INVALID_TIMESTAMP").With("field", fieldUpdatedAt).Wrap(err)
	}
	return identity, nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package redisstore implements auth.SessionRepository on Redis, so sessions
// are shared across server instances.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/youchat/youchat/internal/auth"
)

// DefaultPrefix namespaces every key written by the repository.
const DefaultPrefix = "youchat"

const maxTxRetries = 5

// Per-user lock timing. The lock expires on its own if its holder dies.
const (
	lockTTL          = 5 * time.Second
	lockPollInterval = 5 * time.Millisecond
)

var errLockHeld = errors.New("user session lock held")

// releaseLock deletes the lock only while it still belongs to the caller.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options configures a SessionRepository.
type Options struct {
	// Prefix namespaces keys. Empty means DefaultPrefix.
	Prefix string
	// TTL is applied to each session key and refreshed on Touch. Zero keeps
	// keys until they are deleted.
	TTL time.Duration
	// Logger receives best-effort cleanup failures. Nil means slog.Default().
	Logger *slog.Logger
}

// SessionRepository stores sessions as JSON blobs keyed by token hash, with
// a per-user set and a last-access sorted set as indexes.
type SessionRepository struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionRepository creates a SessionRepository over rdb.
func NewSessionRepository(rdb redis.UniversalClient, opts Options) *SessionRepository {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SessionRepository{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL, logger: opts.Logger}
}

type sessionRecord struct {
	ID           string    `json:"id"`
	TokenHash    string    `json:"tokenHash"`
	UserID       int64     `json:"userId"`
	Username     string    `json:"username"`
	Authorities  []string  `json:"authorities"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessAt time.Time `json:"lastAccessAt"`
}

func (r *SessionRepository) sessionKey(tokenHash string) string {
	return r.prefix + ":session:" + tokenHash
}

func (r *SessionRepository) userKey(userID int64) string {
	return r.prefix + ":user:" + strconv.FormatInt(userID, 10) + ":sessions"
}

func (r *SessionRepository) lockKey(userID int64) string {
	return r.prefix + ":user:" + strconv.FormatInt(userID, 10) + ":lock"
}

func (r *SessionRepository) idleKey() string {
	return r.prefix + ":sessions:last-access"
}

// Put stores a new session.
func (r *SessionRepository) Put(ctx context.Context, session *auth.Session) error {
	blob, err := encodeSession(session)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.TokenHash), blob, r.ttl)
		pipe.SAdd(ctx, r.userKey(session.UserID), session.TokenHash)
		pipe.ZAdd(ctx, r.idleKey(), accessMember(session.TokenHash, session.LastAccessAt))
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("session_id", session.ID.String()).
			With("user_id", session.UserID).
			Wrap(err)
	}
	return nil
}

// Get retrieves a session by token hash.
func (r *SessionRepository) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	blob, err := r.rdb.Get(ctx, r.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	return decodeSession(blob)
}

// Touch updates the last access time of a session.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	key := r.sessionKey(tokenHash)

	touch := func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return err
		}
		session, err := decodeSession(blob)
		if err != nil {
			return err
		}
		session.LastAccessAt = at
		updated, err := encodeSession(session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, r.ttl)
			pipe.ZAdd(ctx, r.idleKey(), accessMember(tokenHash, at))
			return nil
		})
		return err
	}

	if err := r.watch(ctx, touch, key); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return err
		}
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "touch session").
			Wrap(err)
	}
	return nil
}

// Delete removes a session and reports whether it existed.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) (bool, error) {
	deleted, err := r.deleteIf(ctx, tokenHash, nil)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return deleted, nil
}

// ListByUser returns the user's sessions, oldest first. Index entries whose
// session key has expired are pruned.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64) ([]*auth.Session, error) {
	userKey := r.userKey(userID)

	hashes, err := r.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list session index").
			With("user_id", userID).
			Wrap(err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(hashes))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.Get(ctx, r.sessionKey(h))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "load sessions").
			With("user_id", userID).
			Wrap(err)
	}

	sessions := make([]*auth.Session, 0, len(hashes))
	var stale []any
	for i, cmd := range cmds {
		blob, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, hashes[i])
			continue
		}
		if err != nil {
			return nil, oops.Code("SESSION_LIST_FAILED").
				With("operation", "load session").
				With("user_id", userID).
				Wrap(err)
		}
		session, err := decodeSession(blob)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if len(stale) > 0 {
		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, userKey, stale...)
			pipe.ZRem(ctx, r.idleKey(), stale...)
			return nil
		})
		if err != nil {
			r.logger.DebugContext(ctx, "failed to prune stale session index entries",
				"user_id", userID,
				"stale", len(stale),
				"error", err)
		}
	}

	slices.SortFunc(sessions, func(a, b *auth.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return sessions, nil
}

// DeleteByUser removes all sessions of a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	userKey := r.userKey(userID)

	hashes, err := r.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "list session index").
			With("user_id", userID).
			Wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	members := make([]any, len(hashes))
	dels := make([]*redis.IntCmd, len(hashes))
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			members[i] = h
			dels[i] = pipe.Del(ctx, r.sessionKey(h))
		}
		pipe.ZRem(ctx, r.idleKey(), members...)
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions").
			With("user_id", userID).
			Wrap(err)
	}

	var n int64
	for _, cmd := range dels {
		n += cmd.Val()
	}
	return n, nil
}

// DeleteIdle removes sessions last accessed before the cutoff.
func (r *SessionRepository) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	hashes, err := r.rdb.ZRangeByScore(ctx, r.idleKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_IDLE_FAILED").
			With("operation", "scan last-access index").
			Wrap(err)
	}

	idle := func(s *auth.Session) bool { return s.LastAccessAt.Before(before) }

	var n int64
	for _, h := range hashes {
		deleted, err := r.deleteIf(ctx, h, idle)
		if err != nil {
			return n, oops.Code("SESSION_DELETE_IDLE_FAILED").
				With("operation", "delete idle session").
				Wrap(err)
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

// LockUser takes the user's session lock shared by every instance using this
// Redis. It polls until the lock is free, ctx ends, or one lock TTL passes.
func (r *SessionRepository) LockUser(ctx context.Context, userID int64) (func(), error) {
	key := r.lockKey(userID)
	owner := ulid.Make().String()

	backoff := retry.WithMaxDuration(lockTTL, retry.NewConstant(lockPollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := r.rdb.SetNX(ctx, key, owner, lockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("SESSION_LOCK_FAILED").
			With("operation", "lock user sessions").
			With("user_id", userID).
			Wrap(err)
	}

	return func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), r.rdb, []string{key}, owner).Err(); err != nil {
			r.logger.DebugContext(ctx, "failed to release user session lock",
				"user_id", userID,
				"error", err)
		}
	}, nil
}

// Ping checks connectivity.
func (r *SessionRepository) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// deleteIf removes the session and its index entries when keep is nil or
// returns true for the stored session. Index entries of an absent session
// are always pruned.
func (r *SessionRepository) deleteIf(ctx context.Context, tokenHash string, keep func(*auth.Session) bool) (bool, error) {
	key := r.sessionKey(tokenHash)
	var deleted bool

	del := func(tx *redis.Tx) error {
		deleted = false
		blob, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return tx.ZRem(ctx, r.idleKey(), tokenHash).Err()
		}
		if err != nil {
			return err
		}
		session, err := decodeSession(blob)
		if err != nil {
			return err
		}
		if keep != nil && !keep(session) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, r.userKey(session.UserID), tokenHash)
			pipe.ZRem(ctx, r.idleKey(), tokenHash)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	return deleted, r.watch(ctx, del, key)
}

// watch runs fn in an optimistic transaction on keys, retrying when a
// watched key changes.
func (r *SessionRepository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for range maxTxRetries {
		err = r.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func accessMember(tokenHash string, at time.Time) redis.Z {
	return redis.Z{Score: float64(at.UnixMilli()), Member: tokenHash}
}

func encodeSession(s *auth.Session) ([]byte, error) {
	blob, err := json.Marshal(sessionRecord{
		ID:           s.ID.String(),
		TokenHash:    s.TokenHash,
		UserID:       s.UserID,
		Username:     s.Username,
		Authorities:  s.Authorities,
		CreatedAt:    s.CreatedAt,
		LastAccessAt: s.LastAccessAt,
	})
	if err != nil {
		return nil, oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}
	return blob, nil
}

func decodeSession(blob []byte) (*auth.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, oops.Code("SESSION_CORRUPT").
			With("operation", "decode session").
			Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", rec.ID).
			Wrap(err)
	}
	return &auth.Session{
		ID:           id,
		TokenHash:    rec.TokenHash,
		UserID:       rec.UserID,
		Username:     rec.Username,
		Authorities:  rec.Authorities,
		CreatedAt:    rec.CreatedAt,
		LastAccessAt: rec.LastAccessAt,
	}, nil
}

// Compile-time interface checks.
var (
	_ auth.SessionRepository = (*SessionRepository)(nil)
	_ auth.UserLocker        = (*SessionRepository)(nil)
)

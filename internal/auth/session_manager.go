// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/youchat/youchat/pkg/errutil"
)

// ConcurrencyPolicy decides what happens when a user at the session cap logs
// in again.
type ConcurrencyPolicy string

// Supported concurrency policies.
const (
	// PolicyEvictOldest invalidates the oldest sessions to make room.
	PolicyEvictOldest ConcurrencyPolicy = "evict-oldest"
	// PolicyReject fails the new login with KindSessionLimitExceeded.
	PolicyReject ConcurrencyPolicy = "reject"
)

// ParseConcurrencyPolicy validates a policy name.
func ParseConcurrencyPolicy(s string) (ConcurrencyPolicy, error) {
	switch p := ConcurrencyPolicy(s); p {
	case PolicyEvictOldest, PolicyReject:
		return p, nil
	default:
		return "", oops.Code("SESSION_INVALID_POLICY").
			With("policy", s).
			Errorf("unknown session concurrency policy %q", s)
	}
}

// SessionOptions configures a SessionManager.
type SessionOptions struct {
	// MaxSessions is the number of concurrent sessions per user.
	MaxSessions int
	// Policy applies when MaxSessions is reached.
	Policy ConcurrencyPolicy
	// IdleTimeout expires sessions not accessed for this long.
	// Zero disables idle expiry.
	IdleTimeout time.Duration
	// Clock overrides time.Now. Optional.
	Clock func() time.Time
}

// DefaultSessionOptions returns one session per user, evict-oldest, and a
// 30 minute idle timeout.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		MaxSessions: 1,
		Policy:      PolicyEvictOldest,
		IdleTimeout: 30 * time.Minute,
	}
}

// SessionManager owns the lifecycle of server-side sessions.
type SessionManager struct {
	repo   SessionRepository
	opts   SessionOptions
	logger *slog.Logger
	locks  *keyedMutex
}

// NewSessionManager creates a SessionManager over repo.
func NewSessionManager(repo SessionRepository, opts SessionOptions, logger *slog.Logger) (*SessionManager, error) {
	if repo == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if opts.MaxSessions < 1 {
		return nil, oops.Code("SESSION_INVALID_OPTIONS").
			With("max_sessions", opts.MaxSessions).
			Errorf("max sessions must be at least 1")
	}
	if _, err := ParseConcurrencyPolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	if opts.IdleTimeout < 0 {
		return nil, oops.Code("SESSION_INVALID_OPTIONS").
			With("idle_timeout", opts.IdleTimeout).
			Errorf("idle timeout cannot be negative")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &SessionManager{
		repo:   repo,
		opts:   opts,
		logger: logger,
		locks:  newKeyedMutex(),
	}, nil
}

// Create issues a new session for identity and returns its token. A non-empty
// priorToken is discarded first, so the returned token is always fresh.
func (m *SessionManager) Create(ctx context.Context, identity Identity, priorToken string) (string, error) {
	if err := m.Migrate(ctx, priorToken); err != nil {
		return "", err
	}

	token, hash, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}
	now := m.opts.Clock()
	session, err := NewSession(identity, hash, now)
	if err != nil {
		return "", err
	}

	unlock, err := m.lockUser(ctx, identity.UserID())
	if err != nil {
		return "", err
	}
	defer unlock()

	existing, err := m.repo.ListByUser(ctx, identity.UserID())
	if err != nil {
		return "", errStoreUnavailable("list sessions", err)
	}

	live := make([]*Session, 0, len(existing))
	var idle int64
	for _, s := range existing {
		if s.IsIdleAt(now, m.opts.IdleTimeout) {
			deleted, err := m.repo.Delete(ctx, s.TokenHash)
			if err != nil {
				return "", errStoreUnavailable("delete idle session", err)
			}
			if deleted {
				idle++
			}
			continue
		}
		live = append(live, s)
	}
	recordInvalidated(ReasonIdle, idle)

	if excess := len(live) - m.opts.MaxSessions + 1; excess > 0 {
		if m.opts.Policy == PolicyReject {
			return "", withKind(KindSessionLimitExceeded, oops.Code(CodeSessionLimitExceeded).
				With("user_id", identity.UserID()).
				With("max_sessions", m.opts.MaxSessions).
				Errorf("maximum sessions (%d) reached", m.opts.MaxSessions))
		}
		var evicted int64
		for _, s := range live[:excess] {
			deleted, err := m.repo.Delete(ctx, s.TokenHash)
			if err != nil {
				return "", errStoreUnavailable("evict session", err)
			}
			if !deleted {
				continue
			}
			evicted++
			m.logger.InfoContext(ctx, "session evicted",
				"session_id", s.ID.String(),
				"user_id", s.UserID)
		}
		recordInvalidated(ReasonEvicted, evicted)
	}

	if err := m.repo.Put(ctx, session); err != nil {
		return "", errStoreUnavailable("store session", err)
	}
	SessionsCreated.Inc()
	m.logger.InfoContext(ctx, "session created",
		"session_id", session.ID.String(),
		"user_id", session.UserID)

	return token, nil
}

// Migrate discards the session held by priorToken, if any. Logging in
// always yields a new token.
func (m *SessionManager) Migrate(ctx context.Context, priorToken string) error {
	if priorToken == "" {
		return nil
	}
	deleted, err := m.repo.Delete(ctx, HashSessionToken(priorToken))
	if err != nil {
		return errStoreUnavailable("migrate session", err)
	}
	if deleted {
		recordInvalidated(ReasonMigrated, 1)
	}
	return nil
}

// Restore returns the identity bound to token and marks the session as
// accessed. Unknown and idle sessions fail with KindSessionExpiredOrMissing.
func (m *SessionManager) Restore(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errSessionExpiredOrMissing()
	}
	hash := HashSessionToken(token)

	session, err := m.repo.Get(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, errSessionExpiredOrMissing()
	}
	if err != nil {
		return Identity{}, errStoreUnavailable("get session", err)
	}

	now := m.opts.Clock()
	if session.IsIdleAt(now, m.opts.IdleTimeout) {
		deleted, err := m.repo.Delete(ctx, hash)
		switch {
		case err != nil:
			errutil.LogErrorContext(ctx, m.logger, "failed to delete idle session", err,
				"session_id", session.ID.String())
		case deleted:
			recordInvalidated(ReasonIdle, 1)
		}
		return Identity{}, errSessionExpiredOrMissing()
	}

	if err := m.repo.Touch(ctx, hash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Invalidated between Get and Touch.
			return Identity{}, errSessionExpiredOrMissing()
		}
		return Identity{}, errStoreUnavailable("touch session", err)
	}

	return session.Identity(), nil
}

// Invalidate removes the session held by token. Unknown tokens are ignored.
func (m *SessionManager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	deleted, err := m.repo.Delete(ctx, HashSessionToken(token))
	if err != nil {
		return errStoreUnavailable("delete session", err)
	}
	if deleted {
		recordInvalidated(ReasonLogout, 1)
	}
	return nil
}

// InvalidateAll removes every session of the user and returns the count.
func (m *SessionManager) InvalidateAll(ctx context.Context, userID int64) (int64, error) {
	unlock, err := m.lockUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := m.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, errStoreUnavailable("delete user sessions", err)
	}
	recordInvalidated(ReasonAccount, n)
	return n, nil
}

// Sweep deletes idle sessions and returns the count.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	if m.opts.IdleTimeout <= 0 {
		return 0, nil
	}
	n, err := m.repo.DeleteIdle(ctx, m.opts.Clock().Add(-m.opts.IdleTimeout))
	if err != nil {
		return 0, errStoreUnavailable("sweep sessions", err)
	}
	recordInvalidated(ReasonIdle, n)
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogErrorContext(ctx, m.logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				m.logger.DebugContext(ctx, "idle sessions swept", "count", n)
			}
		}
	}
}

// lockUser serialises session changes for userID within this process and,
// when the repository is shared, across instances.
func (m *SessionManager) lockUser(ctx context.Context, userID int64) (func(), error) {
	unlock := m.locks.Lock(userID)

	locker, ok := m.repo.(UserLocker)
	if !ok {
		return unlock, nil
	}
	release, err := locker.LockUser(ctx, userID)
	if err != nil {
		unlock()
		return nil, errStoreUnavailable("lock user sessions", err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

// keyedMutex serialises work per user id. Entries are dropped once no
// goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

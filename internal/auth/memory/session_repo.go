// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package memory

import (
	"context"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/youchat/youchat/internal/auth"
)

const defaultShards = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*auth.Session // keyed by token hash
}

// SessionRepository is a sharded in-memory auth.SessionRepository.
// Operations on tokens in different shards do not contend.
type SessionRepository struct {
	shards []*shard

	// byUser indexes token hashes per user. Lock order is shard, then idxMu.
	idxMu  sync.Mutex
	byUser map[int64]map[string]struct{}
}

// NewSessionRepository creates an empty repository.
func NewSessionRepository() *SessionRepository {
	shards := make([]*shard, defaultShards)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*auth.Session)}
	}
	return &SessionRepository{
		shards: shards,
		byUser: make(map[int64]map[string]struct{}),
	}
}

func (r *SessionRepository) shardFor(tokenHash string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tokenHash))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Put stores a copy of session.
func (r *SessionRepository) Put(_ context.Context, session *auth.Session) error {
	s := r.shardFor(session.TokenHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.TokenHash] = session.Clone()

	r.idxMu.Lock()
	set, ok := r.byUser[session.UserID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[session.UserID] = set
	}
	set[session.TokenHash] = struct{}{}
	r.idxMu.Unlock()
	return nil
}

// Get returns a copy of the session.
func (r *SessionRepository) Get(_ context.Context, tokenHash string) (*auth.Session, error) {
	s := r.shardFor(tokenHash)
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return session.Clone(), nil
}

// Touch sets LastAccessAt.
func (r *SessionRepository) Touch(_ context.Context, tokenHash string, at time.Time) error {
	s := r.shardFor(tokenHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return auth.ErrNotFound
	}
	session.LastAccessAt = at
	return nil
}

// Delete removes a session and reports whether it existed.
func (r *SessionRepository) Delete(_ context.Context, tokenHash string) (bool, error) {
	return r.delete(tokenHash, func(*auth.Session) bool { return true }), nil
}

// delete removes tokenHash if match accepts it and reports whether it was
// removed.
func (r *SessionRepository) delete(tokenHash string, match func(*auth.Session) bool) bool {
	s := r.shardFor(tokenHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok || !match(session) {
		return false
	}
	delete(s.sessions, tokenHash)

	r.idxMu.Lock()
	if set, ok := r.byUser[session.UserID]; ok {
		delete(set, tokenHash)
		if len(set) == 0 {
			delete(r.byUser, session.UserID)
		}
	}
	r.idxMu.Unlock()
	return true
}

func (r *SessionRepository) userHashes(userID int64) []string {
	r.idxMu.Lock()
	defer r.idxMu.Unlock()

	set := r.byUser[userID]
	hashes := make([]string, 0, len(set))
	for h := range set {
		hashes = append(hashes, h)
	}
	return hashes
}

// ListByUser returns copies of the user's sessions, oldest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64) ([]*auth.Session, error) {
	hashes := r.userHashes(userID)
	sessions := make([]*auth.Session, 0, len(hashes))
	for _, h := range hashes {
		session, err := r.Get(ctx, h)
		if err != nil {
			continue // removed concurrently
		}
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b *auth.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return sessions, nil
}

// DeleteByUser removes every session of the user.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, h := range r.userHashes(userID) {
		if r.delete(h, func(s *auth.Session) bool { return s.UserID == userID }) {
			n++
		}
	}
	return n, nil
}

// DeleteIdle removes sessions last accessed before the cutoff.
func (r *SessionRepository) DeleteIdle(_ context.Context, before time.Time) (int64, error) {
	var idle []string
	for _, s := range r.shards {
		s.mu.RLock()
		for h, session := range s.sessions {
			if session.LastAccessAt.Before(before) {
				idle = append(idle, h)
			}
		}
		s.mu.RUnlock()
	}

	var n int64
	for _, h := range idle {
		// Re-check: the session may have been touched since the scan.
		if r.delete(h, func(s *auth.Session) bool { return s.LastAccessAt.Before(before) }) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.sessions)
		s.mu.RUnlock()
	}
	return n
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

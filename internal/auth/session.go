// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenBytes is the amount of randomness in a session token
// (64 hex chars).
const SessionTokenBytes = 32

// Session is a server-side session bound to an identity snapshot.
type Session struct {
	ID           ulid.ULID
	TokenHash    string
	UserID       int64
	Username     string
	Authorities  []string
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// NewSession creates a validated Session for the identity, stamped at now.
func NewSession(identity Identity, tokenHash string, now time.Time) (*Session, error) {
	if identity.UserID() == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if identity.Username() == "" {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("username cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if now.IsZero() {
		return nil, oops.Code("SESSION_INVALID_TIME").Errorf("creation time cannot be zero")
	}

	return &Session{
		ID:           ulid.Make(),
		TokenHash:    tokenHash,
		UserID:       identity.UserID(),
		Username:     identity.Username(),
		Authorities:  identity.Authorities(),
		CreatedAt:    now,
		LastAccessAt: now,
	}, nil
}

// Identity rebuilds the identity snapshot held by the session.
func (s *Session) Identity() Identity {
	return NewIdentity(s.UserID, s.Username, s.Authorities)
}

// IsIdleAt reports whether the session has been idle longer than idle at t.
// A non-positive idle disables the check.
func (s *Session) IsIdleAt(t time.Time, idle time.Duration) bool {
	if idle <= 0 {
		return false
	}
	return t.Sub(s.LastAccessAt) > idle
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Authorities = slices.Clone(s.Authorities)
	return &c
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence. Sessions are addressed by
// token hash.
type SessionRepository interface {
	// Put stores a new session.
	Put(ctx context.Context, session *Session) error

	// Get retrieves a session by token hash. Returns ErrNotFound if absent.
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Touch sets LastAccessAt. Returns ErrNotFound if absent.
	Touch(ctx context.Context, tokenHash string, at time.Time) error

	// Delete removes a session and reports whether it existed. Deleting an
	// absent session is not an error.
	Delete(ctx context.Context, tokenHash string) (bool, error)

	// ListByUser returns the user's sessions, oldest first.
	ListByUser(ctx context.Context, userID int64) ([]*Session, error)

	// DeleteByUser removes all sessions of a user and returns the count.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteIdle removes sessions last accessed before the cutoff and
	// returns the count.
	DeleteIdle(ctx context.Context, before time.Time) (int64, error)
}

// UserLocker is implemented by session repositories shared between server
// instances. LockUser blocks until the caller holds the user's session lock
// across all instances, or ctx ends.
type UserLocker interface {
	LockUser(ctx context.Context, userID int64) (unlock func(), err error)
}

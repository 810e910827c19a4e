// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/internal/store"
)

const sessionColumns = `id, token_hash, user_id, username, authorities, created_at, last_access_at`

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db store.Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db store.Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// Put stores a new session.
func (r *SessionRepository) Put(ctx context.Context, session *auth.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID.String(),
		session.TokenHash,
		session.UserID,
		session.Username,
		session.Authorities,
		session.CreatedAt,
		session.LastAccessAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("session_id", session.ID.String()).
			With("user_id", session.UserID).
			Wrap(err)
	}
	return nil
}

// Get retrieves a session by token hash.
func (r *SessionRepository) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Touch updates last_access_at.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE sessions SET last_access_at = $2
		WHERE token_hash = $1
	`, tokenHash, at)
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "update last_access_at").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// txBeginner is satisfied by *pgxpool.Pool and pgxmock pools.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LockUser takes a transaction-scoped advisory lock on the user's sessions.
// The lock holds one pool connection until unlock is called.
func (r *SessionRepository) LockUser(ctx context.Context, userID int64) (func(), error) {
	db, ok := r.db.(txBeginner)
	if !ok {
		return nil, oops.Code("SESSION_LOCK_FAILED").
			With("user_id", userID).
			Errorf("database handle cannot begin transactions")
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, oops.Code("SESSION_LOCK_FAILED").
			With("operation", "begin lock transaction").
			With("user_id", userID).
			Wrap(err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('youchat:sessions:' || $1::text, 0))`, userID); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, oops.Code("SESSION_LOCK_FAILED").
			With("operation", "acquire advisory lock").
			With("user_id", userID).
			Wrap(err)
	}

	return func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			slog.DebugContext(ctx, "failed to release user session lock",
				"user_id", userID,
				"error", err)
		}
	}, nil
}

// Delete removes a session and reports whether it existed.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByUser returns the user's sessions, oldest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64) ([]*auth.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list sessions by user").
			With("user_id", userID).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}
	return sessions, nil
}

// DeleteByUser removes all sessions of a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteIdle removes sessions last accessed before the cutoff.
func (r *SessionRepository) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE last_access_at < $1`, before)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_IDLE_FAILED").
			With("operation", "delete idle sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans one row. pgx.ErrNoRows is returned unwrapped.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr   string
		session auth.Session
	)
	err := row.Scan(&idStr, &session.TokenHash, &session.UserID, &session.Username,
		&session.Authorities, &session.CreatedAt, &session.LastAccessAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	session.ID = id
	return &session, nil
}

// Compile-time interface checks.
var (
	_ auth.SessionRepository = (*SessionRepository)(nil)
	_ auth.UserLocker        = (*SessionRepository)(nil)
)

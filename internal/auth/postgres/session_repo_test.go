// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/pkg/errutil"
)

var sessionRowColumns = []string{"id", "token_hash", "user_id", "username", "authorities", "created_at", "last_access_at"}

func testSession(t *testing.T, created time.Time) *auth.Session {
	t.Helper()
	identity := auth.NewIdentity(5, "alice", []string{auth.RoleUser})
	s, err := auth.NewSession(identity, auth.HashSessionToken("token-"+created.String()), created)
	require.NoError(t, err)
	return s
}

func TestSessionRepository_Put(t *testing.T) {
	now := time.Now().UTC()
	s := testSession(t, now)

	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(s.ID.String(), s.TokenHash, int64(5), "alice", []string{auth.RoleUser}, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(s.ID.String(), s.TokenHash, int64(5), "alice", []string{auth.RoleUser}, now, now).
		WillReturnError(errors.New("duplicate key"))

	repo := NewSessionRepository(mock)
	require.NoError(t, repo.Put(context.Background(), s))

	err := repo.Put(context.Background(), s)
	errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	errutil.AssertErrorContext(t, err, "user_id", int64(5))
}

func TestSessionRepository_Get(t *testing.T) {
	now := time.Now().UTC()
	id := ulid.Make()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		notFound  bool
		errCode   string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM sessions WHERE token_hash = \$1`).
					WithArgs("hash").
					WillReturnRows(pgxmock.NewRows(sessionRowColumns).
						AddRow(id.String(), "hash", int64(5), "alice", []string{auth.RoleUser}, now, now))
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM sessions WHERE token_hash = \$1`).
					WithArgs("hash").
					WillReturnError(pgx.ErrNoRows)
			},
			notFound: true,
			errCode:  "SESSION_NOT_FOUND",
		},
		{
			name: "corrupt id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM sessions WHERE token_hash = \$1`).
					WithArgs("hash").
					WillReturnRows(pgxmock.NewRows(sessionRowColumns).
						AddRow("not-a-ulid", "hash", int64(5), "alice", []string{auth.RoleUser}, now, now))
			},
			errCode: "SESSION_INVALID_ID",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM sessions WHERE token_hash = \$1`).
					WithArgs("hash").
					WillReturnError(errors.New("connection refused"))
			},
			errCode: "SESSION_GET_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			got, err := NewSessionRepository(mock).Get(context.Background(), "hash")
			if tt.errCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.errCode)
				assert.Equal(t, tt.notFound, errors.Is(err, auth.ErrNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got.ID)
			assert.Equal(t, int64(5), got.UserID)
			assert.Equal(t, []string{auth.RoleUser}, got.Authorities)
			assert.Equal(t, now, got.LastAccessAt)
		})
	}
}

func TestSessionRepository_Touch(t *testing.T) {
	at := time.Now().UTC()

	mock := newMockPool(t)
	mock.ExpectExec(`UPDATE sessions SET last_access_at`).
		WithArgs("hash", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE sessions SET last_access_at`).
		WithArgs("gone", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewSessionRepository(mock)
	require.NoError(t, repo.Touch(context.Background(), "hash", at))
	assert.ErrorIs(t, repo.Touch(context.Background(), "gone", at), auth.ErrNotFound)
}

func TestSessionRepository_DeleteReportsRemoval(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
		WithArgs("hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
		WithArgs("hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	repo := NewSessionRepository(mock)

	deleted, err := repo.Delete(context.Background(), "hash")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), "hash")
	assert.NoError(t, err, "deleting an absent session is not an error")
	assert.False(t, deleted)
}

func TestSessionRepository_LockUser(t *testing.T) {
	ctx := context.Background()

	t.Run("holds an advisory lock until unlock", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs(int64(5)).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectRollback()

		unlock, err := NewSessionRepository(mock).LockUser(ctx, 5)
		require.NoError(t, err)
		unlock()
	})

	t.Run("begin failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

		_, err := NewSessionRepository(mock).LockUser(ctx, 5)
		errutil.AssertErrorCode(t, err, "SESSION_LOCK_FAILED")
	})

	t.Run("lock failure rolls back", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs(int64(5)).
			WillReturnError(errors.New("canceling statement due to lock timeout"))
		mock.ExpectRollback()

		_, err := NewSessionRepository(mock).LockUser(ctx, 5)
		errutil.AssertErrorCode(t, err, "SESSION_LOCK_FAILED")
		errutil.AssertErrorContext(t, err, "user_id", int64(5))
	})
}

func TestSessionRepository_ListByUser(t *testing.T) {
	now := time.Now().UTC()
	older, newer := ulid.Make(), ulid.Make()

	t.Run("returns rows in order", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`ORDER BY created_at, id`).
			WithArgs(int64(5)).
			WillReturnRows(pgxmock.NewRows(sessionRowColumns).
				AddRow(older.String(), "h1", int64(5), "alice", []string{auth.RoleUser}, now.Add(-time.Minute), now).
				AddRow(newer.String(), "h2", int64(5), "alice", []string{auth.RoleUser}, now, now))

		got, err := NewSessionRepository(mock).ListByUser(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, older, got[0].ID)
		assert.Equal(t, newer, got[1].ID)
	})

	t.Run("empty", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).
			WithArgs(int64(5)).
			WillReturnRows(pgxmock.NewRows(sessionRowColumns))

		got, err := NewSessionRepository(mock).ListByUser(context.Background(), 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("row error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).
			WithArgs(int64(5)).
			WillReturnRows(pgxmock.NewRows(sessionRowColumns).
				AddRow(older.String(), "h1", int64(5), "alice", []string{auth.RoleUser}, now, now).
				RowError(0, errors.New("network blip")))

		_, err := NewSessionRepository(mock).ListByUser(context.Background(), 5)
		require.Error(t, err)
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions`).
			WithArgs(int64(5)).
			WillReturnError(errors.New("connection refused"))

		_, err := NewSessionRepository(mock).ListByUser(context.Background(), 5)
		errutil.AssertErrorCode(t, err, "SESSION_LIST_FAILED")
	})
}

func TestSessionRepository_BulkDeletes(t *testing.T) {
	cutoff := time.Now().UTC()

	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM sessions WHERE last_access_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM sessions WHERE last_access_at < \$1`).
		WithArgs(cutoff).
		WillReturnError(errors.New("timeout"))

	repo := NewSessionRepository(mock)

	n, err := repo.DeleteByUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.DeleteIdle(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.DeleteIdle(context.Background(), cutoff)
	errutil.AssertErrorCode(t, err, "SESSION_DELETE_IDLE_FAILED")
}

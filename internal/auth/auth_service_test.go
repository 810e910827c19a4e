// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/internal/auth/memory"
)

const testPassword = "Secret123!"

// countingEncoder records how many verifications ran.
type countingEncoder struct {
	*auth.DelegatingEncoder
	matches atomic.Int32
}

func (e *countingEncoder) Matches(password, hash string) (bool, error) {
	e.matches.Add(1)
	return e.DelegatingEncoder.Matches(password, hash)
}

type authFixture struct {
	users    *memory.UserRepository
	sessions *auth.SessionManager
	encoder  *countingEncoder
	svc      *auth.Service
	logs     *bytes.Buffer
	alice    *auth.CredentialRecord
}

func newAuthFixture(t *testing.T, mutate func(*auth.SessionOptions)) *authFixture {
	t.Helper()
	ctx := context.Background()

	enc := &countingEncoder{DelegatingEncoder: newTestEncoder(t, auth.AlgorithmArgon2id)}
	users := memory.NewUserRepository()
	hash, err := enc.Encode(testPassword)
	require.NoError(t, err)
	rec := &auth.CredentialRecord{Username: "alice", PasswordHash: hash, Nickname: "Alice"}
	require.NoError(t, users.Create(ctx, rec))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts := auth.DefaultSessionOptions()
	if mutate != nil {
		mutate(&opts)
	}
	sessions, err := auth.NewSessionManager(memory.NewSessionRepository(), opts, logger)
	require.NoError(t, err)

	svc, err := auth.NewAuthService(users, enc, sessions, logger)
	require.NoError(t, err)

	return &authFixture{users: users, sessions: sessions, encoder: enc, svc: svc, logs: &logs, alice: rec}
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	enc := newTestEncoder(t, auth.AlgorithmArgon2id)
	users := memory.NewUserRepository()
	creator := new(mockSessionCreator)
	logger := slog.New(slog.DiscardHandler)

	_, err := auth.NewAuthService(nil, enc, creator, logger)
	assert.Error(t, err)
	_, err = auth.NewAuthService(users, nil, creator, logger)
	assert.Error(t, err)
	_, err = auth.NewAuthService(users, enc, nil, logger)
	assert.Error(t, err)
	_, err = auth.NewAuthService(users, enc, creator, nil)
	assert.Error(t, err)
}

func TestAuthenticate_Success(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	id, token, err := f.svc.Authenticate(ctx, auth.LoginRequest{Username: "alice", Password: testPassword}, "")
	require.NoError(t, err)

	assert.Equal(t, "alice", id.Username())
	assert.Equal(t, f.alice.ID, id.UserID())
	assert.Equal(t, []string{auth.RoleUser}, id.Authorities())
	assert.NotEmpty(t, token)

	restored, err := f.sessions.Restore(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, restored)
}

func TestAuthenticate_BlankFieldsSkipLookup(t *testing.T) {
	store := new(mockCredentialStore)
	creator := new(mockSessionCreator)
	svc, err := auth.NewAuthService(store, newTestEncoder(t, auth.AlgorithmArgon2id), creator, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	cases := []auth.LoginRequest{
		{Username: "", Password: testPassword},
		{Username: "   ", Password: testPassword},
		{Username: "alice", Password: ""},
		{Username: "alice", Password: "\t "},
	}
	for _, req := range cases {
		_, _, err := svc.Authenticate(context.Background(), req, "")
		require.Error(t, err)
		assert.Equal(t, auth.KindInvalidRequest, auth.KindOf(err))
		assert.False(t, auth.KindOf(err).IsAuthentication())
	}

	store.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
	creator.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, token, err := f.svc.Authenticate(context.Background(), auth.LoginRequest{Username: "ghost", Password: testPassword}, "")
	require.Error(t, err)
	assert.Empty(t, token)
	assert.Equal(t, auth.KindUserNotFound, auth.KindOf(err))
	assert.True(t, auth.KindOf(err).IsAuthentication())
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.Equal(t, int32(1), f.encoder.matches.Load(), "dummy hash is still verified")
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, token, err := f.svc.Authenticate(context.Background(), auth.LoginRequest{Username: "alice", Password: "Wrong123!"}, "")
	require.Error(t, err)
	assert.Empty(t, token)
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	assert.True(t, auth.KindOf(err).IsAuthentication())
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	store := new(mockCredentialStore)
	store.On("FindByUsername", mock.Anything, "alice").Return(nil, errors.New("dial tcp: connection refused"))
	creator := new(mockSessionCreator)

	var logs bytes.Buffer
	svc, err := auth.NewAuthService(store, newTestEncoder(t, auth.AlgorithmArgon2id), creator,
		slog.New(slog.NewJSONHandler(&logs, nil)))
	require.NoError(t, err)

	_, _, err = svc.Authenticate(context.Background(), auth.LoginRequest{Username: "alice", Password: testPassword}, "")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuthenticationFailed, auth.KindOf(err))
	assert.True(t, auth.HasKind(err, auth.KindStoreUnavailable))
	assert.Contains(t, logs.String(), "connection refused", "full cause is logged")
	creator.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticate_CorruptStoredHash(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	rec := &auth.CredentialRecord{Username: "broken", PasswordHash: "not-a-hash"}
	require.NoError(t, f.users.Create(ctx, rec))

	_, _, err := f.svc.Authenticate(ctx, auth.LoginRequest{Username: "broken", Password: testPassword}, "")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuthenticationFailed, auth.KindOf(err))
}

func TestAuthenticate_SessionFailures(t *testing.T) {
	t.Run("session limit passes through", func(t *testing.T) {
		f := newAuthFixture(t, func(o *auth.SessionOptions) { o.Policy = auth.PolicyReject })
		ctx := context.Background()
		req := auth.LoginRequest{Username: "alice", Password: testPassword}

		_, _, err := f.svc.Authenticate(ctx, req, "")
		require.NoError(t, err)

		_, _, err = f.svc.Authenticate(ctx, req, "")
		require.Error(t, err)
		assert.Equal(t, auth.KindSessionLimitExceeded, auth.KindOf(err))
	})

	t.Run("other failures become authentication failed", func(t *testing.T) {
		users := memory.NewUserRepository()
		enc := newTestEncoder(t, auth.AlgorithmArgon2id)
		hash, err := enc.Encode(testPassword)
		require.NoError(t, err)
		require.NoError(t, users.Create(context.Background(), &auth.CredentialRecord{Username: "alice", PasswordHash: hash}))

		creator := new(mockSessionCreator)
		creator.On("Create", mock.Anything, mock.Anything, "").Return("", errors.New("redis down"))
		svc, err := auth.NewAuthService(users, enc, creator, slog.New(slog.DiscardHandler))
		require.NoError(t, err)

		_, _, err = svc.Authenticate(context.Background(), auth.LoginRequest{Username: "alice", Password: testPassword}, "")
		require.Error(t, err)
		assert.Equal(t, auth.KindAuthenticationFailed, auth.KindOf(err))
	})
}

func TestAuthenticate_PassesPriorToken(t *testing.T) {
	users := memory.NewUserRepository()
	enc := newTestEncoder(t, auth.AlgorithmArgon2id)
	hash, err := enc.Encode(testPassword)
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), &auth.CredentialRecord{Username: "alice", PasswordHash: hash}))

	creator := new(mockSessionCreator)
	creator.On("Create", mock.Anything, mock.MatchedBy(func(id auth.Identity) bool {
		return id.Username() == "alice"
	}), "prior").Return("fresh", nil)
	svc, err := auth.NewAuthService(users, enc, creator, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	_, token, err := svc.Authenticate(context.Background(), auth.LoginRequest{Username: "alice", Password: testPassword}, "prior")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	creator.AssertExpectations(t)
}

func TestAuthenticate_UpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)

	legacy, err := auth.NewBcryptEncoder(4).Encode("Legacy123!")
	require.NoError(t, err)
	rec := &auth.CredentialRecord{Username: "legacy", PasswordHash: legacy}
	require.NoError(t, f.users.Create(ctx, rec))

	_, _, err = f.svc.Authenticate(ctx, auth.LoginRequest{Username: "legacy", Password: "Legacy123!"}, "")
	require.NoError(t, err)

	stored, err := f.users.FindByUsername(ctx, "legacy")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	_, _, err = f.svc.Authenticate(ctx, auth.LoginRequest{Username: "legacy", Password: "Legacy123!"}, "")
	assert.NoError(t, err, "upgraded hash still verifies")
}

func TestAuthenticate_NeverLogsPassword(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	_, _, _ = f.svc.Authenticate(ctx, auth.LoginRequest{Username: "alice", Password: testPassword}, "")
	_, _, _ = f.svc.Authenticate(ctx, auth.LoginRequest{Username: "alice", Password: "Wrong123!"}, "")
	_, _, _ = f.svc.Authenticate(ctx, auth.LoginRequest{Username: "ghost", Password: "Ghost123!"}, "")

	out := f.logs.String()
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, testPassword)
	assert.NotContains(t, out, "Wrong123!")
	assert.NotContains(t, out, "Ghost123!")
}

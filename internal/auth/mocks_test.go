// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/youchat/youchat/internal/auth"
)

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Put(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockSessionRepository) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	args := m.Called(ctx, tokenHash)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.Error(1)
}

func (m *mockSessionRepository) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	return m.Called(ctx, tokenHash, at).Error(0)
}

func (m *mockSessionRepository) Delete(ctx context.Context, tokenHash string) (bool, error) {
	args := m.Called(ctx, tokenHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepository) ListByUser(ctx context.Context, userID int64) ([]*auth.Session, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).([]*auth.Session)
	return s, args.Error(1)
}

func (m *mockSessionRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepository) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// lockingSessionRepository is a session repository shared between
// instances.
type lockingSessionRepository struct {
	auth.SessionRepository
	mock.Mock
}

func (m *lockingSessionRepository) LockUser(ctx context.Context, userID int64) (func(), error) {
	args := m.Called(ctx, userID)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}

type mockCredentialStore struct {
	mock.Mock
}

func (m *mockCredentialStore) FindByUsername(ctx context.Context, username string) (*auth.CredentialRecord, error) {
	args := m.Called(ctx, username)
	rec, _ := args.Get(0).(*auth.CredentialRecord)
	return rec, args.Error(1)
}

type mockSessionCreator struct {
	mock.Mock
}

func (m *mockSessionCreator) Create(ctx context.Context, identity auth.Identity, priorToken string) (string, error) {
	args := m.Called(ctx, identity, priorToken)
	return args.String(0), args.Error(1)
}

// fakeClock is a settable clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

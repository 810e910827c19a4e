// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/youchat/youchat/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository.
type UserRepository struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*auth.CredentialRecord
	byUsername map[string]int64
	now        func() time.Time
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[int64]*auth.CredentialRecord),
		byUsername: make(map[string]int64),
		now:        time.Now,
	}
}

// FindByUsername returns a copy of the record for username.
func (r *UserRepository) FindByUsername(_ context.Context, username string) (*auth.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).With("username", username).Wrap(auth.ErrNotFound)
	}
	rec := *r.byID[id]
	return &rec, nil
}

// GetByID returns a copy of the record with id.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*auth.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).With("user_id", id).Wrap(auth.ErrNotFound)
	}
	c := *rec
	return &c, nil
}

// ExistsByUsername reports whether username is taken.
func (r *UserRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUsername[username]
	return ok, nil
}

// Create assigns an id and timestamps and stores a copy of rec.
func (r *UserRepository) Create(_ context.Context, rec *auth.CredentialRecord) error {
	if rec.Username == "" || rec.PasswordHash == "" {
		return oops.Code("USER_INVALID").Errorf("username and password hash are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[rec.Username]; ok {
		return oops.Code(auth.CodeUsernameTaken).With("username", rec.Username).Wrap(auth.ErrUsernameTaken)
	}

	r.nextID++
	now := r.now()
	rec.ID = r.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored := *rec
	r.byID[rec.ID] = &stored
	r.byUsername[rec.Username] = rec.ID
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return oops.Code(auth.CodeUserNotFound).With("user_id", id).Wrap(auth.ErrNotFound)
	}
	rec.PasswordHash = hash
	rec.UpdatedAt = r.now()
	return nil
}

// Delete removes the record with id.
func (r *UserRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return oops.Code(auth.CodeUserNotFound).With("user_id", id).Wrap(auth.ErrNotFound)
	}
	delete(r.byUsername, rec.Username)
	delete(r.byID, id)
	return nil
}

var _ auth.UserRepository = (*UserRepository)(nil)

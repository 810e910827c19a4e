// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"context"
	"time"
)

// CredentialRecord is a persisted user account.
type CredentialRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	Nickname     string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CredentialStore looks up accounts by login name.
type CredentialStore interface {
	// FindByUsername returns the record for username, or an error wrapping
	// ErrNotFound when none exists.
	FindByUsername(ctx context.Context, username string) (*CredentialRecord, error)
}

// PasswordUpdater persists a re-encoded password hash. Stores that implement
// it get hashes upgraded on successful login.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// UserRepository manages account persistence.
type UserRepository interface {
	CredentialStore
	PasswordUpdater

	// ExistsByUsername reports whether username is taken.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Create inserts rec and sets its ID and timestamps. Returns an error
	// wrapping ErrUsernameTaken when the username is already held.
	Create(ctx context.Context, rec *CredentialRecord) error

	// GetByID returns the record with id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*CredentialRecord, error)

	// Delete removes the record with id. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id int64) error
}

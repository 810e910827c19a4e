// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import "slices"

// RoleUser is the only authority granted to authenticated users.
const RoleUser = "ROLE_USER"

// Identity is the authenticated principal. It is an immutable value: fields
// are unexported and accessors return copies.
type Identity struct {
	userID      int64
	username    string
	authorities []string
}

// NewIdentity builds an Identity. Used when rebuilding an identity from a
// stored session.
func NewIdentity(userID int64, username string, authorities []string) Identity {
	return Identity{
		userID:      userID,
		username:    username,
		authorities: slices.Clone(authorities),
	}
}

// Resolve converts a credential record into an Identity with the fixed
// authority set.
func Resolve(rec CredentialRecord) Identity {
	return Identity{
		userID:      rec.ID,
		username:    rec.Username,
		authorities: []string{RoleUser},
	}
}

// UserID returns the stable id of the user.
func (i Identity) UserID() int64 { return i.userID }

// Username returns the login name.
func (i Identity) Username() string { return i.username }

// Authorities returns a copy of the granted authorities, in order.
func (i Identity) Authorities() []string { return slices.Clone(i.authorities) }

// HasAuthority reports whether the identity holds the authority.
func (i Identity) HasAuthority(authority string) bool {
	return slices.Contains(i.authorities, authority)
}

// Account state flags. Accounts cannot be disabled, locked or expired, so
// these are always true.

func (i Identity) IsEnabled() bool               { return true }
func (i Identity) IsAccountNonLocked() bool      { return true }
func (i Identity) IsAccountNonExpired() bool     { return true }
func (i Identity) IsCredentialsNonExpired() bool { return true }

// IsZero reports whether the identity is the zero value.
func (i Identity) IsZero() bool {
	return i.userID == 0 && i.username == "" && len(i.authorities) == 0
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package auth provides authentication and session management for YouChat.
//
// # Domain Types
//
//   - CredentialRecord - a stored account, looked up through CredentialStore
//   - Identity - the immutable authenticated principal, built by Resolve
//   - Session - a server-side session record, created with NewSession
//
// Session tokens are opaque random strings handed to the client. Only their
// SHA-256 hash is stored.
//
// # Services
//
//   - Service - login (Authenticate)
//   - SessionManager - session creation, restore, invalidation and sweeping
//   - UserService - registration and current-account operations
//
// Failures carry a Kind (see KindOf). Every authentication failure kind maps
// to the same client response so callers cannot tell an unknown user from a
// wrong password.
//
// Services are created with New* constructors that validate dependencies.
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned by a UserRepository when the username is
// already held by another record.
var ErrUsernameTaken = errors.New("username already exists")

// Error codes attached to oops errors produced by this package.
const (
	CodeInvalidRequest          = "AUTH_INVALID_REQUEST"
	CodeUserNotFound            = "AUTH_USER_NOT_FOUND"
	CodeInvalidCredentials      = "AUTH_INVALID_CREDENTIALS"
	CodeStoreUnavailable        = "AUTH_STORE_UNAVAILABLE"
	CodeAuthenticationFailed    = "AUTH_FAILED"
	CodeSessionLimitExceeded    = "SESSION_LIMIT_EXCEEDED"
	CodeSessionExpiredOrMissing = "SESSION_EXPIRED_OR_MISSING"
	CodeUsernameTaken           = "USER_USERNAME_TAKEN"
)

// Kind is the stable, user-facing category of a failure. The transport layer
// maps kinds to status codes; the kind of an error never depends on the text
// of the underlying cause.
type Kind int

// Failure kinds.
const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindUserNotFound
	KindInvalidCredentials
	KindStoreUnavailable
	KindAuthenticationFailed
	KindSessionLimitExceeded
	KindSessionExpiredOrMissing
	KindUsernameTaken
)

var kindNames = map[Kind]string{
	KindInternal:                "internal",
	KindInvalidRequest:          "invalid_request",
	KindUserNotFound:            "user_not_found",
	KindInvalidCredentials:      "invalid_credentials",
	KindStoreUnavailable:        "store_unavailable",
	KindAuthenticationFailed:    "authentication_failed",
	KindSessionLimitExceeded:    "session_limit_exceeded",
	KindSessionExpiredOrMissing: "session_expired_or_missing",
	KindUsernameTaken:           "username_taken",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsAuthentication reports whether the kind belongs to the authentication
// category. All of these collapse to the same unauthorized response.
func (k Kind) IsAuthentication() bool {
	switch k {
	case KindUserNotFound, KindInvalidCredentials, KindStoreUnavailable,
		KindAuthenticationFailed, KindSessionLimitExceeded:
		return true
	default:
		return false
	}
}

// kindError tags an error chain with a Kind. oops reports the deepest code in
// a chain, so the kind travels separately and the outermost tag wins.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

func withKind(kind Kind, err error) error {
	return &kindError{kind: kind, err: err}
}

// KindOf returns the outermost Kind tagged on err, or KindInternal when err
// carries none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

// HasKind reports whether any error in the chain is tagged with kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var ke *kindError
		if !errors.As(err, &ke) {
			return false
		}
		if ke.kind == kind {
			return true
		}
		err = ke.err
	}
	return false
}

// InvalidRequest tags cause as a KindInvalidRequest failure whose public
// message is shown to clients.
func InvalidRequest(public string, cause error) error {
	return withKind(KindInvalidRequest, oops.Code(CodeInvalidRequest).
		Public(public).
		Wrap(cause))
}

func errInvalidRequest(public, format string, args ...any) error {
	return withKind(KindInvalidRequest, oops.Code(CodeInvalidRequest).
		Public(public).
		Errorf(format, args...))
}

func errSessionExpiredOrMissing() error {
	return withKind(KindSessionExpiredOrMissing, oops.Code(CodeSessionExpiredOrMissing).
		Errorf("session expired or missing"))
}

func errStoreUnavailable(operation string, cause error) error {
	return withKind(KindStoreUnavailable, oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Wrap(cause))
}

func errAuthenticationFailed(operation string, cause error) error {
	return withKind(KindAuthenticationFailed, oops.Code(CodeAuthenticationFailed).
		With("operation", operation).
		Wrap(cause))
}

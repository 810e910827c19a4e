// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/youchat/youchat/pkg/errutil"
)

// LoginRequest carries submitted credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks that both fields are non-blank.
func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errInvalidRequest("username is required", "username is blank")
	}
	if strings.TrimSpace(r.Password) == "" {
		return errInvalidRequest("password is required", "password is blank")
	}
	return nil
}

// CredentialVerifier is the password encoder used at login. DummyHash is
// verified for unknown usernames so response time does not reveal whether
// an account exists.
type CredentialVerifier interface {
	PasswordEncoder
	NeedsUpgrade(encodedHash string) bool
	DummyHash() string
}

// SessionCreator issues sessions for authenticated identities.
type SessionCreator interface {
	Create(ctx context.Context, identity Identity, priorToken string) (string, error)
}

// Service authenticates login requests.
type Service struct {
	users    CredentialStore
	encoder  CredentialVerifier
	sessions SessionCreator
	logger   *slog.Logger
}

// NewAuthService creates a new Service.
func NewAuthService(users CredentialStore, encoder CredentialVerifier, sessions SessionCreator, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if encoder == nil {
		return nil, oops.Errorf("password encoder is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session creator is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{
		users:    users,
		encoder:  encoder,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Authenticate verifies the credentials, binds a new session to the resolved
// identity and returns the identity with the session token. priorToken is the
// caller's pre-login session, if any; it is discarded.
//
// Unknown user, wrong password and internal failures carry distinct kinds but
// all report KindOf(err).IsAuthentication() == true.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest, priorToken string) (Identity, string, error) {
	if err := req.Validate(); err != nil {
		recordLogin(OutcomeInvalidRequest)
		return Identity{}, "", err
	}

	rec, lookupErr := s.users.FindByUsername(ctx, req.Username)

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = rec.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = s.encoder.DummyHash()
	default:
		err := errAuthenticationFailed("find user", errStoreUnavailable("find user", lookupErr))
		return Identity{}, "", s.fail(ctx, req.Username, err)
	}

	// Always verify, even for unknown users.
	valid, verifyErr := s.encoder.Matches(req.Password, targetHash)

	if lookupErr != nil {
		err := withKind(KindUserNotFound, oops.Code(CodeUserNotFound).
			With("username", req.Username).
			Wrap(lookupErr))
		return Identity{}, "", s.fail(ctx, req.Username, err)
	}
	if verifyErr != nil {
		err := errAuthenticationFailed("verify password", verifyErr)
		return Identity{}, "", s.fail(ctx, req.Username, err)
	}
	if !valid {
		err := withKind(KindInvalidCredentials, oops.Code(CodeInvalidCredentials).
			With("username", req.Username).
			Errorf("invalid username or password"))
		return Identity{}, "", s.fail(ctx, req.Username, err)
	}

	identity := Resolve(*rec)
	s.upgradeHash(ctx, rec, req.Password)

	token, err := s.sessions.Create(ctx, identity, priorToken)
	if err != nil {
		if KindOf(err) != KindSessionLimitExceeded {
			err = errAuthenticationFailed("create session", err)
		}
		return Identity{}, "", s.fail(ctx, req.Username, err)
	}

	recordLogin(OutcomeSuccess)
	s.logger.InfoContext(ctx, "login succeeded",
		"username", identity.Username(),
		"user_id", identity.UserID())

	return identity, token, nil
}

// upgradeHash re-encodes the password when the stored hash uses another
// algorithm. Failures are logged; the login still succeeds.
func (s *Service) upgradeHash(ctx context.Context, rec *CredentialRecord, password string) {
	updater, ok := s.users.(PasswordUpdater)
	if !ok || !s.encoder.NeedsUpgrade(rec.PasswordHash) {
		return
	}
	hash, err := s.encoder.Encode(password)
	if err == nil {
		err = updater.UpdatePasswordHash(ctx, rec.ID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", rec.ID,
			"error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", rec.ID)
}

func (s *Service) fail(ctx context.Context, username string, err error) error {
	kind := KindOf(err)
	switch kind {
	case KindUserNotFound:
		recordLogin(OutcomeUserNotFound)
	case KindInvalidCredentials:
		recordLogin(OutcomeInvalidCredentials)
	case KindSessionLimitExceeded:
		recordLogin(OutcomeSessionLimit)
	default:
		recordLogin(OutcomeError)
		errutil.LogErrorContext(ctx, s.logger, "login failed", err, "username", username)
		return err
	}
	s.logger.WarnContext(ctx, "login rejected",
		"username", username,
		"reason", kind.String())
	return err
}

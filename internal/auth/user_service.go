// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Registration constraints.
const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
	PasswordMinLength = 8
	PasswordMaxLength = 100
	NicknameMaxLength = 100
)

// Validation error codes for registration.
const (
	CodeInvalidUsername  = "USER_INVALID_USERNAME"
	CodeInvalidPassword  = "USER_INVALID_PASSWORD"
	CodeInvalidNickname  = "USER_INVALID_NICKNAME"
	CodePasswordMismatch = "USER_INVALID_CONFIRMATION"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const passwordSpecialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// RegisterRequest carries a new account.
type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Nickname        string `json:"nickname"`
}

// Validate applies the registration rules. The first violation is returned.
func (r RegisterRequest) Validate() error {
	if err := ValidateUsername(r.Username); err != nil {
		return err
	}
	if err := ValidatePassword(r.Password); err != nil {
		return err
	}
	if strings.TrimSpace(r.Nickname) == "" || utf8.RuneCountInString(r.Nickname) > NicknameMaxLength {
		return invalidField(CodeInvalidNickname, "nickname must be between 1 and 100 characters")
	}
	if r.ConfirmPassword != r.Password {
		return invalidField(CodePasswordMismatch, "password and confirmation do not match")
	}
	return nil
}

// ValidateUsername checks length and character set.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return invalidField(CodeInvalidUsername, "username must be between 3 and 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		return invalidField(CodeInvalidUsername, "username may only contain letters, digits and underscores")
	}
	return nil
}

// ValidatePassword checks length and that the password mixes lower case,
// upper case, digits and special characters.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if strings.TrimSpace(password) == "" || n < PasswordMinLength || n > PasswordMaxLength {
		return invalidField(CodeInvalidPassword, "password must be between 8 and 100 characters")
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecialChars, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return invalidField(CodeInvalidPassword,
			"password must contain an upper case letter, a lower case letter, a digit and a special character")
	}
	return nil
}

func invalidField(code, public string) error {
	return withKind(KindInvalidRequest, oops.Code(code).Public(public).Errorf("%s", public))
}

// SessionInvalidator removes every session of a user.
type SessionInvalidator interface {
	InvalidateAll(ctx context.Context, userID int64) (int64, error)
}

// UserService manages accounts.
type UserService struct {
	users    UserRepository
	encoder  PasswordEncoder
	sessions SessionInvalidator
	logger   *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users UserRepository, encoder PasswordEncoder, sessions SessionInvalidator, logger *slog.Logger) (*UserService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if encoder == nil {
		return nil, oops.Errorf("password encoder is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session invalidator is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &UserService{users: users, encoder: encoder, sessions: sessions, logger: logger}, nil
}

// Register validates req, encodes the password and stores the account.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*CredentialRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "check username").
			Wrap(err)
	}
	if exists {
		return nil, errUsernameTaken(req.Username, ErrUsernameTaken)
	}

	hash, err := s.encoder.Encode(req.Password)
	if err != nil {
		if KindOf(err) == KindInvalidRequest {
			return nil, err
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "encode password").
			Wrap(err)
	}

	rec := &CredentialRecord{
		Username:     req.Username,
		PasswordHash: hash,
		Nickname:     req.Nickname,
	}
	if err := s.users.Create(ctx, rec); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, ErrUsernameTaken) {
			return nil, errUsernameTaken(req.Username, err)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "username", rec.Username, "user_id", rec.ID)
	return rec, nil
}

// Current returns the stored account of the authenticated identity. An
// account whose username no longer matches the identity belongs to someone
// else and is reported as KindSessionExpiredOrMissing.
func (s *UserService) Current(ctx context.Context, identity Identity) (*CredentialRecord, error) {
	rec, err := s.users.GetByID(ctx, identity.UserID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, withKind(KindUserNotFound, oops.Code(CodeUserNotFound).
				With("user_id", identity.UserID()).
				Wrap(err))
		}
		return nil, errStoreUnavailable("get user", err)
	}
	if rec.Username != identity.Username() {
		s.logger.WarnContext(ctx, "session identity does not match stored account",
			"user_id", identity.UserID(),
			"username", identity.Username())
		return nil, errSessionExpiredOrMissing()
	}
	return rec, nil
}

// DeleteCurrent deletes the account of the authenticated identity and all of
// its sessions.
func (s *UserService) DeleteCurrent(ctx context.Context, identity Identity) error {
	if _, err := s.Current(ctx, identity); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, identity.UserID()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return withKind(KindUserNotFound, oops.Code(CodeUserNotFound).
				With("user_id", identity.UserID()).
				Wrap(err))
		}
		return oops.Code("USER_DELETE_FAILED").
			With("user_id", identity.UserID()).
			Wrap(err)
	}

	n, err := s.sessions.InvalidateAll(ctx, identity.UserID())
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deleted",
		"username", identity.Username(),
		"user_id", identity.UserID(),
		"sessions", n)
	return nil
}

func errUsernameTaken(username string, cause error) error {
	return withKind(KindUsernameTaken, oops.Code(CodeUsernameTaken).
		With("username", username).
		Public("username already exists").
		Wrap(cause))
}

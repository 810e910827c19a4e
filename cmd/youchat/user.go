// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/internal/auth/postgres"
	"github.com/youchat/youchat/internal/config"
	"github.com/youchat/youchat/internal/store"
)

// accountStores are the repositories used by the user command.
type accountStores struct {
	users    auth.UserRepository
	sessions auth.SessionRepository
	close    func()
}

// openAccountStores is replaced in tests.
var openAccountStores = func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*accountStores, error) {
	if cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database URL is required (--database-url or DATABASE_URL)")
	}
	pool, err := store.OpenPool(ctx, cfg.Database.URL, store.DefaultPoolOptions(), logger)
	if err != nil {
		return nil, err
	}
	return &accountStores{
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
		close:    pool.Close,
	}, nil
}

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserDeleteCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var username, nickname string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long: `Create an account. The password is read from the first line of
standard input and must satisfy the registration rules.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if nickname == "" {
				nickname = username
			}
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService, _ auth.UserRepository) error {
				rec, err := svc.Register(ctx, auth.RegisterRequest{
					Username:        username,
					Password:        password,
					ConfirmPassword: password,
					Nickname:        nickname,
				})
				if err != nil {
					return err
				}
				cmd.Printf("Created user %s (id %d)\n", rec.Username, rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&nickname, "nickname", "", "display name (default: username)")
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck // flag is defined above
	return cmd
}

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete USERNAME",
		Short: "Delete an account and end its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, func(ctx context.Context, svc *auth.UserService, users auth.UserRepository) error {
				rec, err := users.FindByUsername(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.DeleteCurrent(ctx, auth.Resolve(*rec)); err != nil {
					return err
				}
				cmd.Printf("Deleted user %s\n", rec.Username)
				return nil
			})
		},
	}
}

func withUserService(cmd *cobra.Command, fn func(ctx context.Context, svc *auth.UserService, users auth.UserRepository) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()

	stores, err := openAccountStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	encoder, err := auth.NewDelegatingEncoder(cfg.Password.Algorithm, cfg.Argon2Params(), cfg.Password.BcryptCost)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionManager(stores.sessions, cfg.SessionOptions(), logger)
	if err != nil {
		return err
	}
	svc, err := auth.NewUserService(stores.users, encoder, sessions, logger)
	if err != nil {
		return err
	}
	return fn(ctx, svc, stores.users)
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password must be given on standard input")
	}
	return password, nil
}

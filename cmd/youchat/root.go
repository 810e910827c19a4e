// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/youchat/youchat/internal/config"
	"github.com/youchat/youchat/internal/logging"
)

// NewRootCmd creates the root command for the YouChat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "youchat",
		Short: "YouChat identity server",
		Long: `YouChat authenticates users with username and password and keeps
their server-side sessions, with PostgreSQL or Redis session storage.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig resolves the configuration for cmd.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	return config.Load(cmd.Flags())
}

// setupLogging installs the default logger described by cfg. A nil w
// writes to stderr.
func setupLogging(cfg config.Config, w io.Writer) *slog.Logger {
	// Validate has already accepted the level.
	level, _ := logging.ParseLevel(cfg.Log.Level) //nolint:errcheck // validated
	logger := logging.Setup(logging.Options{
		Service: "youchat",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}, w)
	slog.SetDefault(logger)
	return logger
}

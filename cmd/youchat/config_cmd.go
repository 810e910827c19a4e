// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package main

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/youchat/youchat/internal/config"
	"github.com/youchat/youchat/internal/xdg"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// Credentials in URLs are not printed.
			cfg.Database.URL = redactURL(cfg.Database.URL)
			cfg.Redis.URL = redactURL(cfg.Redis.URL)
			return writeYAML(cmd, cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default configuration file",
		Long: `Write the built-in defaults to PATH, or to
$XDG_CONFIG_HOME/youchat/config.yaml when PATH is omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initPath(args)
			if err != nil {
				return err
			}
			if !force {
				if _, statErr := os.Stat(path); statErr == nil {
					return oops.Code("CONFIG_EXISTS").With("path", path).
						Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(statErr, fs.ErrNotExist) {
					return oops.Code("CONFIG_INIT_FAILED").With("path", path).Wrap(statErr)
				}
			}
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return err
			}
			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return oops.Code("CONFIG_INIT_FAILED").Wrap(err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return oops.Code("CONFIG_INIT_FAILED").With("path", path).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func initPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return "", oops.Code("CONFIG_PATH_FAILED").Wrap(err)
	}
	return path, nil
}

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return enc.Close()
}

// redactURL masks the password of a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable]"
	}
	return u.Redacted()
}

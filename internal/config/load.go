// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/youchat/youchat/internal/xdg"
)

// Environment variables consulted when the matching URL is empty.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
)

// FlagConfig names the flag holding the configuration file path.
const FlagConfig = "config"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"metrics-addr":  "observability.addr",
	"database-url":  "database.url",
	"redis-url":     "redis.url",
	"session-store": "sessions.store",
	"max-sessions":  "sessions.max_per_user",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// RegisterFlags adds the configuration flags. Only flags the user set
// override the file.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(FlagConfig, "", "configuration file (default $XDG_CONFIG_HOME/youchat/config.yaml)")
	flags.String("addr", d.Server.Addr, "API listen address")
	flags.String("metrics-addr", d.Observability.Addr, "metrics and health listen address (empty disables)")
	flags.String("database-url", "", "PostgreSQL URL (or "+EnvDatabaseURL+")")
	flags.String("redis-url", "", "Redis URL (or "+EnvRedisURL+")")
	flags.String("session-store", d.Sessions.Store, "session store: memory, postgres or redis")
	flags.Int("max-sessions", d.Sessions.MaxPerUser, "concurrent sessions per user")
	flags.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	flags.String("log-format", d.Log.Format, "log format: json or text")
}

// Load builds the configuration. The file named by the config flag must
// exist; the default XDG file is optional. flags may be nil.
func Load(flags *pflag.FlagSet) (Config, string, error) {
	path, explicit, err := configPath(flags)
	if err != nil {
		return Config{}, "", err
	}

	k := koanf.New(".")

	loaded := ""
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	switch {
	case err == nil:
		if err := ValidateYAML(data); err != nil {
			return Config{}, "", oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		loaded = path
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	err = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			// Lists from the file replace the defaults instead of merging.
			ZeroFields: true,
			TagName:    "koanf",
		},
	})
	if err != nil {
		return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, loaded, nil
}

func configPath(flags *pflag.FlagSet) (path string, explicit bool, err error) {
	if flags != nil {
		if f := flags.Lookup(FlagConfig); f != nil && f.Value.String() != "" {
			return f.Value.String(), true, nil
		}
	}
	path, err = xdg.ConfigFile()
	if err != nil {
		return "", false, oops.Code("CONFIG_PATH_FAILED").Wrap(err)
	}
	return path, false, nil
}

func applyEnv(cfg *Config) {
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = os.Getenv(EnvRedisURL)
	}
}

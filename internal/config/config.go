// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package config loads YouChat server configuration from defaults, an
// optional YAML file, environment and command-line flags.
package config

import (
	"time"

	"github.com/samber/oops"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/internal/logging"
	"github.com/youchat/youchat/internal/web"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// CodeInvalidConfig tags every validation failure.
const CodeInvalidConfig = "CONFIG_INVALID"

// Config is the complete server configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server" json:"server,omitempty" yaml:"server"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability,omitempty" yaml:"observability"`
	Database      DatabaseConfig      `koanf:"database" json:"database,omitempty" yaml:"database"`
	Redis         RedisConfig         `koanf:"redis" json:"redis,omitempty" yaml:"redis"`
	Sessions      SessionsConfig      `koanf:"sessions" json:"sessions,omitempty" yaml:"sessions"`
	Password      PasswordConfig      `koanf:"password" json:"password,omitempty" yaml:"password"`
	Log           LogConfig           `koanf:"log" json:"log,omitempty" yaml:"log"`
}

// ServerConfig configures the API listener.
type ServerConfig struct {
	Addr         string   `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=API listen address"`
	CookieName   string   `koanf:"cookie_name" json:"cookie_name,omitempty" yaml:"cookie_name"`
	CookieSecure bool     `koanf:"cookie_secure" json:"cookie_secure,omitempty" yaml:"cookie_secure"`
	PublicPaths  []string `koanf:"public_paths" json:"public_paths,omitempty" yaml:"public_paths" jsonschema:"description=Glob patterns reachable without a session; optional METHOD prefix"`
	CORSOrigins  []string `koanf:"cors_origins" json:"cors_origins,omitempty" yaml:"cors_origins"`
}

// ObservabilityConfig configures the metrics and health listener.
type ObservabilityConfig struct {
	// Addr is disabled when empty.
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL         string `koanf:"url" json:"url,omitempty" yaml:"url" jsonschema:"description=PostgreSQL URL; DATABASE_URL is used when empty"`
	AutoMigrate bool   `koanf:"auto_migrate" json:"auto_migrate,omitempty" yaml:"auto_migrate"`
	MaxConns    int32  `koanf:"max_conns" json:"max_conns,omitempty" yaml:"max_conns" jsonschema:"minimum=0"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	URL    string `koanf:"url" json:"url,omitempty" yaml:"url" jsonschema:"description=Redis URL; REDIS_URL is used when empty"`
	Prefix string `koanf:"prefix" json:"prefix,omitempty" yaml:"prefix"`
}

// SessionsConfig configures the session manager.
type SessionsConfig struct {
	Store         string        `koanf:"store" json:"store,omitempty" yaml:"store" jsonschema:"enum=memory,enum=postgres,enum=redis"`
	MaxPerUser    int           `koanf:"max_per_user" json:"max_per_user,omitempty" yaml:"max_per_user" jsonschema:"minimum=1"`
	Policy        string        `koanf:"policy" json:"policy,omitempty" yaml:"policy" jsonschema:"enum=evict-oldest,enum=reject"`
	IdleTimeout   time.Duration `koanf:"idle_timeout" json:"idle_timeout,omitempty" yaml:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval,omitempty" yaml:"sweep_interval"`
}

// PasswordConfig configures password hashing.
type PasswordConfig struct {
	Algorithm     string `koanf:"algorithm" json:"algorithm,omitempty" yaml:"algorithm" jsonschema:"enum=argon2id,enum=bcrypt"`
	Argon2Time    uint32 `koanf:"argon2_time" json:"argon2_time,omitempty" yaml:"argon2_time" jsonschema:"minimum=1"`
	Argon2Memory  uint32 `koanf:"argon2_memory" json:"argon2_memory,omitempty" yaml:"argon2_memory" jsonschema:"description=Memory in KiB"`
	Argon2Threads uint8  `koanf:"argon2_threads" json:"argon2_threads,omitempty" yaml:"argon2_threads" jsonschema:"minimum=1"`
	BcryptCost    int    `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" yaml:"bcrypt_cost" jsonschema:"minimum=4,maximum=31"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the built-in configuration: in-memory sessions, one session
// per user with evict-oldest and a 30 minute idle timeout, argon2id hashes.
func Default() Config {
	session := auth.DefaultSessionOptions()
	argon := auth.DefaultArgon2Params()
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CookieName:  web.DefaultCookieName,
			PublicPaths: append([]string(nil), web.DefaultPublicPaths...),
			CORSOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		Observability: ObservabilityConfig{Addr: ":9100"},
		Database:      DatabaseConfig{AutoMigrate: true},
		Redis:         RedisConfig{Prefix: "youchat"},
		Sessions: SessionsConfig{
			Store:         StoreMemory,
			MaxPerUser:    session.MaxSessions,
			Policy:        string(session.Policy),
			IdleTimeout:   session.IdleTimeout,
			SweepInterval: time.Minute,
		},
		Password: PasswordConfig{
			Algorithm:     auth.AlgorithmArgon2id,
			Argon2Time:    argon.Time,
			Argon2Memory:  argon.Memory,
			Argon2Threads: argon.Threads,
			BcryptCost:    12,
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "server address is required")
	}
	if c.Server.CookieName == "" {
		return invalid("server.cookie_name", "cookie name is required")
	}

	switch c.Sessions.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "postgres session store requires a database URL")
		}
		// The per-user session lock holds a connection while others do the work.
		if c.Database.MaxConns == 1 {
			return invalid("database.max_conns", "postgres session store needs at least 2 connections")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return invalid("redis.url", "redis session store requires a redis URL")
		}
		// Shared sessions outlive in-memory accounts, whose ids restart at 1.
		if c.Database.URL == "" {
			return invalid("database.url", "redis session store requires a database URL for accounts")
		}
	default:
		return invalid("sessions.store", "unknown session store %q", c.Sessions.Store)
	}
	if c.Sessions.MaxPerUser < 1 {
		return invalid("sessions.max_per_user", "max sessions per user must be at least 1")
	}
	if _, err := auth.ParseConcurrencyPolicy(c.Sessions.Policy); err != nil {
		return invalid("sessions.policy", "unknown session concurrency policy %q", c.Sessions.Policy)
	}
	if c.Sessions.IdleTimeout < 0 {
		return invalid("sessions.idle_timeout", "idle timeout cannot be negative")
	}
	if c.Sessions.SweepInterval < 0 {
		return invalid("sessions.sweep_interval", "sweep interval cannot be negative")
	}

	switch c.Password.Algorithm {
	case auth.AlgorithmArgon2id:
		if c.Password.Argon2Time == 0 || c.Password.Argon2Memory == 0 || c.Password.Argon2Threads == 0 {
			return invalid("password", "argon2 time, memory and threads must be positive")
		}
	case auth.AlgorithmBcrypt:
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return invalid("password.bcrypt_cost", "bcrypt cost must be between 4 and 31")
		}
	default:
		return invalid("password.algorithm", "unknown password algorithm %q", c.Password.Algorithm)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	return nil
}

// SessionOptions converts the session settings.
func (c Config) SessionOptions() auth.SessionOptions {
	return auth.SessionOptions{
		MaxSessions: c.Sessions.MaxPerUser,
		Policy:      auth.ConcurrencyPolicy(c.Sessions.Policy),
		IdleTimeout: c.Sessions.IdleTimeout,
	}
}

// Argon2Params converts the argon2 settings.
func (c Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Password.Argon2Time,
		Memory:  c.Password.Argon2Memory,
		Threads: c.Password.Argon2Threads,
	}
}

func invalid(field, format string, args ...any) error {
	return oops.Code(CodeInvalidConfig).With("field", field).Errorf(format, args...)
}

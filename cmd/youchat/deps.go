// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/youchat/youchat/internal/store"
)

// AutoMigrator is the part of store.Migrator used at start-up.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolOpener connects to PostgreSQL.
	// Default: store.OpenPool
	PoolOpener func(ctx context.Context, url string, opts store.PoolOptions, logger *slog.Logger) (*pgxpool.Pool, error)

	// MigratorFactory creates the start-up migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// RedisFactory creates the Redis client for the session store.
	// Default: newRedisClient
	RedisFactory func(url string) (redis.UniversalClient, error)

	// LogOutput receives log records. Default: stderr.
	LogOutput io.Writer

	// OnReady is called with the bound API and observability addresses
	// once both listeners accept connections. Optional.
	OnReady func(apiAddr, observabilityAddr string)
}

func (d *ServeDeps) applyDefaults() {
	if d.PoolOpener == nil {
		d.PoolOpener = store.OpenPool
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = newRedisClient
	}
}

// newRedisClient parses a redis:// or rediss:// URL.
func newRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_INVALID_URL").Wrap(err)
	}
	return redis.NewClient(opts), nil
}

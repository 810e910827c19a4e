// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package store provides PostgreSQL connectivity and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Querier is the subset of *pgxpool.Pool used by repositories. pgxmock pools
// satisfy it too.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// PoolOptions configures OpenPool.
type PoolOptions struct {
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	// ConnectRetries is the number of extra ping attempts at start-up.
	ConnectRetries uint64
	// ConnectBackoff is the initial delay between attempts; it doubles each
	// time, capped at 30s.
	ConnectBackoff time.Duration
}

// DefaultPoolOptions retries the start-up ping five times from 500ms.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{ConnectRetries: 5, ConnectBackoff: 500 * time.Millisecond}
}

const maxConnectBackoff = 30 * time.Second

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// OpenPool connects to databaseURL and waits until the server answers a
// ping. This is the only place the service retries a failed operation.
func OpenPool(ctx context.Context, databaseURL string, opts PoolOptions, logger *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool, opts, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, db pinger, opts PoolOptions, logger *slog.Logger) error {
	base := opts.ConnectBackoff
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(opts.ConnectRetries,
		retry.WithCappedDuration(maxConnectBackoff, retry.NewExponential(base)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not reachable", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

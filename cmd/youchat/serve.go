// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/internal/auth/memory"
	"github.com/youchat/youchat/internal/auth/postgres"
	"github.com/youchat/youchat/internal/auth/redisstore"
	"github.com/youchat/youchat/internal/config"
	"github.com/youchat/youchat/internal/observability"
	"github.com/youchat/youchat/internal/store"
	"github.com/youchat/youchat/internal/web"
	"github.com/youchat/youchat/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the authentication API together with the metrics and health
endpoints. Without a database URL, accounts and sessions are kept in memory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if path != "" {
				cmd.Printf("Using configuration %s\n", path)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the server until a signal arrives, ctx is cancelled
// or a listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	logger := setupLogging(cfg, deps.LogOutput)
	logger.Info("starting youchat",
		"addr", cfg.Server.Addr,
		"session_store", cfg.Sessions.Store,
		"max_sessions", cfg.Sessions.MaxPerUser,
		"policy", cfg.Sessions.Policy)

	checks := map[string]observability.ReadinessCheck{}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		if cfg.Database.AutoMigrate {
			if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
				return err
			}
		}
		opts := store.DefaultPoolOptions()
		opts.MaxConns = cfg.Database.MaxConns
		var err error
		pool, err = deps.PoolOpener(ctx, cfg.Database.URL, opts, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		checks["database"] = pool.Ping
	}

	var users auth.UserRepository
	if pool != nil {
		users = postgres.NewUserRepository(pool)
	} else {
		logger.Warn("no database configured, accounts are kept in memory")
		users = memory.NewUserRepository()
	}

	var sessionRepo auth.SessionRepository
	switch cfg.Sessions.Store {
	case config.StorePostgres:
		sessionRepo = postgres.NewSessionRepository(pool)
	case config.StoreRedis:
		rdb, err := deps.RedisFactory(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Debug("error closing redis client", "error", closeErr)
			}
		}()
		repo := redisstore.NewSessionRepository(rdb, redisstore.Options{
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Sessions.IdleTimeout,
			Logger: logger,
		})
		checks["redis"] = repo.Ping
		sessionRepo = repo
	default:
		sessionRepo = memory.NewSessionRepository()
	}

	encoder, err := auth.NewDelegatingEncoder(cfg.Password.Algorithm, cfg.Argon2Params(), cfg.Password.BcryptCost)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionManager(sessionRepo, cfg.SessionOptions(), logger)
	if err != nil {
		return err
	}
	authService, err := auth.NewAuthService(users, encoder, sessions, logger)
	if err != nil {
		return err
	}
	userService, err := auth.NewUserService(users, encoder, sessions, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer *observability.Server
	var obsErrCh <-chan error
	routerOpts := web.RouterOptions{
		Auth:        authService,
		Sessions:    sessions,
		Accounts:    userService,
		Logger:      logger,
		Cookie:      cookieOptions(cfg),
		PublicPaths: cfg.Server.PublicPaths,
		CORS:        corsOptions(cfg),
	}
	if cfg.Observability.Addr != "" {
		obsServer = observability.NewServer(cfg.Observability.Addr, logger, checks)
		auth.RegisterMetrics(obsServer.Registry())
		routerOpts.Requests = obsServer.Metrics().HTTPRequests

		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		defer stopServer(logger, "observability", obsServer.Stop)
	}

	router, err := web.NewRouter(routerOpts)
	if err != nil {
		return err
	}
	apiServer := web.NewServer(cfg.Server.Addr, router, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return err
	}
	defer stopServer(logger, "api", apiServer.Stop)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.RunSweeper(ctx, cfg.Sessions.SweepInterval)
	}()
	defer wg.Wait()
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	obsAddr := ""
	if obsServer != nil {
		obsAddr = obsServer.Addr()
	}
	if cmd != nil {
		cmd.Printf("YouChat listening on %s\n", apiServer.Addr())
	}
	logger.Info("youchat ready", "addr", apiServer.Addr(), "observability_addr", obsAddr)
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr(), obsAddr)
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case err := <-apiErrCh:
		if err != nil {
			return oops.Code("API_SERVER_FAILED").Wrap(err)
		}
	case err := <-obsErrCh:
		if err != nil {
			return oops.Code("OBSERVABILITY_SERVER_FAILED").Wrap(err)
		}
	}

	logger.Info("shutting down")
	return nil
}

func autoMigrate(deps *ServeDeps, url string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

func cookieOptions(cfg config.Config) web.CookieOptions {
	opts := web.DefaultCookieOptions()
	opts.Name = cfg.Server.CookieName
	opts.Secure = cfg.Server.CookieSecure
	return opts
}

// corsOptions returns nil when no origin is allowed.
func corsOptions(cfg config.Config) *cors.Options {
	if len(cfg.Server.CORSOrigins) == 0 {
		return nil
	}
	opts := web.DefaultCORSOptions()
	opts.AllowedOrigins = cfg.Server.CORSOrigins
	return &opts
}

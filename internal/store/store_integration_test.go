// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

//go:build integration

package store_test

import (
	"context"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/youchat/youchat/internal/store"
)

// startPostgres starts a PostgreSQL container and returns its URL.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("youchat_test"),
		postgres.WithUsername("youchat"),
		postgres.WithPassword("youchat"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx      context.Context
		connStr  string
		cleanup  func()
		migrator *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		connStr, cleanup, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if cleanup != nil {
			cleanup()
		}
	})

	It("starts at version 0 with every migration pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(Equal([]uint{1, 2}))
	})

	It("applies all migrations", func() {
		Expect(migrator.Up()).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(2)))
		Expect(status.Applied).To(Equal([]uint{1, 2}))
		Expect(status.Pending).To(BeEmpty())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps back and forward", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("creates tables usable through the pool", func() {
		pool, err := store.OpenPool(ctx, connStr, store.DefaultPoolOptions(), slog.New(slog.DiscardHandler))
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var id int64
		err = pool.QueryRow(ctx,
			`INSERT INTO users (username, password_hash, nickname) VALUES ($1, $2, $3) RETURNING id`,
			"alice", "$argon2id$x", "Alice").Scan(&id)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx,
			`INSERT INTO sessions (token_hash, id, user_id, username, authorities, created_at, last_access_at)
			 VALUES ($1, $2, $3, $4, $5, now(), now())`,
			strings.Repeat("a", 64),
			"01ARZ3NDEKTSV4RRFFQ69G5FAV", id, "alice", []string{"ROLE_USER"})
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		Expect(err).NotTo(HaveOccurred())

		var sessions int
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&sessions)).To(Succeed())
		Expect(sessions).To(BeZero(), "sessions cascade with their user")
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})
})

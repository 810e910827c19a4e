// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youchat/youchat/pkg/errutil"
)

type fakePinger struct {
	failures int
	calls    int
}

func (p *fakePinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestPingWithRetry_SucceedsAfterFailures(t *testing.T) {
	p := &fakePinger{failures: 2}
	opts := PoolOptions{ConnectRetries: 3, ConnectBackoff: time.Millisecond}

	err := pingWithRetry(context.Background(), p, opts, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestPingWithRetry_GivesUp(t *testing.T) {
	p := &fakePinger{failures: 100}
	opts := PoolOptions{ConnectRetries: 2, ConnectBackoff: time.Millisecond}

	err := pingWithRetry(context.Background(), p, opts, testLogger())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 3)
	assert.Equal(t, 3, p.calls, "one attempt plus two retries")
}

func TestPingWithRetry_NoRetries(t *testing.T) {
	p := &fakePinger{failures: 1}
	err := pingWithRetry(context.Background(), p, PoolOptions{}, testLogger())
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestPingWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakePinger{failures: 100}
	opts := PoolOptions{ConnectRetries: 10, ConnectBackoff: time.Hour}

	err := pingWithRetry(ctx, p, opts, testLogger())
	require.Error(t, err)
	assert.LessOrEqual(t, p.calls, 1)
}

func TestOpenPool_InvalidURL(t *testing.T) {
	_, err := OpenPool(context.Background(), "::not a url::", DefaultPoolOptions(), testLogger())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

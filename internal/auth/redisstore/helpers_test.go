// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package redisstore_test

import "log/slog"

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

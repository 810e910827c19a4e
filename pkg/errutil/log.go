// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package errutil provides helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error, args ...any) {
	LogErrorContext(context.Background(), logger, msg, err, args...)
}

// LogErrorContext is LogError with a context, so handlers can attach trace
// ids. Extra args are appended as slog key/value pairs.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, args ...any) {
	attrs := make([]any, 0, len(args)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if octx := oopsErr.Context(); len(octx) > 0 {
			attrs = append(attrs, "context", octx)
		}
	} else {
		attrs = append(attrs, "error", err)
	}
	attrs = append(attrs, args...)
	logger.ErrorContext(ctx, msg, attrs...)
}

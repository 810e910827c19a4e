// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/youchat/youchat/internal/auth"
)

// SessionRestorer resolves session tokens to identities.
type SessionRestorer interface {
	Restore(ctx context.Context, token string) (auth.Identity, error)
}

// RequireSession rejects requests without a valid session unless they match
// public. The restored identity is stored in the request context.
func RequireSession(sessions SessionRestorer, cookie CookieOptions, public *PublicPaths, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || public.Match(r) {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := sessions.Restore(r.Context(), cookie.token(r))
			if err != nil {
				if auth.KindOf(err) != auth.KindSessionExpiredOrMissing {
					logger.WarnContext(r.Context(), "session restore failed",
						"path", r.URL.Path,
						"error", err)
				}
				writeError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", statusOf(ww),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if identity, ok := auth.IdentityFromContext(r.Context()); ok {
				attrs = append(attrs, "username", identity.Username())
			}
			level := slog.LevelInfo
			if statusOf(ww) >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

// RequestMetrics counts requests by route pattern and status.
func RequestMetrics(requests *prometheus.CounterVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = r.Method + " " + p
				}
			}
			requests.WithLabelValues(route, strconv.Itoa(statusOf(ww))).Inc()
		})
	}
}

// statusOf treats a handler that wrote nothing as 200, as net/http does.
func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

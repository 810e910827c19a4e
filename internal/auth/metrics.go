// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Login outcomes recorded by LoginAttempts.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidRequest     = "invalid_request"
	OutcomeUserNotFound       = "user_not_found"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeSessionLimit       = "session_limit"
	OutcomeError              = "error"
)

// Session invalidation reasons recorded by SessionsInvalidated.
const (
	ReasonLogout   = "logout"
	ReasonEvicted  = "evicted"
	ReasonIdle     = "idle"
	ReasonMigrated = "migrated"
	ReasonAccount  = "account_deleted"
)

// LoginAttempts counts login attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "youchat_login_attempts_total",
		Help: "Total number of login attempts by outcome",
	},
	[]string{"outcome"},
)

// SessionsCreated counts issued sessions.
var SessionsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "youchat_sessions_created_total",
		Help: "Total number of sessions created",
	},
)

// SessionsInvalidated counts removed sessions by reason.
var SessionsInvalidated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "youchat_sessions_invalidated_total",
		Help: "Total number of sessions invalidated by reason",
	},
	[]string{"reason"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(SessionsCreated)
	reg.MustRegister(SessionsInvalidated)
}

func recordLogin(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

func recordInvalidated(reason string, n int64) {
	if n > 0 {
		SessionsInvalidated.WithLabelValues(reason).Add(float64(n))
	}
}

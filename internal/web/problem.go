// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/youchat/youchat/internal/auth"
	"github.com/youchat/youchat/pkg/errutil"
)

// ContentTypeProblem is the RFC 7807 media type.
const ContentTypeProblem = "application/problem+json"

// Problem details returned to clients.
const (
	DetailAuthenticationFailed   = "authentication failed"
	DetailAuthenticationRequired = "authentication required"
	DetailInvalidRequest         = "request validation failed"
	DetailUsernameTaken          = "username already exists"
	DetailInternal               = "internal server error"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemFor maps err to its status code and client-facing detail. Causes
// never leak; only oops public messages of validation errors are shown.
func problemFor(err error) (int, string) {
	kind := auth.KindOf(err)
	switch {
	case kind == auth.KindInvalidRequest:
		return http.StatusBadRequest, oops.GetPublic(err, DetailInvalidRequest)
	case kind == auth.KindSessionExpiredOrMissing:
		return http.StatusUnauthorized, DetailAuthenticationRequired
	case kind.IsAuthentication():
		return http.StatusUnauthorized, DetailAuthenticationFailed
	case kind == auth.KindUsernameTaken:
		return http.StatusConflict, DetailUsernameTaken
	default:
		return http.StatusInternalServerError, DetailInternal
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", ContentTypeProblem)
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// writeError renders err as a problem. Server-side failures are logged with
// their full cause.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, detail := problemFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
	writeProblem(w, r, status, detail)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/youchat/youchat/internal/auth"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Authenticator performs logins.
type Authenticator interface {
	Authenticate(ctx context.Context, req auth.LoginRequest, priorToken string) (auth.Identity, string, error)
}

// SessionInvalidator ends sessions.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, token string) error
}

// Accounts manages user accounts.
type Accounts interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.CredentialRecord, error)
	Current(ctx context.Context, identity auth.Identity) (*auth.CredentialRecord, error)
	DeleteCurrent(ctx context.Context, identity auth.Identity) error
}

// AuthorityResponse is one granted authority.
type AuthorityResponse struct {
	Authority string `json:"authority"`
}

// IdentityResponse is returned by login and the current-user endpoints.
type IdentityResponse struct {
	Username    string              `json:"username"`
	Authorities []AuthorityResponse `json:"authorities"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	Message  string `json:"message"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
}

func identityResponse(id auth.Identity) IdentityResponse {
	authorities := id.Authorities()
	resp := IdentityResponse{
		Username:    id.Username(),
		Authorities: make([]AuthorityResponse, 0, len(authorities)),
	}
	for _, a := range authorities {
		resp.Authorities = append(resp.Authorities, AuthorityResponse{Authority: a})
	}
	return resp
}

type handlers struct {
	auth     Authenticator
	sessions SessionInvalidator
	accounts Accounts
	cookie   CookieOptions
	logger   *slog.Logger
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	identity, token, err := h.auth.Authenticate(r.Context(), req, h.cookie.token(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookie.set(w, token)
	writeJSON(w, http.StatusOK, identityResponse(identity))
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, DetailAuthenticationRequired)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse(identity))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Invalidate(r.Context(), h.cookie.token(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.cookie.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rec, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message:  "user registered successfully",
		UserID:   rec.ID,
		Username: rec.Username,
		Nickname: rec.Nickname,
	})
}

func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, DetailAuthenticationRequired)
		return
	}
	rec, err := h.accounts.Current(r.Context(), identity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse(auth.Resolve(*rec)))
}

func (h *handlers) deleteCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, DetailAuthenticationRequired)
		return
	}
	if err := h.accounts.DeleteCurrent(r.Context(), identity); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.cookie.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a single JSON object into v. Malformed bodies are
// invalid requests.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return auth.InvalidRequest("malformed request body", err)
	}
	return nil
}

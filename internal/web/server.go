// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

// Package web exposes the authentication and account API over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// SessionService restores and ends sessions.
type SessionService interface {
	SessionRestorer
	SessionInvalidator
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Auth     Authenticator
	Sessions SessionService
	Accounts Accounts
	Logger   *slog.Logger

	Cookie CookieOptions
	// PublicPaths defaults to DefaultPublicPaths when nil.
	PublicPaths []string
	// CORS is skipped when nil.
	CORS *cors.Options
	// Requests counts requests by route and status. Optional.
	Requests *prometheus.CounterVec
}

// DefaultCORSOptions allows credentialed requests from a local frontend.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles the API router.
func NewRouter(opts RouterOptions) (chi.Router, error) {
	if opts.Auth == nil || opts.Sessions == nil || opts.Accounts == nil {
		return nil, oops.Errorf("authenticator, session service and accounts are required")
	}
	if opts.Logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if opts.Cookie.Name == "" {
		def := DefaultCookieOptions()
		def.Secure = opts.Cookie.Secure
		opts.Cookie = def
	}
	if opts.PublicPaths == nil {
		opts.PublicPaths = DefaultPublicPaths
	}
	public, err := NewPublicPaths(opts.PublicPaths)
	if err != nil {
		return nil, err
	}

	h := &handlers{
		auth:     opts.Auth,
		sessions: opts.Sessions,
		accounts: opts.Accounts,
		cookie:   opts.Cookie,
		logger:   opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Requests != nil {
		r.Use(RequestMetrics(opts.Requests))
	}
	if opts.CORS != nil {
		r.Use(cors.Handler(*opts.CORS))
	}
	r.Use(RequireSession(opts.Sessions, opts.Cookie, public, opts.Logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.login)
		r.Post("/auth/logout", h.logout)
		r.Get("/auth/me", h.me)

		r.Post("/users", h.register)
		r.Get("/users/current", h.currentUser)
		r.Delete("/users/current", h.deleteCurrentUser)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r, nil
}

// Server serves the API.
type Server struct {
	addr       string
	handler    http.Handler
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server for handler on addr ("host:port").
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start begins serving. The returned channel receives a serve failure and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_web_server").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

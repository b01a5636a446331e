// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the authentication service over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authcore/internal/auth"
)

// DefaultCookieName is the session cookie used when Options leaves it empty.
const DefaultCookieName = "session_id"

const tracerName = "github.com/holomush/authcore/internal/web"

// RequestRecorder counts handled HTTP requests.
type RequestRecorder interface {
	RecordRequest(route, code string)
}

type noopRequestRecorder struct{}

func (noopRequestRecorder) RecordRequest(string, string) {}

// Options configures a Server.
type Options struct {
	Addr          string
	CookieName    string
	ExcludedPaths []string
	Logger        *slog.Logger
	Metrics       RequestRecorder
}

// Server serves the authentication routes.
type Server struct {
	addr       string
	cookieName string
	service    *auth.Service
	basic      *auth.BasicExtractor
	policy     *PathPolicy
	logger     *slog.Logger
	metrics    RequestRecorder
	tracer     trace.Tracer
	router     *mux.Router

	running    atomic.Bool
	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// NewServer builds the router for service. basic authenticates the /api/v1
// routes.
func NewServer(service *auth.Service, basic *auth.BasicExtractor, opts Options) (*Server, error) {
	if service == nil {
		return nil, oops.In("web").Errorf("authentication service is required")
	}
	if basic == nil {
		return nil, oops.In("web").Errorf("basic credential extractor is required")
	}

	policy, err := NewPathPolicy(opts.ExcludedPaths)
	if err != nil {
		return nil, err
	}

	s := &Server{
		addr:       opts.Addr,
		cookieName: opts.CookieName,
		service:    service,
		basic:      basic,
		policy:     policy,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     otel.Tracer(tracerName),
	}
	if s.cookieName == "" {
		s.cookieName = DefaultCookieName
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopRequestRecorder{}
	}

	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve error, if any, and is closed when
// the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpSrv
	s.mu.Unlock()

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

	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()

	if err := httpSrv.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("WEB_SHUTDOWN_FAILED").With("operation", "shutdown_web_server").Wrap(err)
	}

	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

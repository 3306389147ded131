// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the REST interface used by the dashboard and
// reporting layer.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const RequestIDHeader = "X-Request-Id"

type Config struct {
	// TLSConfig enables TLS on the listener when set
	TLSConfig       *tls.Config
	PromRegistry    prometheus.Registerer
	ListenAddress   string
	PrincipalSource PrincipalSource
}

// Server is the REST API server
type Server struct {
	config     Config
	logger     *slog.Logger
	engine     Engine
	treasury   Treasury
	journal    Journal
	httpServer *http.Server
	listenAddr net.Addr
	requests   *prometheus.CounterVec
	mu         sync.Mutex
}

// New creates a new API server instance
func New(
	cfg Config,
	engine Engine,
	treasury Treasury,
	journal Journal,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.PrincipalSource == "" {
		cfg.PrincipalSource = PrincipalSourceHeader
	}
	s := &Server{
		config:   cfg,
		logger:   logger,
		engine:   engine,
		treasury: treasury,
		journal:  journal,
	}
	if cfg.PromRegistry != nil {
		s.requests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barangay_api_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "code"},
		)
		cfg.PromRegistry.MustRegister(s.requests)
	}
	return s
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /health", s.handleHealth)
	s.route(mux, "GET /api/v0/projects", s.handleListProjects)
	s.route(mux, "POST /api/v0/projects", s.handleCreateProject)
	s.route(mux, "GET /api/v0/projects/count", s.handleProjectCount)
	s.route(mux, "GET /api/v0/projects/{id}", s.handleGetProject)
	s.route(mux, "GET /api/v0/projects/{id}/milestones/{index}", s.handleGetMilestone)
	s.route(
		mux,
		"GET /api/v0/projects/{id}/milestones/{index}/votes/{voter}",
		s.handleHasVoted,
	)
	s.route(mux, "POST /api/v0/projects/{id}/milestones/submit", s.handleSubmitMilestone)
	s.route(mux, "POST /api/v0/projects/{id}/milestones/verify", s.handleVerifyMilestone)
	s.route(mux, "POST /api/v0/projects/{id}/milestones/complete", s.handleCompleteMilestone)
	s.route(mux, "GET /api/v0/projects/{id}/releases", s.handleReleases)
	s.route(mux, "GET /api/v0/projects/{id}/events", s.handleProjectEvents)
	s.route(mux, "GET /api/v0/events", s.handleEvents)
	s.route(mux, "GET /api/v0/treasury", s.handleTreasury)
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// route registers a handler wrapped with request id assignment, request
// logging and metrics
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(rec, r)
		s.logger.Debug(
			"handled request",
			"route", pattern,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", requestID,
			"duration", time.Since(start),
		)
		if s.requests != nil {
			s.requests.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
		}
	})
}

// Start starts the HTTP server in a background goroutine
func (s *Server) Start(
	ctx context.Context,
) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		TLSConfig:         s.config.TLSConfig,
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.mu.Unlock()

	// Bind first so that port conflicts are reported to the caller
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	if s.config.TLSConfig != nil {
		ln = tls.NewListener(ln, s.config.TLSConfig)
	}
	s.mu.Lock()
	s.listenAddr = ln.Addr()
	s.mu.Unlock()
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	s.logger.Info(
		"API listener started",
		"address", ln.Addr().String(),
		"tls", s.config.TLSConfig != nil,
	)

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Addr returns the address the server listens on, or nil if not started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(
	ctx context.Context,
) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

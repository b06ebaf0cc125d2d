package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/nettrace/pkg/capture"
	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/spanstore"
	"mercator-hq/nettrace/pkg/telemetry/health"
)

// SpanQuerier reads stored spans. *spanstore.Store implements it.
type SpanQuerier interface {
	Query(ctx context.Context, q *spanstore.Query) ([]*spanstore.Record, error)
	Count(ctx context.Context, q *spanstore.Query) (int64, error)
}

// Options selects the endpoints the server exposes. Nil fields disable the
// corresponding routes.
type Options struct {
	// Metrics serves MetricsPath.
	Metrics     http.Handler
	MetricsPath string

	Health       *health.Checker
	HealthConfig *config.HealthConfig
	Version      string
	Commit       string
	BuildTime    string

	// State and InFlight back GET /api/v1/capture.
	State    capture.StateSource
	InFlight func() int

	// Spans backs GET /api/v1/spans.
	Spans SpanQuerier

	Logger *slog.Logger
}

// Server is the agent's local HTTP server.
type Server struct {
	config     *config.ServerConfig
	opts       Options
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server

	mu        sync.RWMutex
	isRunning bool
	addr      net.Addr
	once      sync.Once
}

// NewServer creates a new server.
func NewServer(cfg *config.ServerConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		opts:   opts,
		logger: logger.With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.once.Do(func() {
		s.mu.RLock()
		srv := s.httpServer
		s.mu.RUnlock()
		if srv == nil {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("http server stopped")
	})

	return shutdownErr
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	if s.opts.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = config.DefaultPrometheusPath
		}
		mux.Handle(path, s.opts.Metrics)
	}

	if s.opts.Health != nil && s.opts.HealthConfig != nil {
		health.Mount(mux, s.opts.HealthConfig, s.opts.Health, s.opts.Version, s.opts.Commit, s.opts.BuildTime)
	}

	if s.opts.State != nil {
		mux.HandleFunc("GET /api/v1/capture", s.handleCapture)
	}
	if s.opts.Spans != nil {
		mux.HandleFunc("GET /api/v1/spans", s.handleSpans)
		mux.HandleFunc("GET /api/v1/spans/count", s.handleSpanCount)
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	return handler
}

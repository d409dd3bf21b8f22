// Package server runs SmolRouter's HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/proxy"
	"github.com/mitchins/SmolRouter/pkg/proxy/handlers"
	"github.com/mitchins/SmolRouter/pkg/proxy/middleware"
	"github.com/mitchins/SmolRouter/pkg/proxy/types"
	"github.com/mitchins/SmolRouter/pkg/telemetry/health"
	"github.com/mitchins/SmolRouter/pkg/telemetry/metrics"
	"github.com/mitchins/SmolRouter/pkg/telemetry/tracing"
)

// Dependencies are the components the server routes to.
type Dependencies struct {
	Engine *dispatch.Engine

	// Metrics is optional. When nil or disabled, no metrics endpoint is
	// mounted.
	Metrics     *metrics.Collector
	MetricsPath string

	// Health is optional; without it only /health is served.
	Health *health.Checker

	Version, Commit, BuildTime string
}

// Server is the inbound HTTP server.
type Server struct {
	config       config.ServerConfig
	deps         Dependencies
	httpServer   *http.Server
	listener     net.Listener
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// NewServer creates a server for cfg.
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	return &Server{
		config:       cfg,
		deps:         deps,
		shutdownChan: make(chan struct{}),
		logger:       slog.Default().With("component", "server"),
	}
}

// Start listens on the configured address and serves until ctx is
// cancelled, SIGINT or SIGTERM arrives, or Stop is called. It then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Serve to shut down.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Shutdown stops accepting connections and waits up to the configured
// shutdown timeout for in-flight requests, streams included.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		srv := s.httpServer
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	var recorder middleware.RequestRecorder
	if s.deps.Metrics != nil {
		recorder = s.deps.Metrics
	}

	// Recovery is outermost so a panic anywhere below still gets an answer.
	r.Use(middleware.RecoveryMiddleware)
	r.Use(tracing.HTTPMiddleware)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.SourceHostMiddleware(s.sourceHostFrom))
	r.Use(middleware.LoggingMiddleware(recorder))

	engine := s.deps.Engine
	maxBody := s.config.MaxBodyBytes

	r.Method(http.MethodPost, "/v1/chat/completions", handlers.NewDispatchHandler(engine, providers.ShapeOpenAIChat, maxBody))
	r.Method(http.MethodPost, "/v1/completions", handlers.NewDispatchHandler(engine, providers.ShapeOpenAICompletion, maxBody))
	r.Method(http.MethodPost, "/api/generate", handlers.NewDispatchHandler(engine, providers.ShapeOllamaGenerate, maxBody))
	r.Method(http.MethodPost, "/api/chat", handlers.NewDispatchHandler(engine, providers.ShapeOllamaChat, maxBody))
	r.Method(http.MethodGet, "/v1/models", handlers.NewModelsHandler(engine))
	r.Method(http.MethodGet, "/api/tags", handlers.NewTagsHandler(engine))

	checker := s.deps.Health
	if checker == nil {
		checker = health.New(0)
	}
	r.Get("/health", checker.LivenessHandler())
	r.Head("/health", checker.LivenessHandler())
	r.Get("/ready", checker.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))

	if m := s.deps.Metrics; m != nil && m.Enabled() {
		path := s.deps.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		r.Method(http.MethodGet, path, m.Handler())
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	return r
}

func (s *Server) sourceHostFrom() string {
	if s.deps.Engine == nil {
		return middleware.SourceHostFromIP
	}
	return s.deps.Engine.Snapshot().SourceHostFrom
}

func notFound(w http.ResponseWriter, r *http.Request) {
	errResp := types.NewInvalidRequestError(fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path), "", types.CodeNotFound)
	_ = proxy.WriteErrorResponse(w, http.StatusNotFound, errResp)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	errResp := types.NewInvalidRequestError(fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path), "method", types.CodeMethodNotAllowed)
	_ = proxy.WriteErrorResponse(w, http.StatusMethodNotAllowed, errResp)
}

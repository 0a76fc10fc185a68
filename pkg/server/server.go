// Package server assembles the gateway's HTTP surface: routes, the
// middleware chain, and graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nexus-hq/nexus/pkg/proxy/handlers"
	"nexus-hq/nexus/pkg/proxy/middleware"
	"nexus-hq/nexus/pkg/telemetry"
)

// shutdownTimeout bounds the graceful-shutdown drain. In-flight requests
// beyond it are cut off.
const shutdownTimeout = 30 * time.Second

// Server is the gateway HTTP server.
type Server struct {
	addr       string
	handler    *handlers.Handler
	metrics    *telemetry.Metrics
	httpServer *http.Server

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool

	logger *slog.Logger
}

// New creates a Server listening on addr. Metrics may be nil; the /metrics
// route is only mounted when they are enabled.
func New(addr string, handler *handlers.Handler, metrics *telemetry.Metrics) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		metrics: metrics,
		logger:  slog.Default().With("component", "server"),
	}
}

// Start runs the server and blocks until a shutdown signal, context
// cancellation, or a listener failure. Bind failures are returned
// immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		return err
	}
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the fully-assembled route tree, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// routes mounts every gateway route and wraps the mux in the middleware
// chain: recovery outermost, then request id, CORS, and logging.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", s.handler.HandleChatCompletions)
	mux.HandleFunc("POST /v1/embeddings", s.handler.HandleEmbeddings)
	mux.HandleFunc("POST /v1/audio/transcriptions", s.handler.HandleTranscriptions)
	mux.HandleFunc("POST /v1/audio/translations", s.handler.HandleTranslations)
	mux.HandleFunc("POST /v1/audio/speech", s.handler.HandleSpeech)
	mux.HandleFunc("POST /v1/images/generations", s.handler.HandleImageGenerations)
	mux.HandleFunc("POST /v1/images/edits", s.handler.HandleImageEdits)

	mux.HandleFunc("POST /admin/servers/register", s.handler.HandleRegisterServer)
	mux.HandleFunc("POST /admin/servers/unregister", s.handler.HandleUnregisterServer)
	mux.HandleFunc("GET /admin/servers", s.handler.HandleListServers)

	mux.HandleFunc("GET /v1/models", s.handler.HandleModels)
	mux.HandleFunc("GET /v1/info", s.handler.HandleInfo)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

// Package server exposes the mirror's command surface over HTTP: read
// endpoints for positions, history and totals, and mutation endpoints for
// the tracked wallet and the scaling policy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/server/handler"
	"github.com/alanyoungcy/polycopy/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter, when non-nil, limits each client to RateLimit requests
	// per RateWindow.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Book    *handler.BookHandler
	Tracker *handler.TrackerHandler
}

// Server is the headless HTTP API server for the copy mirror.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (logging, CORS, auth, rate limit) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check. Sits behind the same middleware chain as everything
	// else, so it requires the API key when one is configured.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Book endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Book.ListPositions)
	mux.HandleFunc("GET /api/positions/{market}", handlers.Book.GetPosition)
	mux.HandleFunc("GET /api/history", handlers.Book.ListHistory)
	mux.HandleFunc("GET /api/totals", handlers.Book.GetTotals)

	// Tracker endpoints.
	mux.HandleFunc("GET /api/tracker", handlers.Tracker.GetTracker)
	mux.HandleFunc("PUT /api/tracker/wallet", handlers.Tracker.SetWallet)
	mux.HandleFunc("PUT /api/tracker/scaling", handlers.Tracker.SetScaling)

	var h http.Handler = mux

	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

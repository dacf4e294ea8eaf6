// Package server exposes the engine's HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/server/handler"
	"github.com/alanyoungcy/carbitrage/internal/server/middleware"
	"github.com/alanyoungcy/carbitrage/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit caps requests per client IP per RateWindow when a limiter
	// is supplied. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Hunts    *handler.HuntHandler
	Crawl    *handler.CrawlHandler
	Verify   *handler.VerifyHandler
	Listings *handler.ListingHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and builds the middleware chain. wsHub and
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// NewHandler returns the routed, middleware-wrapped API handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	if handlers.Hunts != nil {
		mux.HandleFunc("POST /api/hunts/rebuild-due", handlers.Hunts.RebuildDue)
		mux.HandleFunc("POST /api/hunts/{id}/rebuild", handlers.Hunts.Rebuild)
		mux.HandleFunc("GET /api/hunts/{id}/candidates", handlers.Hunts.Candidates)
	}
	if handlers.Crawl != nil {
		mux.HandleFunc("POST /api/crawl-runs", handlers.Crawl.Submit)
		mux.HandleFunc("POST /api/crawl-runs/replay", handlers.Crawl.Replay)
	}
	if handlers.Listings != nil {
		mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetListing)
		mux.HandleFunc("GET /api/crawl-runs", handlers.Listings.ListRuns)
		mux.HandleFunc("GET /api/audit", handlers.Listings.ListAudit)
	}
	if handlers.Verify != nil {
		mux.HandleFunc("POST /api/verify/trigger", handlers.Verify.Trigger)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if limiter != nil && cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down within 10 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

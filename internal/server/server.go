// Package server owns the HTTP surface: the chi router, global middleware,
// and the route table with its declared permission requirements. Every
// guarded route goes through the authorization pipeline; handlers read the
// resolved Principal from the request context and never re-derive
// authorization.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/airwavehq/airwave/internal/handler"
	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/ratelimit"
	"github.com/airwavehq/airwave/internal/server/middleware"
	"github.com/airwavehq/airwave/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	IPRatePerMinute int
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		IPRatePerMinute: 300,
		Version:         "dev",
	}
}

// Server is the top-level HTTP server for Airwave. It owns the chi router,
// the authorization pipeline, and the token issuance surface.
type Server struct {
	cfg        Config
	router     chi.Router
	pipeline   *middleware.Pipeline
	authSvc    *service.AuthService
	issuer     *service.Issuer
	gate       *ratelimit.Gate
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and
// returns it ready to listen.
func New(cfg Config, authSvc *service.AuthService, issuer *service.Issuer, gate *ratelimit.Gate, tiers map[model.Tier]model.TierLimit, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		authSvc:  authSvc,
		issuer:   issuer,
		gate:     gate,
		pipeline: middleware.NewPipeline(authSvc, gate, tiers, logger),
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Token", "X-Guest-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.IPRatePerMinute > 0 {
		r.Use(middleware.IPRateLimit(s.cfg.IPRatePerMinute))
	}

	authHandler := handler.NewAuthHandler(s.authSvc)
	tokenHandler := handler.NewTokenHandler(s.issuer)
	dirHandler := handler.NewDirectoryHandler()
	sysHandler := handler.NewSystemHandler(s.cfg.Version)

	guard := s.pipeline.Guard

	r.Route("/v1", func(r chi.Router) {
		// System probes (no auth required)
		r.Get("/system/health", sysHandler.Health)
		r.Get("/system/status", sysHandler.Status)

		// Credential endpoints
		r.Post("/auth/guest", authHandler.Guest)
		r.With(guard(middleware.Requirement{AllowGuest: true})).
			Get("/auth/whoami", authHandler.Whoami)

		// Token lifecycle
		r.Route("/tokens", func(r chi.Router) {
			r.With(guard(middleware.Requirement{Permissions: []string{"write:tokens"}})).
				Post("/", tokenHandler.Issue)
			r.With(guard(middleware.Requirement{Permissions: []string{"read:tokens"}})).
				Get("/", tokenHandler.List)
			r.With(guard(middleware.Requirement{Permissions: []string{"write:tokens"}})).
				Delete("/{id}", tokenHandler.Revoke)
		})

		// Directory records: each route declares its requirement; the
		// pipeline is the only authorization authority.
		for _, resource := range []string{"stations", "bands", "operators", "regions"} {
			resource := resource
			r.Route("/"+resource, func(r chi.Router) {
				read := middleware.Requirement{
					Permissions: []string{"read:" + resource},
					AllowGuest:  true,
				}
				write := middleware.Requirement{
					Permissions: []string{"write:" + resource},
				}
				r.With(guard(read)).Get("/", dirHandler.List(resource))
				r.With(guard(read)).Get("/{id}", dirHandler.Get(resource))
				r.With(guard(write)).Post("/", dirHandler.Create(resource))
			})
		}
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or
// SIGTERM is received, then drains in-flight requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.gate.Close()
	s.logger.Info("server stopped")
	return nil
}

// DenialsServed reports how many requests the pipeline has denied.
func (s *Server) DenialsServed() int64 {
	return s.pipeline.Denials()
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

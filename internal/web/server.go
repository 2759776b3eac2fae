// Package web provides the HTTP API for formulation submissions and imports.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/formulations/internal/config"
	"github.com/JonMunkholm/formulations/internal/core"
	mw "github.com/JonMunkholm/formulations/internal/web/middleware"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Instrumentation is the optional metrics surface the server mounts.
type Instrumentation interface {
	Instrument(next http.Handler) http.Handler
	Handler() http.Handler
}

// Server is the HTTP server for the formulations API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics Instrumentation
	router  *chi.Mux
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments every request and mounts GET /metrics.
func WithMetrics(m Instrumentation) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Instrument)
	}
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.Rate.Enabled {
		s.router.Use(mw.RateLimit(s.cfg.Rate.RequestsPerMinute))
	}
	s.router.Use(clientMetadata)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/favicon.ico", noContent)
	s.router.Get("/favicon.png", noContent)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/formulation", func(r chi.Router) {
		// Public form.
		r.Post("/", s.handleCreate)

		// Admin panel.
		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))
			r.Get("/", s.handleList)
			r.Post("/import-csv", s.handleImport)
		})
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

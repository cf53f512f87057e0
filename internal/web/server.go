// Package web provides the HTTP transport for the extraction pipeline.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/thermoextract/internal/config"
	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/logging"
	"github.com/JonMunkholm/thermoextract/internal/metrics"
	"github.com/JonMunkholm/thermoextract/internal/web/middleware"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server of the extraction pipeline.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics *metrics.Metrics
	checks  map[string]Pinger

	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records request metrics and mounts the metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithReadinessCheck adds a dependency to the /readyz probe.
func WithReadinessCheck(name string, p Pinger) Option {
	return func(s *Server) { s.checks[name] = p }
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		checks:  make(map[string]Pinger),
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes. Stage routes run for as long as
// the pipeline timeouts allow; everything else is bounded by the request
// timeout.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))
		r.Use(withRequestMetadata)

		// Upload and pipeline stages
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(s.newRateLimiter(s.cfg.Rate.StageLimit).middleware)
			}
			r.Post("/sessions", s.handleUpload)
			r.Post("/sessions/{id}/analyze", s.handleAnalyze)
			r.Post("/sessions/{id}/extract", s.handleExtract)
			r.Post("/sessions/{id}/tables/{table}/extract", s.handleExtractTable)
			r.Post("/sessions/{id}/load", s.handleLoad)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			// Sessions
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Get("/sessions/{id}/audit", s.handleAuditTrail)
			r.Post("/sessions/{id}/reset", s.handleReset)

			// Datasets
			r.Get("/datasets/{id}", s.handleGetDataset)
			r.Get("/datasets/{id}/assessment", s.handleGetAssessment)
			r.Get("/datasets/{id}/report", s.handleGetReport)

			// Field mappings
			r.Get("/mappings", s.handleListMappings)
			r.Get("/mappings/{key}", s.handleGetMapping)
			r.Post("/mappings/{key}/validate", s.handleValidateCSV)

			r.Get("/status", s.handleStatus)
		})
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The server only
// speaks JSON, Markdown and CSV, so nothing may be framed or scripted.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("json encode error", "error", err)
	}
}

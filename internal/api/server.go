package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/refdata/validate-service/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the chi router with the validation-service's full route
// table: health checks, instrument lookup, and rule validation endpoints
// per spec.md §6.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)    // CORS for browser clients
	router.Use(RecoverMiddleware) // Recover from panics
	router.Use(TracingMiddleware) // OpenTelemetry tracing
	router.Use(LoggingMiddleware) // Request logging
	router.Use(middleware.RealIP) // Extract real IP
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.Compress(5)) // Gzip compression

	router.Get("/health", handler.Health)
	router.Get("/health/detailed", handler.HealthDetailed)

	router.Route("/api/v1/instruments", func(r chi.Router) {
		r.Get("/ric/{ric}", handler.FindByRIC)
		r.Get("/id/{id}", handler.FindByMasterID)
		r.Get("/exchanges", handler.ListExchanges)
		r.Get("/exchanges-by-region", handler.ExchangesByRegion)
		r.Get("/exchange/{ex}", handler.GetByExchange)
		r.Get("/exchange/{ex}/filter", handler.FilterByExchange)
	})

	router.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/validate/{product}/{ex}", handler.Validate)
		r.Post("/validate/{product}/{ex}", handler.Validate)
		r.Get("/validate-custom/{product}/{ex}", handler.ValidateCustom)
		r.Post("/validate-custom/{product}/{ex}", handler.ValidateCustom)
		r.Get("/rules/{product}/{ex}", handler.RulesApplied)
		r.Get("/rules-yaml/{product}/{ex}", handler.RulesAppliedYAML)
		r.Get("/combined-rules/{product}/{ex}", handler.CombinedRules)
		r.Get("/combined-rules-details/{product}/{ex}", handler.CombinedRuleDetails)
		r.Get("/validate-by-masterid/{id}/{combined_rule}", handler.ValidateByMasterID)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

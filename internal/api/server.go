package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/heron/internal/assess"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/portfolio"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *assess.Processor, runner *portfolio.Runner, version string) *Server {
	handler := NewHandler(repo, cache, bus, processor, runner, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Assessment
		r.Post("/assess", handler.Assess)
		r.Get("/assessments/{id}", handler.GetAssessment)

		// Customers
		r.Post("/customers", handler.CreateCustomer)
		r.Get("/customers/{id}/assessments", handler.ListCustomerAssessments)
		r.Get("/customers/{id}/features", handler.GetCustomerFeatures)

		// Portfolio runs
		r.Post("/portfolio/run", handler.RunPortfolio)

		// Fee schedule management
		r.Get("/schedules", handler.ListSchedules)
		r.Get("/schedules/{id}", handler.GetSchedule)
		r.Post("/schedules", handler.CreateSchedule)
		r.Post("/schedules/reload", handler.ReloadSchedules)

		// Account product management
		r.Get("/accounts", handler.ListAccounts)
		r.Get("/accounts/{id}", handler.GetAccount)
		r.Post("/accounts", handler.CreateAccount)
		r.Post("/accounts/reload", handler.ReloadAccounts)

		// KPI profile management
		r.Get("/kpi-profiles", handler.ListKPIProfiles)
		r.Post("/kpi-profiles", handler.CreateKPIProfile)
		r.Delete("/kpi-profiles/{id}", handler.DeleteKPIProfile)
		r.Post("/kpi-profiles/reload", handler.ReloadKPIProfiles)
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
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
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

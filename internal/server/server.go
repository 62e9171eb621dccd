// Package server provides the HTTP server and routing for RiskWatch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	analyticshandlers "github.com/aristath/riskwatch/internal/analytics/handlers"
	"github.com/aristath/riskwatch/internal/config"
	"github.com/aristath/riskwatch/internal/di"
	entitieshandlers "github.com/aristath/riskwatch/internal/modules/entities/handlers"
	markethandlers "github.com/aristath/riskwatch/internal/modules/market/handlers"
	riskhandlers "github.com/aristath/riskwatch/internal/modules/risk/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all stores and services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.Container)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
	}

	s.statusMonitor = NewStatusMonitor(cfg.Container.EventManager, systemHandlers, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check for load balancers
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE) - must be before other routes for proper handling
		eventsStreamHandler := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		// WebSocket feed of the same events
		eventsSocketHandler := NewEventsSocketHandler(s.container.EventBus, s.log)
		r.Get("/events/ws", eventsSocketHandler.ServeHTTP)

		// Market data module
		marketHandler := markethandlers.NewHandler(
			s.container.CompanyRepo,
			s.container.PriceRepo,
			s.container.NewsRepo,
			s.container.EventManager,
			s.log,
		)
		marketHandler.RegisterRoutes(r)

		// Risk scoring module
		riskHandler := riskhandlers.NewHandler(
			s.container.RiskEngine,
			s.container.SnapshotRepo,
			s.cfg.MaxTrackedCompanies,
			s.log,
		)
		riskHandler.RegisterRoutes(r)

		// Entity graph module. The source must stay an untyped nil when
		// the graph store is down; a typed nil *graph.Store would dodge
		// the handler's nil check.
		var graphSource entitieshandlers.GraphSource
		if s.container.Graph != nil {
			graphSource = s.container.Graph
		}
		entitiesHandler := entitieshandlers.NewHandler(graphSource, s.container.ClientDataRepo, s.log)
		entitiesHandler.RegisterRoutes(r)

		// Analytics module
		analyticsHandler := analyticshandlers.NewHandler(
			s.container.Analytics,
			s.container.PriceRepo,
			s.container.ClientDataRepo,
			s.log,
		)
		analyticsHandler.RegisterRoutes(r)

		// System monitoring
		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleSystemHealth)
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		})
	})
}

// Start starts the HTTP server and background monitors
func (s *Server) Start() error {
	// Start status monitor (check every 60 seconds)
	if s.statusMonitor != nil {
		s.statusMonitor.Start(60 * time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.statusMonitor != nil {
		s.statusMonitor.Stop()
	}

	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

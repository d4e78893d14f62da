// Package server provides the HTTP server and routing for the simulation API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/backtest/internal/batch"
	"github.com/aristath/backtest/internal/config"
	"github.com/aristath/backtest/internal/database"
	"github.com/aristath/backtest/internal/marketdata"
	"github.com/aristath/backtest/internal/simulation"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	CacheDB   *database.DB
	Provider  marketdata.Provider
	Stats     simulation.StatisticsProvider
	Runner    *batch.Runner
	Config    *config.Config
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	historyDB      *database.DB
	cacheDB        *database.DB
	cfg            *config.Config
	systemHandlers *SystemHandlers
	simHandlers    *SimulationHandlers
	metrics        *Metrics
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	metrics := NewMetrics()

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		historyDB:      cfg.HistoryDB,
		cacheDB:        cfg.CacheDB,
		cfg:            cfg.Config,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.HistoryDB, cfg.CacheDB),
		simHandlers:    NewSimulationHandlers(cfg.Log, cfg.Provider, cfg.Stats, cfg.Runner, cfg.Config, metrics),
		metrics:        metrics,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
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

	// Timeout covers the largest expected batch
	s.router.Use(middleware.Timeout(120 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
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
	// Health check (before API routing)
	s.router.Get("/health", s.handleHealth)

	// Prometheus metrics
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/simulate", s.simHandlers.HandleSimulate)
		r.Post("/batch", s.simHandlers.HandleBatch)
		r.Post("/synthetic", s.simHandlers.HandleSynthetic)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
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

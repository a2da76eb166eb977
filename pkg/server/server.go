package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoflow-hq/core/internal/config"
	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/database/pool"
	"github.com/autoflow-hq/core/pkg/handlers/health"
	"github.com/autoflow-hq/core/pkg/handlers/pipelines"
	"github.com/autoflow-hq/core/pkg/handlers/runs"
	"github.com/autoflow-hq/core/pkg/handlers/schedules"
	"github.com/autoflow-hq/core/pkg/handlers/webhooks"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/middleware"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/schedule"
	"github.com/autoflow-hq/core/pkg/services"
)

// Server represents the API server
type Server struct {
	router   *chi.Mux
	port     string
	logger   *logger.Logger
	dbPool   *pgxpool.Pool
	queries  *database.Queries
	handlers struct {
		health    *health.Handler
		pipelines *pipelines.Handler
		schedules *schedules.Handler
		runs      *runs.Handler
		webhooks  *webhooks.Handler
	}
}

// New creates a new server instance around an already-populated registry.
func New(cfg *config.Config, registry *pipeline.Registry, log *logger.Logger) (*Server, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	// Initialize database connection pool with production settings
	dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection with retry logic
	if err := testDatabaseConnection(dbPool, log); err != nil {
		dbPool.Close()
		return nil, err
	}

	queries := database.New(dbPool)
	engine := schedule.NewEngine(cfg.Scheduler.MaxOccurrences)

	runService := services.NewRunService(queries, log)
	notifier := services.NewRunNotifier(cfg, log)
	executor := services.NewExecutor(registry, runService, notifier, log)
	taskService := services.NewScheduledTaskService(queries, queries, registry, engine, log)

	server := &Server{
		router:  chi.NewRouter(),
		port:    port,
		logger:  log,
		dbPool:  dbPool,
		queries: queries,
	}

	server.handlers.health = health.NewHandler(log)
	server.handlers.pipelines = pipelines.NewHandler(registry, executor, log)
	server.handlers.schedules = schedules.NewHandler(taskService, log)
	server.handlers.runs = runs.NewHandler(runService, log)
	server.handlers.webhooks = webhooks.NewHandler(registry, executor, log)

	server.setupRoutes()

	log.Info().
		Str("action", "db_connected").
		Msg("Database connection pool established with production settings")

	return server, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS)

	s.router.Get("/health", s.handlers.health.HealthCheck)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", s.handlers.pipelines.List)
			r.Get("/{name}", s.handlers.pipelines.Describe)
			r.Post("/{name}/execute", s.handlers.pipelines.Execute)
		})

		r.Post("/webhooks/{slug}", s.handlers.webhooks.Receive)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handlers.schedules.List)
			r.Post("/", s.handlers.schedules.Create)
			r.Get("/calendar", s.handlers.schedules.Calendar)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handlers.schedules.Get)
				r.Patch("/", s.handlers.schedules.Update)
				r.Delete("/", s.handlers.schedules.Delete)
				r.Post("/toggle", s.handlers.schedules.Toggle)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handlers.runs.List)
			r.Get("/stats", s.handlers.runs.Stats)
			r.Get("/{id}", s.handlers.runs.Get)
			r.Post("/{id}/cancel", s.handlers.runs.Cancel)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting API server with database connection")

	if err := http.ListenAndServe(":"+s.port, s.router); err != nil {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}

	return nil
}

// Close gracefully shuts down the server and closes database connections
func (s *Server) Close() {
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info().Msg("Database connection pool closed")
	}
}

// testDatabaseConnection tests the database connection with retry logic
func testDatabaseConnection(dbPool *pgxpool.Pool, log *logger.Logger) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := dbPool.Ping(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if i == maxRetries-1 {
			return fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")
		time.Sleep(2 * time.Second)
	}

	return nil
}

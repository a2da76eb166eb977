package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/autoflow-hq/core/internal/config"
	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/mcp"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/pipeline/builtin"
	"github.com/autoflow-hq/core/pkg/schedule"
	"github.com/autoflow-hq/core/pkg/services"
)

func main() {
	_ = godotenv.Load()

	logger.SetupLogger()
	log := logger.New("mcp-service")

	cfg := config.Load()

	db, err := pgxpool.New(context.Background(), cfg.DatabaseURL())
	if err != nil {
		log.Fatal().
			Err(err).
			Str("action", "database_connection_failed").
			Msg("Failed to connect to database")
	}
	defer db.Close()

	queries := database.New(db)
	engine := schedule.NewEngine(cfg.Scheduler.MaxOccurrences)

	registry := pipeline.NewRegistry(log)
	if err := builtin.Register(registry); err != nil {
		log.Fatal().
			Err(err).
			Str("action", "pipeline_registration_failed").
			Msg("Failed to register built-in pipelines")
	}

	runService := services.NewRunService(queries, log)
	notifier := services.NewRunNotifier(cfg, log)
	executor := services.NewExecutor(registry, runService, notifier, log)
	taskService := services.NewScheduledTaskService(queries, queries, registry, engine, log)

	srv := mcp.NewServer(registry, executor, taskService, runService, log)
	if err := srv.Run(); err != nil {
		log.Fatal().
			Err(err).
			Str("action", "mcp_server_failed").
			Msg("MCP server exited with error")
	}
}

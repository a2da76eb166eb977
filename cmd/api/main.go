package main

import (
	"github.com/joho/godotenv"

	"github.com/autoflow-hq/core/internal/config"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/pipeline/builtin"
	"github.com/autoflow-hq/core/pkg/server"
)

func main() {
	_ = godotenv.Load()

	// Setup structured logging
	logger.SetupLogger()
	log := logger.New("api-service")

	// Load configuration
	cfg := config.Load()

	// Register pipelines
	registry := pipeline.NewRegistry(log)
	if err := builtin.Register(registry); err != nil {
		log.Fatal().
			Err(err).
			Str("action", "pipeline_registration_failed").
			Msg("Failed to register built-in pipelines")
	}

	// Create and configure server
	srv, err := server.New(cfg, registry, log)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("action", "server_creation_failed").
			Msg("Failed to create server")
	}
	defer srv.Close()

	// Start server
	if err := srv.Start(); err != nil {
		log.Fatal().
			Err(err).
			Str("action", "server_failed").
			Msg("Server failed to start")
	}
}

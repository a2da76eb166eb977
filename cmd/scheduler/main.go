package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/autoflow-hq/core/internal/config"
	"github.com/autoflow-hq/core/pkg/database"
	"github.com/autoflow-hq/core/pkg/jobs"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/pipeline/builtin"
	"github.com/autoflow-hq/core/pkg/schedule"
	"github.com/autoflow-hq/core/pkg/services"
)

func main() {
	// Parse command line flags
	var (
		jobName = flag.String("job", "", "Run specific job once (dispatch, retention)")
		once    = flag.Bool("once", false, "Run job once and exit")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger.SetupLogger()
	logg := logger.New("scheduler-service")

	cfg := config.Load()

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize services
	queries := database.New(db)
	engine := schedule.NewEngine(cfg.Scheduler.MaxOccurrences)

	registry := pipeline.NewRegistry(logg)
	if err := builtin.Register(registry); err != nil {
		log.Fatalf("Failed to register built-in pipelines: %v", err)
	}

	runService := services.NewRunService(queries, logg)
	notifier := services.NewRunNotifier(cfg, logg)
	executor := services.NewExecutor(registry, runService, notifier, logg)

	// Create job manager
	jobManager := jobs.NewJobManager()

	// Register jobs
	dispatchJob := jobs.NewDispatchJob(queries, runService, executor, engine, cfg.Scheduler.TickSeconds, cfg.Scheduler.DispatchConcurrency)
	if err := jobManager.RegisterJob(dispatchJob); err != nil {
		log.Fatalf("Failed to register dispatch job: %v", err)
	}

	retentionJob := jobs.NewRetentionJob(runService, cfg.Scheduler.RetentionDays)
	if err := jobManager.RegisterJob(retentionJob); err != nil {
		log.Fatalf("Failed to register retention job: %v", err)
	}

	// Handle single job execution
	if *once && *jobName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		switch *jobName {
		case "dispatch":
			log.Println("Running dispatch job once...")
			if err := dispatchJob.Execute(ctx); err != nil {
				log.Fatalf("Failed to execute dispatch job: %v", err)
			}
			log.Println("Dispatch completed successfully")
		case "retention":
			log.Println("Running retention job once...")
			if err := retentionJob.Execute(ctx); err != nil {
				log.Fatalf("Failed to execute retention job: %v", err)
			}
			log.Println("Retention completed successfully")
		default:
			log.Fatalf("Unknown job: %s. Available jobs: dispatch, retention", *jobName)
		}
		return
	}

	// Start job manager
	jobManager.Start()
	log.Printf("Scheduler service started with %d jobs", len(jobManager.GetJobs()))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down scheduler service...")
	jobManager.Stop()
	log.Println("Scheduler service stopped")
}

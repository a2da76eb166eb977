package config

import (
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Notifier  NotifierConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SchedulerConfig struct {
	// TickSeconds is the dispatcher poll interval
	TickSeconds int
	// MaxOccurrences bounds calendar/cron range enumeration
	MaxOccurrences int
	// RetentionDays is how long run history is kept
	RetentionDays int
	// DispatchConcurrency bounds concurrent dispatches within one tick
	DispatchConcurrency int
}

type NotifierConfig struct {
	// WebhookURL receives run completion events when set
	WebhookURL string
	Timeout    int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "autoflow"),
			Password: getEnv("DB_PASSWORD", "autoflow123"),
			DBName:   getEnv("DB_NAME", "autoflow_core"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Scheduler: SchedulerConfig{
			TickSeconds:         getEnvAsInt("SCHEDULER_TICK_SECONDS", 30),
			MaxOccurrences:      getEnvAsInt("SCHEDULER_MAX_OCCURRENCES", 1000),
			RetentionDays:       getEnvAsInt("RUN_RETENTION_DAYS", 90),
			DispatchConcurrency: getEnvAsInt("DISPATCH_CONCURRENCY", 4),
		},
		Notifier: NotifierConfig{
			WebhookURL: getEnv("RUN_WEBHOOK_URL", ""),
			Timeout:    getEnvAsInt("RUN_WEBHOOK_TIMEOUT", 10),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}

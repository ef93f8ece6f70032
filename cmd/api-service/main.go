package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/jobengine/internal/api/handler"
	"github.com/cuongbtq/jobengine/internal/api/router"
	"github.com/cuongbtq/jobengine/internal/broker"
	"github.com/cuongbtq/jobengine/internal/config"
	"github.com/cuongbtq/jobengine/internal/dispatch"
	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/cuongbtq/jobengine/internal/jobs"
	"github.com/cuongbtq/jobengine/internal/recovery"
	"github.com/cuongbtq/jobengine/internal/store"
	"github.com/cuongbtq/jobengine/shared/logger"
	"github.com/cuongbtq/jobengine/shared/postgres"
	"github.com/cuongbtq/jobengine/shared/redisq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize Redis client
	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	appLogger.Info("Redis connection established")

	// Initialize job record store and apply schema
	jobStore := store.New(dbClient.DB(), appLogger.Logger)
	if err := jobStore.Migrate(context.Background()); err != nil {
		dbClient.Close()
		redisClient.Close()
		return fmt.Errorf("failed to migrate job store: %w", err)
	}

	// Register job types
	registry := job.NewRegistry()
	jobs.Register(registry, &jobs.Env{
		DB:     dbClient.DB(),
		Logger: appLogger.Logger,
	})

	// Initialize broker and dispatcher
	jobBroker := broker.New(redisClient.Redis(), &broker.Config{
		Queues:         cfg.Jobs.Queues,
		MaxRetries:     cfg.Jobs.MaxRetries,
		RetryIntervals: cfg.Jobs.RetryIntervals,
		FailedTTL:      cfg.Jobs.FailedTTL,
	}, appLogger.Logger)

	dispatcher := dispatch.New(&dispatch.Config{
		Logger:       appLogger.Logger,
		Broker:       jobBroker,
		Store:        jobStore,
		Registry:     registry,
		DefaultQueue: cfg.Jobs.DefaultQueue,
		JobTimeout:   cfg.Jobs.JobTimeout,
	})

	// Reconcile records left in-flight by a previous crash before accepting
	// new submissions.
	reconciler := recovery.New(&recovery.Config{
		Logger:     appLogger.Logger,
		Store:      jobStore,
		Broker:     jobBroker,
		Registry:   registry,
		Window:     cfg.Jobs.RecoveryWindow,
		JobTimeout: cfg.Jobs.JobTimeout,
	})
	if _, err := reconciler.RecoverStaleJobs(context.Background()); err != nil {
		appLogger.Error("Job recovery failed",
			slog.Any("error", err),
		)
	}

	// Initialize router
	r := initRouter(cfg.App.Environment, appLogger.Logger, jobStore, dispatcher)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgres.Client, error) {
	dbConfig := &postgres.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgres.NewClient(dbConfig, logger)
}

// initRedis initializes the Redis broker client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redisq.Client, error) {
	redisConfig := &redisq.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return redisq.NewClient(redisConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, jobStore job.Store, dispatcher handler.Dispatcher) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:     logger,
		Store:      jobStore,
		Dispatcher: dispatcher,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/jobengine/internal/broker"
	"github.com/cuongbtq/jobengine/internal/config"
	"github.com/cuongbtq/jobengine/internal/dispatch"
	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/cuongbtq/jobengine/internal/jobs"
	"github.com/cuongbtq/jobengine/internal/requeue"
	"github.com/cuongbtq/jobengine/internal/store"
	"github.com/cuongbtq/jobengine/shared/logger"
	"github.com/cuongbtq/jobengine/shared/postgres"
	"github.com/cuongbtq/jobengine/shared/redisq"
	"github.com/joho/godotenv"
)

type commandFn func(cmdCtx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config *config.Config
}

const commandTimeout = 2 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2)
	}

	configPath := os.Getenv("JOBCTL_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/worker-service/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: appLogger.Logger,
		Config: cfg,
	}
	if err := cmd.run(cmdCtx, os.Args[2:]); err != nil {
		appLogger.Error("Command failed",
			slog.String("command", cmdName),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

func commands() map[string]command {
	return map[string]command{
		"retry-job": {
			name:        "retry-job",
			description: "Resubmit a terminally failed job under a new id",
			run:         runRetryJob,
		},
		"list-failed-jobs": {
			name:        "list-failed-jobs",
			description: "List terminally failed jobs and their errors",
			run:         runListFailedJobs,
		},
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, "Usage: jobctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stdout, "Available commands:\n")
	for _, c := range commands() {
		fmt.Fprintf(os.Stdout, "  %-20s %s\n", c.name, c.description)
	}
}

type retryOptions struct {
	JobID string
	All   bool
}

type listOptions struct {
	Limit int
}

func parseRetryFlags(args []string) (retryOptions, error) {
	fs := flag.NewFlagSet("retry-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts retryOptions
	fs.StringVar(&opts.JobID, "job-id", "", "ID of the failed job to retry")
	fs.BoolVar(&opts.All, "all", false, "Retry every failed job")

	if err := fs.Parse(args); err != nil {
		return retryOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" && !opts.All {
		return retryOptions{}, errors.New("either --job-id or --all is required")
	}
	if opts.JobID != "" && opts.All {
		return retryOptions{}, errors.New("--job-id and --all are mutually exclusive")
	}

	return opts, nil
}

func parseListFlags(args []string) (listOptions, error) {
	fs := flag.NewFlagSet("list-failed-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listOptions{Limit: 20}
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum jobs to display (0 for unlimited)")

	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if opts.Limit < 0 {
		return listOptions{}, errors.New("--limit must not be negative")
	}

	return opts, nil
}

func runRetryJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseRetryFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	tool, cleanup, err := buildTool(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.All {
		report, err := tool.RetryAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Retried %d/%d failed jobs\n", report.Retried, report.Total)
		return nil
	}

	newID, err := tool.RetrySingle(ctx, opts.JobID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Job %s requeued as %s\n", opts.JobID, newID)
	return nil
}

func runListFailedJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, commandTimeout)
	defer cancel()

	tool, cleanup, err := buildTool(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := tool.ListFailed(ctx, opts.Limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "No failed jobs")
		return nil
	}

	fmt.Fprintf(os.Stdout, "Failed jobs (%d):\n", len(records))
	for i := range records {
		rec := &records[i]
		fmt.Fprintf(os.Stdout, "  %s  %-24s retries=%d  %s\n",
			rec.ID,
			rec.JobType,
			rec.RetryCount,
			truncateError(rec.Error.String),
		)
	}
	return nil
}

// truncateError keeps the one-line listing readable for long tracebacks.
func truncateError(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	if len(msg) > 300 {
		return msg[:300] + "..."
	}
	return msg
}

// buildTool wires the full requeue path: record store, broker, dispatcher.
func buildTool(cmdCtx *commandContext) (*requeue.Tool, func(), error) {
	cfg := cmdCtx.Config

	dbClient, err := postgres.NewClient(&postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, cmdCtx.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient, err := redisq.NewClient(&redisq.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, cmdCtx.Logger)
	if err != nil {
		dbClient.Close()
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	cleanup := func() {
		dbClient.Close()
		redisClient.Close()
	}

	jobStore := store.New(dbClient.DB(), cmdCtx.Logger)

	registry := job.NewRegistry()
	jobs.Register(registry, &jobs.Env{
		DB:     dbClient.DB(),
		Logger: cmdCtx.Logger,
	})

	jobBroker := broker.New(redisClient.Redis(), &broker.Config{
		Queues:         cfg.Jobs.Queues,
		MaxRetries:     cfg.Jobs.MaxRetries,
		RetryIntervals: cfg.Jobs.RetryIntervals,
		FailedTTL:      cfg.Jobs.FailedTTL,
	}, cmdCtx.Logger)

	dispatcher := dispatch.New(&dispatch.Config{
		Logger:       cmdCtx.Logger,
		Broker:       jobBroker,
		Store:        jobStore,
		Registry:     registry,
		DefaultQueue: cfg.Jobs.DefaultQueue,
		JobTimeout:   cfg.Jobs.JobTimeout,
	})

	tool := requeue.New(&requeue.Config{
		Logger:     cmdCtx.Logger,
		Store:      jobStore,
		Broker:     jobBroker,
		Dispatcher: dispatcher,
	})

	return tool, cleanup, nil
}

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/jobengine/shared/logger"
	"github.com/joho/godotenv"
)

const defaultInterval = 5 * time.Minute

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

	defaultURL := os.Getenv("SCHEDULER_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080/create-jobs/"
	}

	apiURL := flag.String("api-url", defaultURL, "Endpoint that enqueues the job batch")
	interval := flag.Duration("interval", defaultInterval, "Time between batch submissions")
	flag.Parse()

	appLogger := logger.NewDefault()

	appLogger.Info("Starting scheduler",
		slog.String("api_url", *apiURL),
		slog.Duration("interval", *interval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 30 * time.Second}

	// Fire once at startup, then on every tick.
	submitBatch(ctx, client, *apiURL, appLogger.Logger)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			appLogger.Info("Scheduler shutting down")
			return nil
		case <-ticker.C:
			submitBatch(ctx, client, *apiURL, appLogger.Logger)
		}
	}
}

// submitBatch triggers one round of job creation. Failures are logged and the
// schedule keeps running; the next tick tries again.
func submitBatch(ctx context.Context, client *http.Client, url string, logger *slog.Logger) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		logger.Error("Failed to build batch request",
			slog.Any("error", err),
		)
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("Batch submission failed",
			slog.String("url", url),
			slog.Any("error", err),
		)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		logger.Error("Batch submission rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return
	}

	logger.Info("Batch submitted",
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
		slog.String("response", string(body)),
	)
}

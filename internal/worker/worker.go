package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
)

// Source is the consume side of the broker queue.
type Source interface {
	Consume(ctx context.Context) (<-chan job.Delivery, error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id string) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Source      Source
	Store       job.Store
	Registry    *job.Registry
	Concurrency int
	JobTimeout  time.Duration
}

// Worker pulls deliveries from the broker and runs them through the executor
// wrapper on a pool of goroutines.
type Worker struct {
	logger      *slog.Logger
	source      Source
	store       job.Store
	registry    *job.Registry
	concurrency int
	jobTimeout  time.Duration

	jobsChan chan job.Delivery
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:      cfg.Logger,
		source:      cfg.Source,
		store:       cfg.Store,
		registry:    cfg.Registry,
		concurrency: concurrency,
		jobTimeout:  cfg.JobTimeout,
		jobsChan:    make(chan job.Delivery),
		stopChan:    make(chan struct{}),
	}
}

// Start begins consuming and processing deliveries. It blocks until ctx is
// canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.source.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, stopping dispatch loop")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return nil
			}

			select {
			case w.jobsChan <- delivery:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Stop gracefully stops the worker pool, waiting for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// workerLoop is the processing loop for one pool goroutine.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.Int("worker_num", workerNum))
	logger.Info("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Worker goroutine stopping")
			return

		case <-ctx.Done():
			logger.Info("Worker goroutine stopping - context canceled")
			return

		case delivery, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processDelivery(ctx, delivery)
			if err != nil {
				logger.Error("Job processing failed",
					slog.String("job_id", delivery.ID),
					slog.String("error", err.Error()),
				)

				// Propagate the failure to the broker so its retry/backoff
				// decides whether this id is redelivered.
				if nackErr := w.source.Nack(ctx, delivery.ID); nackErr != nil {
					logger.Error("Failed to nack delivery",
						slog.String("job_id", delivery.ID),
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			if ackErr := w.source.Ack(ctx, delivery.ID); ackErr != nil {
				logger.Error("Failed to ack delivery",
					slog.String("job_id", delivery.ID),
					slog.Any("error", ackErr),
				)
			}
		}
	}
}

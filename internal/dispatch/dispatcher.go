package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
)

// Config holds dispatcher configuration
type Config struct {
	Logger       *slog.Logger
	Broker       job.Broker
	Store        job.Store
	Registry     *job.Registry
	DefaultQueue string
	JobTimeout   time.Duration
}

// Dispatcher couples a broker submission to a durable record. Submission
// happens first so the record carries the broker-assigned id; if the record
// write then fails the broker entry is orphaned — that gap is accepted, no
// compensating transaction is attempted across the two stores.
type Dispatcher struct {
	logger       *slog.Logger
	broker       job.Broker
	store        job.Store
	registry     *job.Registry
	defaultQueue string
	jobTimeout   time.Duration
}

// New creates a dispatcher.
func New(cfg *Config) *Dispatcher {
	return &Dispatcher{
		logger:       cfg.Logger,
		broker:       cfg.Broker,
		store:        cfg.Store,
		registry:     cfg.Registry,
		defaultQueue: cfg.DefaultQueue,
		jobTimeout:   cfg.JobTimeout,
	}
}

// Dispatch submits one unit of work and persists its record with status
// queued. An empty queue name falls back to the configured default. The
// returned id is the handle for status polling.
func (d *Dispatcher) Dispatch(ctx context.Context, jobType, queue string, args json.RawMessage) (string, error) {
	if queue == "" {
		queue = d.defaultQueue
	}

	// Reject unknown types up front so a payload that can never execute
	// is not persisted.
	if _, err := d.registry.Resolve(jobType); err != nil {
		return "", err
	}

	env := job.Envelope{Type: jobType, Queue: queue, Args: args}
	body, err := env.Encode()
	if err != nil {
		return "", err
	}

	id, err := d.broker.Submit(ctx, queue, "", body, d.jobTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to submit job to broker: %w", err)
	}

	rec := &job.Record{
		ID:      id,
		JobType: jobType,
		Payload: string(body),
		Status:  job.StatusQueued,
	}

	if err := d.store.Create(ctx, rec); err != nil {
		// The broker entry exists without a durable record. It will still
		// execute, but its status is not retrievable.
		d.logger.Error("Job submitted but record write failed, broker entry orphaned",
			slog.String("job_id", id),
			slog.String("job_type", jobType),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("failed to persist job record: %w", err)
	}

	d.logger.Info("Job dispatched",
		slog.String("job_id", id),
		slog.String("job_type", jobType),
		slog.String("queue", queue),
	)

	return id, nil
}

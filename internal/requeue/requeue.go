package requeue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobengine/internal/job"
)

// Dispatcher is the dispatch path the tool resubmits through.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType, queue string, args json.RawMessage) (string, error)
}

// Config holds requeue tool configuration
type Config struct {
	Logger     *slog.Logger
	Store      job.Store
	Broker     job.Broker
	Dispatcher Dispatcher
}

// Tool is the administrative requeue procedure for terminally failed jobs.
// Unlike recovery it mints a new identity: the old record is deleted, the
// old id is purged from the broker's failure registry, and a fresh
// submission is made from the old payload.
type Tool struct {
	logger     *slog.Logger
	store      job.Store
	broker     job.Broker
	dispatcher Dispatcher
}

// Report summarizes a RetryAll run.
type Report struct {
	Retried int
	Total   int
}

// New creates a requeue tool.
func New(cfg *Config) *Tool {
	return &Tool{
		logger:     cfg.Logger,
		store:      cfg.Store,
		broker:     cfg.Broker,
		dispatcher: cfg.Dispatcher,
	}
}

// RetrySingle resubmits one failed record as new work and returns the new
// id. The old record and its failure-registry entry are removed only after
// the new submission succeeded, so a dispatch failure leaves the original
// untouched.
func (t *Tool) RetrySingle(ctx context.Context, id string) (string, error) {
	rec, err := t.store.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("no failed job found with ID %s: %w", id, err)
	}
	if rec.Status != job.StatusFailed {
		return "", fmt.Errorf("job %s: %w (status %s)", id, job.ErrRecordNotFailed, rec.Status)
	}

	env, err := job.DecodeEnvelope([]byte(rec.Payload))
	if err != nil {
		return "", fmt.Errorf("failed to parse payload for job %s: %w", id, err)
	}

	newID, err := t.dispatcher.Dispatch(ctx, env.Type, env.Queue, env.Args)
	if err != nil {
		return "", fmt.Errorf("failed to redispatch job %s: %w", id, err)
	}

	if err := t.store.Delete(ctx, id); err != nil {
		t.logger.Error("Retried job but failed to delete old record",
			slog.String("old_job_id", id),
			slog.String("new_job_id", newID),
			slog.Any("error", err),
		)
	}

	if err := t.broker.RemoveFailed(ctx, env.Queue, id); err != nil {
		t.logger.Error("Retried job but failed to clean failure registry",
			slog.String("old_job_id", id),
			slog.String("queue", env.Queue),
			slog.Any("error", err),
		)
	}

	t.logger.Info("Failed job requeued",
		slog.String("old_job_id", id),
		slog.String("new_job_id", newID),
	)

	return newID, nil
}

// RetryAll applies RetrySingle to every failed record, tolerating per-record
// failures. Records that cannot be resubmitted (e.g. unparsable payloads)
// are reported and left untouched.
func (t *Tool) RetryAll(ctx context.Context) (Report, error) {
	failed, err := t.store.ListFailed(ctx, 0)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	report := Report{Total: len(failed)}

	for i := range failed {
		id := failed[i].ID
		if _, err := t.RetrySingle(ctx, id); err != nil {
			t.logger.Error("Failed to retry job",
				slog.String("job_id", id),
				slog.Any("error", err),
			)
			continue
		}
		report.Retried++
	}

	t.logger.Info("Retry batch finished",
		slog.Int("retried", report.Retried),
		slog.Int("total", report.Total),
	)

	return report, nil
}

// ListFailed returns the most recent failed records for operator display.
func (t *Tool) ListFailed(ctx context.Context, limit int) ([]job.Record, error) {
	return t.store.ListFailed(ctx, limit)
}

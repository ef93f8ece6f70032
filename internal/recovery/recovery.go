package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
)

// DefaultWindow bounds how old a stuck record may be and still be
// resubmitted automatically. Anything older is left for manual
// intervention so a permanently broken payload is not resurrected forever.
const DefaultWindow = 24 * time.Hour

// Config holds reconciler configuration
type Config struct {
	Logger     *slog.Logger
	Store      job.Store
	Broker     job.Broker
	Registry   *job.Registry
	Window     time.Duration
	JobTimeout time.Duration
}

// Reconciler repairs divergence between the record store and the broker
// after a crash or restart: a queued/started record whose broker entry is
// gone was silently lost and is resubmitted under its original id.
type Reconciler struct {
	logger     *slog.Logger
	store      job.Store
	broker     job.Broker
	registry   *job.Registry
	window     time.Duration
	jobTimeout time.Duration
}

// Report summarizes one reconciliation run.
type Report struct {
	Scanned     int
	Resubmitted int
}

// New creates a reconciler.
func New(cfg *Config) *Reconciler {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	return &Reconciler{
		logger:     cfg.Logger,
		store:      cfg.Store,
		broker:     cfg.Broker,
		registry:   cfg.Registry,
		window:     window,
		jobTimeout: cfg.JobTimeout,
	}
}

// RecoverStaleJobs scans for in-flight records within the recency window and
// resubmits any whose broker entry is missing, reusing the original id so
// the record and entry stay joined. Per-record failures are logged and do
// not abort the scan. Intended to run once at process startup from a single
// coordinating process.
func (r *Reconciler) RecoverStaleJobs(ctx context.Context) (Report, error) {
	records, err := r.store.ListStale(ctx, r.window)
	if err != nil {
		return Report{}, err
	}

	report := Report{Scanned: len(records)}

	for i := range records {
		rec := &records[i]
		if r.recoverOne(ctx, rec) {
			report.Resubmitted++
		}
	}

	r.logger.Info("Job recovery finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("resubmitted", report.Resubmitted),
	)

	return report, nil
}

// recoverOne handles a single stale candidate. Returns true when the record
// was resubmitted.
func (r *Reconciler) recoverOne(ctx context.Context, rec *job.Record) bool {
	exists, err := r.broker.Exists(ctx, rec.ID)
	if err != nil {
		r.logger.Error("Failed to check broker entry",
			slog.String("job_id", rec.ID),
			slog.Any("error", err),
		)
		return false
	}
	if exists {
		// The broker still owns delivery of this unit of work.
		r.logger.Info("Broker entry present, no action taken",
			slog.String("job_id", rec.ID),
		)
		return false
	}

	env, err := job.DecodeEnvelope([]byte(rec.Payload))
	if err != nil {
		r.logger.Error("Failed to parse payload for stale job",
			slog.String("job_id", rec.ID),
			slog.Any("error", err),
		)
		return false
	}

	if _, err := r.registry.Resolve(env.Type); err != nil {
		r.logger.Error("Cannot resolve job type for stale job",
			slog.String("job_id", rec.ID),
			slog.String("job_type", env.Type),
			slog.Any("error", err),
		)
		return false
	}

	if _, err := r.broker.Submit(ctx, env.Queue, rec.ID, []byte(rec.Payload), r.jobTimeout); err != nil {
		r.logger.Error("Failed to resubmit stale job",
			slog.String("job_id", rec.ID),
			slog.Any("error", err),
		)
		return false
	}

	if err := r.store.ResetQueued(ctx, rec.ID); err != nil {
		r.logger.Error("Resubmitted stale job but failed to reset record",
			slog.String("job_id", rec.ID),
			slog.Any("error", err),
		)
		return true
	}

	r.logger.Info("Recovered job by requeueing",
		slog.String("job_id", rec.ID),
		slog.String("queue", env.Queue),
	)
	return true
}

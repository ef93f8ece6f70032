package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cuongbtq/jobengine/internal/job"
)

// processDelivery is the executor wrapper: it brackets one execution pass
// with record transitions so the durable record always reflects the true
// outcome of the delivery it processed. Exactly one status update happens
// per pass; a failure is returned to the caller after being recorded so the
// broker's retry policy still fires.
func (w *Worker) processDelivery(ctx context.Context, delivery job.Delivery) error {
	w.logger.Info("Processing job",
		slog.String("job_id", delivery.ID),
		slog.Int("attempt", delivery.Attempt),
	)

	// Bookkeeping must never block execution: a missing record is logged
	// and the unit still runs.
	if err := w.store.MarkStarted(ctx, delivery.ID); err != nil {
		if errors.Is(err, job.ErrRecordNotFound) {
			w.logger.Warn("No durable record for delivery, executing anyway",
				slog.String("job_id", delivery.ID),
			)
		} else {
			w.logger.Error("Failed to mark job started",
				slog.String("job_id", delivery.ID),
				slog.Any("error", err),
			)
		}
	}

	timeout := delivery.Timeout
	if timeout <= 0 {
		timeout = w.jobTimeout
	}
	jobCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome := w.runUnit(jobCtx, delivery.Body)

	if outcome.Failed() {
		if err := w.store.MarkFailed(ctx, delivery.ID, outcome.Err.Error(), outcome.Traceback); err != nil {
			w.logger.Error("Failed to mark job failed",
				slog.String("job_id", delivery.ID),
				slog.Any("error", err),
			)
		}
		return fmt.Errorf("job execution failed: %w", outcome.Err)
	}

	if err := w.store.MarkCompleted(ctx, delivery.ID, outcome.Result); err != nil {
		// The work is done; a bookkeeping failure must not trigger a
		// redelivery and a duplicate side effect.
		w.logger.Error("Job completed but record update failed",
			slog.String("job_id", delivery.ID),
			slog.Any("error", err),
		)
	}

	w.logger.Info("Job completed",
		slog.String("job_id", delivery.ID),
	)

	return nil
}

// runUnit decodes the envelope, resolves and constructs the unit, and
// executes it, folding every failure mode (including panics) into a tagged
// outcome with a captured trace.
func (w *Worker) runUnit(ctx context.Context, body []byte) (outcome job.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = job.Fail(fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	env, err := job.DecodeEnvelope(body)
	if err != nil {
		return job.Fail(err, string(debug.Stack()))
	}

	factory, err := w.registry.Resolve(env.Type)
	if err != nil {
		return job.Fail(err, string(debug.Stack()))
	}

	unit, err := factory(env.Args)
	if err != nil {
		return job.Fail(err, string(debug.Stack()))
	}

	result, err := unit.Execute(ctx)
	if err != nil {
		return job.Fail(err, string(debug.Stack()))
	}

	return job.Complete(result)
}

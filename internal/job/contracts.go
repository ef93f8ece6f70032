package job

import (
	"context"
	"time"
)

// Store is the durable record store. Every method is one short-lived
// statement keyed by id; callers never hold locks across calls.
type Store interface {
	// Create persists a new record. The record's status should be queued.
	Create(ctx context.Context, rec *Record) error

	// GetByID returns the record for id, or ErrRecordNotFound.
	GetByID(ctx context.Context, id string) (*Record, error)

	// MarkStarted moves the record to started. Completed records are never
	// moved; in that case (or when the record is missing) ErrRecordNotFound
	// is returned.
	MarkStarted(ctx context.Context, id string) error

	// MarkCompleted moves the record to completed and stores the result.
	MarkCompleted(ctx context.Context, id, result string) error

	// MarkFailed moves the record to failed, stores the error message and
	// trace, and increments the retry count.
	MarkFailed(ctx context.Context, id, errMsg, traceback string) error

	// ResetQueued moves a queued or started record back to queued with a
	// fresh updated_at. Used only by recovery after resubmission.
	ResetQueued(ctx context.Context, id string) error

	// ListStale returns queued/started records created within the window.
	ListStale(ctx context.Context, window time.Duration) ([]Record, error)

	// ListFailed returns the most recent failed records. limit <= 0 means
	// no limit.
	ListFailed(ctx context.Context, limit int) ([]Record, error)

	// Delete removes the record for id.
	Delete(ctx context.Context, id string) error
}

// Broker is the submission-side contract of the at-least-once work queue.
// Delivery, acknowledgement, and retry/backoff live behind the worker; the
// dispatcher, reconciler, and requeue tool only need these three.
type Broker interface {
	// Submit enqueues body under queue. An empty id asks the broker to mint
	// one; recovery passes the original id to preserve the record/entry join.
	// Returns the id the entry was enqueued under.
	Submit(ctx context.Context, queue, id string, body []byte, timeout time.Duration) (string, error)

	// Exists reports whether the broker currently holds an entry for id.
	Exists(ctx context.Context, id string) (bool, error)

	// RemoveFailed removes id from the failure registry of queue and drops
	// the stale entry.
	RemoveFailed(ctx context.Context, queue, id string) error
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/jmoiron/sqlx"
)

// Store is the sqlx-backed record store. Every mutation is a single atomic
// statement keyed by id; concurrent workers share the pooled connection.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Store on top of the shared database handle.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		job_type    TEXT NOT NULL,
		payload     TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'queued',
		result      TEXT,
		error       TEXT,
		traceback   TEXT,
		retry_count INT  NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS jobs_status_created_at_idx ON jobs (status, created_at);
`

// Migrate creates the jobs table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate jobs table: %w", err)
	}
	return nil
}

// Create persists a new record with status queued.
func (s *Store) Create(ctx context.Context, rec *job.Record) error {
	query := `
		INSERT INTO jobs (id, job_type, payload, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
	`

	if rec.Status == "" {
		rec.Status = job.StatusQueued
	}

	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.JobType, rec.Payload, rec.Status)
	if err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}

	s.logger.Debug("Job record created",
		slog.String("job_id", rec.ID),
		slog.String("job_type", rec.JobType),
	)

	return nil
}

// GetByID returns the record for id, or job.ErrRecordNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*job.Record, error) {
	query := `
		SELECT id, job_type, payload, status, result, error, traceback,
		       retry_count, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var rec job.Record
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}

	return &rec, nil
}

// MarkStarted moves the record to started. Completed records stay completed:
// the guard keeps a late redelivery from resurrecting finished work.
func (s *Store) MarkStarted(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status <> $3
	`

	return s.exec(ctx, query, "mark started", id, job.StatusStarted, id, job.StatusCompleted)
}

// MarkCompleted moves the record to completed and stores the result.
func (s *Store) MarkCompleted(ctx context.Context, id, result string) error {
	query := `
		UPDATE jobs
		SET status = $1, result = $2, error = NULL, traceback = NULL, updated_at = NOW()
		WHERE id = $3 AND status <> $1
	`

	return s.exec(ctx, query, "mark completed", id, job.StatusCompleted, result, id)
}

// MarkFailed moves the record to failed, stores the diagnostics, and counts
// the failure pass.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg, traceback string) error {
	query := `
		UPDATE jobs
		SET status = $1, error = $2, traceback = $3,
		    retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $4 AND status <> $5
	`

	return s.exec(ctx, query, "mark failed", id, job.StatusFailed, errMsg, traceback, id, job.StatusCompleted)
}

// ResetQueued moves a queued or started record back to queued after recovery
// resubmitted it under the same id.
func (s *Store) ResetQueued(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($1, $3)
	`

	return s.exec(ctx, query, "reset queued", id, job.StatusQueued, id, job.StatusStarted)
}

// ListStale returns queued/started records created within the window,
// oldest first. Records older than the window are left for manual
// intervention.
func (s *Store) ListStale(ctx context.Context, window time.Duration) ([]job.Record, error) {
	query := `
		SELECT id, job_type, payload, status, result, error, traceback,
		       retry_count, created_at, updated_at
		FROM jobs
		WHERE status IN ($1, $2) AND created_at > $3
		ORDER BY created_at ASC
	`

	cutoff := time.Now().UTC().Add(-window)

	var recs []job.Record
	if err := s.db.SelectContext(ctx, &recs, query, job.StatusQueued, job.StatusStarted, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale job records: %w", err)
	}

	return recs, nil
}

// ListFailed returns the most recent failed records.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]job.Record, error) {
	query := `
		SELECT id, job_type, payload, status, result, error, traceback,
		       retry_count, created_at, updated_at
		FROM jobs
		WHERE status = $1
		ORDER BY updated_at DESC
	`

	args := []interface{}{job.StatusFailed}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var recs []job.Record
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list failed job records: %w", err)
	}

	return recs, nil
}

// Delete removes the record for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM jobs WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete job record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return job.ErrRecordNotFound
	}

	return nil
}

// exec runs a single-row status update and maps a zero-row result to
// job.ErrRecordNotFound.
func (s *Store) exec(ctx context.Context, query, op, id string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return job.ErrRecordNotFound
	}

	s.logger.Debug("Job record updated",
		slog.String("job_id", id),
		slog.String("op", op),
	)

	return nil
}

package job

import (
	"database/sql"
	"time"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further automatic transition happens from s.
// A failed job can still re-enter started through broker redelivery; completed
// is the only state the store refuses to move out of.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the durable row tracking one unit of work. It is the single
// source of truth for the job's lifecycle across process restarts. The id is
// assigned by the broker at submission time and joins this row to the broker
// entry.
type Record struct {
	ID         string         `db:"id"`
	JobType    string         `db:"job_type"`
	Payload    string         `db:"payload"`
	Status     Status         `db:"status"`
	Result     sql.NullString `db:"result"`
	Error      sql.NullString `db:"error"`
	Traceback  sql.NullString `db:"traceback"`
	RetryCount int            `db:"retry_count"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

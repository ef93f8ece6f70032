package dto

import "encoding/json"

// DispatchJobRequest is the body of POST /api/v1/jobs.
type DispatchJobRequest struct {
	JobType string          `json:"job_type" binding:"required"`
	Queue   string          `json:"queue"`
	Args    json.RawMessage `json:"args"`
}

// DispatchJobResponse reports one accepted submission.
type DispatchJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// BatchItemResponse reports one submission attempt of the fixed batch.
type BatchItemResponse struct {
	JobID   string `json:"job_id,omitempty"`
	JobType string `json:"job_type"`
	Queue   string `json:"queue"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// JobStatusResponse is the record projection returned by GET /job-status/:job_id.
type JobStatusResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Result     *string `json:"result"`
	Error      *string `json:"error"`
	Traceback  *string `json:"traceback"`
	RetryCount int     `json:"retry_count"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/jobengine/internal/api/dto"
	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/cuongbtq/jobengine/internal/jobs"
	"github.com/gin-gonic/gin"
)

// createJobsBatch is the fixed set of submissions triggered by the periodic
// scheduler through POST /create-jobs/.
var createJobsBatch = []dto.DispatchJobRequest{
	{JobType: jobs.TypeFibonacci, Queue: "high", Args: json.RawMessage(`{"n": 30}`)},
	{JobType: jobs.TypeSlowQuery, Queue: "medium", Args: json.RawMessage(`{"duration": 5}`)},
	{JobType: jobs.TypeAggregate, Queue: "medium", Args: json.RawMessage(`{"table": "employees", "group_by": "department", "sort_by": "total_salary", "sort_order": "DESC"}`)},
	{JobType: jobs.TypeTruncateTable, Queue: "low", Args: json.RawMessage(`{"table": "temp_table"}`)},
	{JobType: jobs.TypeAlwaysFail, Queue: "low"},
}

// CreateJobs handles POST /create-jobs/
// Submits the fixed batch across the named queues. Individual submission
// failures are reported per item without aborting the batch.
func (h *JobHandler) CreateJobs(c *gin.Context) {
	items := make([]dto.BatchItemResponse, 0, len(createJobsBatch))
	enqueued := 0

	for _, req := range createJobsBatch {
		item := dto.BatchItemResponse{
			JobType: req.JobType,
			Queue:   req.Queue,
		}

		id, err := h.dispatcher.Dispatch(c.Request.Context(), req.JobType, req.Queue, req.Args)
		if err != nil {
			h.logger.Error("Batch dispatch failed",
				slog.String("job_type", req.JobType),
				slog.Any("error", err),
			)
			item.Status = "error"
			item.Error = err.Error()
		} else {
			item.JobID = id
			item.Status = "enqueued"
			enqueued++
		}

		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"enqueued": enqueued,
		"total":    len(createJobsBatch),
		"jobs":     items,
	})
}

// DispatchJob handles POST /api/v1/jobs
// Submits a single job of any registered type.
func (h *JobHandler) DispatchJob(c *gin.Context) {
	var req dto.DispatchJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	id, err := h.dispatcher.Dispatch(c.Request.Context(), req.JobType, req.Queue, req.Args)
	if err != nil {
		if errors.Is(err, job.ErrUnknownJobType) || errors.Is(err, job.ErrInvalidEnvelope) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to dispatch job",
			slog.String("job_type", req.JobType),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to dispatch job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.DispatchJobResponse{
		JobID:  id,
		Status: string(job.StatusQueued),
	})
}

// GetJobStatus handles GET /job-status/:job_id
// Returns the durable record projected for status polling.
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	rec, err := h.store.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown job id",
			})
			return
		}
		h.logger.Error("Failed to get job record",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		ID:         rec.ID,
		Status:     string(rec.Status),
		Result:     nullable(rec.Result),
		Error:      nullable(rec.Error),
		Traceback:  nullable(rec.Traceback),
		RetryCount: rec.RetryCount,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
	})
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

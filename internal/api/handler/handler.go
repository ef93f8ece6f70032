package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/jobengine/internal/job"
)

// Dispatcher is the submission path handlers dispatch through.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType, queue string, args json.RawMessage) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Store      job.Store
	Dispatcher Dispatcher
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger     *slog.Logger
	store      job.Store
	dispatcher Dispatcher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
	}
}

package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/cuongbtq/jobengine/internal/job/jobtest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	nextID string
	err    error

	calls []dispatchCall
}

type dispatchCall struct {
	jobType string
	queue   string
	args    json.RawMessage
}

func (d *stubDispatcher) Dispatch(_ context.Context, jobType, queue string, args json.RawMessage) (string, error) {
	d.calls = append(d.calls, dispatchCall{jobType: jobType, queue: queue, args: args})
	if d.err != nil {
		return "", d.err
	}
	if d.nextID != "" {
		return d.nextID, nil
	}
	return "generated-id", nil
}

func newTestRouter(store job.Store, dispatcher Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewJobHandler(&Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      store,
		Dispatcher: dispatcher,
	})

	r := gin.New()
	r.POST("/create-jobs/", h.CreateJobs)
	r.GET("/job-status/:job_id", h.GetJobStatus)
	r.POST("/api/v1/jobs", h.DispatchJob)
	return r
}

func TestDispatchJob(t *testing.T) {
	dispatcher := &stubDispatcher{nextID: "job-123"}
	r := newTestRouter(jobtest.NewFakeStore(), dispatcher)

	body := `{"job_type": "jobs.fibonacci", "queue": "high", "args": {"n": 10}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-123", resp["job_id"])
	assert.Equal(t, "queued", resp["status"])

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "jobs.fibonacci", dispatcher.calls[0].jobType)
	assert.Equal(t, "high", dispatcher.calls[0].queue)
	assert.JSONEq(t, `{"n": 10}`, string(dispatcher.calls[0].args))
}

func TestDispatchJob_MissingJobType(t *testing.T) {
	dispatcher := &stubDispatcher{}
	r := newTestRouter(jobtest.NewFakeStore(), dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(`{"queue": "high"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, dispatcher.calls)
}

func TestDispatchJob_UnknownType(t *testing.T) {
	dispatcher := &stubDispatcher{err: job.ErrUnknownJobType}
	r := newTestRouter(jobtest.NewFakeStore(), dispatcher)

	body := `{"job_type": "jobs.nonexistent"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown job type")
}

func TestDispatchJob_DispatchFailure(t *testing.T) {
	dispatcher := &stubDispatcher{err: errors.New("broker down")}
	r := newTestRouter(jobtest.NewFakeStore(), dispatcher)

	body := `{"job_type": "jobs.fibonacci"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateJobs(t *testing.T) {
	dispatcher := &stubDispatcher{}
	r := newTestRouter(jobtest.NewFakeStore(), dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/create-jobs/", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Enqueued int `json:"enqueued"`
		Total    int `json:"total"`
		Jobs     []struct {
			JobType string `json:"job_type"`
			Queue   string `json:"queue"`
			Status  string `json:"status"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 5, resp.Enqueued)
	require.Len(t, dispatcher.calls, 5)

	// The batch spans all three queues.
	queues := make(map[string]int)
	for _, call := range dispatcher.calls {
		queues[call.queue]++
	}
	assert.Equal(t, 1, queues["high"])
	assert.Equal(t, 2, queues["medium"])
	assert.Equal(t, 2, queues["low"])
}

func TestCreateJobs_PartialFailure(t *testing.T) {
	dispatcher := &stubDispatcher{err: errors.New("broker down")}
	r := newTestRouter(jobtest.NewFakeStore(), dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/create-jobs/", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	// Per-item failures do not fail the batch endpoint.
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Enqueued int `json:"enqueued"`
		Total    int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Enqueued)
	assert.Equal(t, 5, resp.Total)
}

func TestGetJobStatus(t *testing.T) {
	store := jobtest.NewFakeStore()
	store.Seed(&job.Record{
		ID:         "job-1",
		JobType:    "jobs.fibonacci",
		Payload:    `{"type":"jobs.fibonacci","queue":"high"}`,
		Status:     job.StatusCompleted,
		Result:     sql.NullString{String: "832040", Valid: true},
		RetryCount: 0,
		CreatedAt:  time.Now().UTC().Add(-time.Minute),
		UpdatedAt:  time.Now().UTC(),
	})
	r := newTestRouter(store, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/job-status/job-1", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID        string  `json:"id"`
		Status    string  `json:"status"`
		Result    *string `json:"result"`
		Error     *string `json:"error"`
		Traceback *string `json:"traceback"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "832040", *resp.Result)
	assert.Nil(t, resp.Error)
	assert.Nil(t, resp.Traceback)
}

func TestGetJobStatus_FailedRecord(t *testing.T) {
	store := jobtest.NewFakeStore()
	store.Seed(&job.Record{
		ID:         "job-2",
		JobType:    "jobs.always_fail",
		Status:     job.StatusFailed,
		Error:      sql.NullString{String: "this job always fails", Valid: true},
		Traceback:  sql.NullString{String: "goroutine 1 [running]:", Valid: true},
		RetryCount: 4,
	})
	r := newTestRouter(store, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/job-status/job-2", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status     string  `json:"status"`
		Error      *string `json:"error"`
		Traceback  *string `json:"traceback"`
		RetryCount int     `json:"retry_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "failed", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "this job always fails", *resp.Error)
	require.NotNil(t, resp.Traceback)
	assert.Equal(t, 4, resp.RetryCount)
}

func TestGetJobStatus_NotFound(t *testing.T) {
	r := newTestRouter(jobtest.NewFakeStore(), &stubDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/job-status/missing", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown job id")
}

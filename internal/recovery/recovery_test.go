package recovery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/cuongbtq/jobengine/internal/job/jobtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory(args json.RawMessage) (job.Unit, error) { return nil, nil }

func newTestReconciler(store *jobtest.FakeStore, broker *jobtest.FakeBroker) *Reconciler {
	registry := job.NewRegistry()
	registry.Register("jobs.fibonacci", noopFactory)

	return New(&Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:    store,
		Broker:   broker,
		Registry: registry,
		Window:   DefaultWindow,
	})
}

func payload(t *testing.T, jobType, queue string) string {
	t.Helper()
	env := job.Envelope{Type: jobType, Queue: queue, Args: json.RawMessage(`{"n": 5}`)}
	body, err := env.Encode()
	require.NoError(t, err)
	return string(body)
}

func TestRecoverStaleJobs_ResubmitsMissingEntry(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	store.Seed(&job.Record{
		ID:      "lost",
		JobType: "jobs.fibonacci",
		Payload: payload(t, "jobs.fibonacci", "high"),
		Status:  job.StatusStarted,
	})

	report, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Resubmitted)

	// The entry is resubmitted under its original id, onto its original queue.
	entry, ok := broker.Entry("lost")
	require.True(t, ok)
	assert.Equal(t, "high", entry.Queue)

	rec := store.Get("lost")
	assert.Equal(t, job.StatusQueued, rec.Status)
}

func TestRecoverStaleJobs_SkipsPresentEntry(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	body := payload(t, "jobs.fibonacci", "high")
	store.Seed(&job.Record{
		ID:      "inflight",
		JobType: "jobs.fibonacci",
		Payload: body,
		Status:  job.StatusQueued,
	})
	_, err := broker.Submit(context.Background(), "high", "inflight", []byte(body), 0)
	require.NoError(t, err)

	report, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Resubmitted)

	// The record is left untouched.
	assert.Equal(t, job.StatusQueued, store.Get("inflight").Status)
}

func TestRecoverStaleJobs_Idempotent(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	store.Seed(&job.Record{
		ID:      "lost",
		JobType: "jobs.fibonacci",
		Payload: payload(t, "jobs.fibonacci", "medium"),
		Status:  job.StatusStarted,
	})

	first, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Resubmitted)

	// A second run finds the entry present and does nothing.
	second, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Scanned)
	assert.Equal(t, 0, second.Resubmitted)
	assert.Equal(t, 1, broker.EntryCount())
}

func TestRecoverStaleJobs_WindowBoundary(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	body := payload(t, "jobs.fibonacci", "low")

	// 23 hours old: inside the window, recovered.
	store.Seed(&job.Record{
		ID:        "recent",
		JobType:   "jobs.fibonacci",
		Payload:   body,
		Status:    job.StatusQueued,
		CreatedAt: time.Now().UTC().Add(-23 * time.Hour),
	})

	// 25 hours old: outside the window, left alone.
	store.Seed(&job.Record{
		ID:        "ancient",
		JobType:   "jobs.fibonacci",
		Payload:   body,
		Status:    job.StatusQueued,
		CreatedAt: time.Now().UTC().Add(-25 * time.Hour),
	})

	report, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Resubmitted)

	_, recovered := broker.Entry("recent")
	assert.True(t, recovered)
	_, untouched := broker.Entry("ancient")
	assert.False(t, untouched)
}

func TestRecoverStaleJobs_SkipsTerminalRecords(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	body := payload(t, "jobs.fibonacci", "high")
	store.Seed(&job.Record{ID: "done", JobType: "jobs.fibonacci", Payload: body, Status: job.StatusCompleted})
	store.Seed(&job.Record{ID: "dead", JobType: "jobs.fibonacci", Payload: body, Status: job.StatusFailed})

	report, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, broker.EntryCount())
}

func TestRecoverStaleJobs_BadPayloadContinues(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	store.Seed(&job.Record{
		ID:        "broken",
		JobType:   "jobs.fibonacci",
		Payload:   `{"type":`,
		Status:    job.StatusQueued,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	})
	store.Seed(&job.Record{
		ID:      "fine",
		JobType: "jobs.fibonacci",
		Payload: payload(t, "jobs.fibonacci", "high"),
		Status:  job.StatusStarted,
	})

	report, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Resubmitted)

	// The unparsable record is skipped, not deleted.
	require.NotNil(t, store.Get("broken"))
	_, ok := broker.Entry("fine")
	assert.True(t, ok)
}

func TestRecoverStaleJobs_UnknownTypeSkipped(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	r := newTestReconciler(store, broker)

	store.Seed(&job.Record{
		ID:      "orphan-type",
		JobType: "jobs.retired",
		Payload: payload(t, "jobs.retired", "high"),
		Status:  job.StatusQueued,
	})

	report, err := r.RecoverStaleJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Resubmitted)
	assert.Equal(t, 0, broker.EntryCount())
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/cuongbtq/jobengine/internal/job/jobtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory(args json.RawMessage) (job.Unit, error) { return nil, nil }

func newTestDispatcher(store *jobtest.FakeStore, broker *jobtest.FakeBroker) *Dispatcher {
	registry := job.NewRegistry()
	registry.Register("jobs.fibonacci", noopFactory)
	registry.Register("jobs.always_fail", noopFactory)

	return New(&Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Broker:       broker,
		Store:        store,
		Registry:     registry,
		DefaultQueue: "medium",
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	d := newTestDispatcher(store, broker)

	id, err := d.Dispatch(context.Background(), "jobs.fibonacci", "high", json.RawMessage(`{"n": 10}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Broker entry and durable record share the id.
	entry, ok := broker.Entry(id)
	require.True(t, ok)
	assert.Equal(t, "high", entry.Queue)

	rec := store.Get(id)
	require.NotNil(t, rec)
	assert.Equal(t, job.StatusQueued, rec.Status)
	assert.Equal(t, "jobs.fibonacci", rec.JobType)

	// The persisted payload is the broker body, decodable on its own.
	assert.Equal(t, string(entry.Body), rec.Payload)
	env, err := job.DecodeEnvelope([]byte(rec.Payload))
	require.NoError(t, err)
	assert.Equal(t, "jobs.fibonacci", env.Type)
	assert.Equal(t, "high", env.Queue)
	assert.JSONEq(t, `{"n": 10}`, string(env.Args))
}

func TestDispatcher_DefaultQueue(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	d := newTestDispatcher(store, broker)

	id, err := d.Dispatch(context.Background(), "jobs.always_fail", "", nil)
	require.NoError(t, err)

	entry, ok := broker.Entry(id)
	require.True(t, ok)
	assert.Equal(t, "medium", entry.Queue)

	env, err := job.DecodeEnvelope(entry.Body)
	require.NoError(t, err)
	assert.Equal(t, "medium", env.Queue)
}

func TestDispatcher_UnknownType(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	d := newTestDispatcher(store, broker)

	_, err := d.Dispatch(context.Background(), "jobs.nonexistent", "high", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, job.ErrUnknownJobType)

	// Nothing was submitted or persisted.
	assert.Equal(t, 0, broker.EntryCount())
	assert.Equal(t, 0, store.Len())
}

func TestDispatcher_BrokerFailure(t *testing.T) {
	store := jobtest.NewFakeStore()
	broker := jobtest.NewFakeBroker()
	broker.SubmitErr = errors.New("redis unavailable")
	d := newTestDispatcher(store, broker)

	_, err := d.Dispatch(context.Background(), "jobs.fibonacci", "high", json.RawMessage(`{"n": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to submit job to broker")

	// No record is written for a failed submission.
	assert.Equal(t, 0, store.Len())
}

func TestDispatcher_RecordWriteFailure(t *testing.T) {
	store := jobtest.NewFakeStore()
	store.CreateErr = errors.New("database unavailable")
	broker := jobtest.NewFakeBroker()
	d := newTestDispatcher(store, broker)

	_, err := d.Dispatch(context.Background(), "jobs.fibonacci", "high", json.RawMessage(`{"n": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist job record")

	// The broker entry stays orphaned; no compensation is attempted.
	assert.Equal(t, 1, broker.EntryCount())
}

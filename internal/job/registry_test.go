package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterResolve(t *testing.T) {
	reg := NewRegistry()

	factory := func(args json.RawMessage) (Unit, error) { return nil, nil }
	reg.Register("jobs.fibonacci", factory)

	got, err := reg.Resolve("jobs.fibonacci")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve("jobs.nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownJobType)
	assert.Contains(t, err.Error(), "jobs.nonexistent")
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	reg := NewRegistry()

	first := func(args json.RawMessage) (Unit, error) { return nil, assert.AnError }
	second := func(args json.RawMessage) (Unit, error) { return nil, nil }

	reg.Register("jobs.slow_query", first)
	reg.Register("jobs.slow_query", second)

	factory, err := reg.Resolve("jobs.slow_query")
	require.NoError(t, err)

	_, err = factory(nil)
	assert.NoError(t, err)
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())

	factory := func(args json.RawMessage) (Unit, error) { return nil, nil }
	reg.Register("jobs.slow_query", factory)
	reg.Register("jobs.fibonacci", factory)
	reg.Register("jobs.always_fail", factory)

	assert.Equal(t, []string{"jobs.always_fail", "jobs.fibonacci", "jobs.slow_query"}, reg.Names())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusStarted.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

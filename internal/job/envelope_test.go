package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Encode(t *testing.T) {
	tests := []struct {
		name      string
		envelope  Envelope
		wantErr   bool
		errString string
	}{
		{
			name:     "valid envelope",
			envelope: Envelope{Type: "jobs.fibonacci", Queue: "high", Args: json.RawMessage(`{"n": 10}`)},
			wantErr:  false,
		},
		{
			name:     "valid envelope without args",
			envelope: Envelope{Type: "jobs.always_fail", Queue: "low"},
			wantErr:  false,
		},
		{
			name:      "missing type",
			envelope:  Envelope{Queue: "high"},
			wantErr:   true,
			errString: "missing job type",
		},
		{
			name:      "missing queue",
			envelope:  Envelope{Type: "jobs.fibonacci"},
			wantErr:   true,
			errString: "missing queue name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tt.envelope.Encode()

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEnvelope)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}

			require.NoError(t, err)

			decoded, err := DecodeEnvelope(body)
			require.NoError(t, err)
			assert.Equal(t, tt.envelope.Type, decoded.Type)
			assert.Equal(t, tt.envelope.Queue, decoded.Queue)
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		errString string
	}{
		{
			name:    "valid body",
			body:    `{"type": "jobs.fibonacci", "queue": "high", "args": {"n": 10}}`,
			wantErr: false,
		},
		{
			name:      "malformed json",
			body:      `{"type": "jobs.fib`,
			wantErr:   true,
			errString: "invalid",
		},
		{
			name:      "missing type",
			body:      `{"queue": "high"}`,
			wantErr:   true,
			errString: "missing job type",
		},
		{
			name:      "missing queue",
			body:      `{"type": "jobs.fibonacci"}`,
			wantErr:   true,
			errString: "missing queue name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.body))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEnvelope)
				assert.Nil(t, env)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, env)
			assert.Equal(t, "jobs.fibonacci", env.Type)
			assert.Equal(t, "high", env.Queue)
		})
	}
}

func TestEnvelope_RoundTripPreservesArgs(t *testing.T) {
	env := Envelope{
		Type:  "jobs.aggregate",
		Queue: "medium",
		Args:  json.RawMessage(`{"table": "employees", "group_by": "department"}`),
	}

	body, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(body)
	require.NoError(t, err)

	assert.JSONEq(t, string(env.Args), string(decoded.Args))
}

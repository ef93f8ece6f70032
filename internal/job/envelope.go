package job

import (
	"encoding/json"
	"fmt"
)

// Envelope is the serialized form of one submission. It is persisted verbatim
// as the record's payload and carried as the broker message body, so either
// store can reconstruct an equivalent submission without the original caller.
type Envelope struct {
	Type  string          `json:"type"`
	Queue string          `json:"queue"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// Encode serializes the envelope for persistence and broker transport.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("%w: missing job type", ErrInvalidEnvelope)
	}
	if e.Queue == "" {
		return nil, fmt.Errorf("%w: missing queue name", ErrInvalidEnvelope)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return body, nil
}

// DecodeEnvelope parses a stored payload or broker message body.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing job type", ErrInvalidEnvelope)
	}
	if env.Queue == "" {
		return nil, fmt.Errorf("%w: missing queue name", ErrInvalidEnvelope)
	}
	return &env, nil
}

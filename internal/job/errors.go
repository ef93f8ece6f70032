package job

import "errors"

var (
	// ErrRecordNotFound is returned when no durable record exists for an id.
	ErrRecordNotFound = errors.New("job record not found")

	// ErrRecordNotFailed is returned when a requeue is attempted on a record
	// that is not in the failed state.
	ErrRecordNotFailed = errors.New("job record is not in failed state")

	// ErrUnknownJobType is returned when a job type cannot be resolved
	// against the registry.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrInvalidEnvelope is returned when a stored payload cannot be decoded
	// back into a submission.
	ErrInvalidEnvelope = errors.New("invalid job envelope")
)

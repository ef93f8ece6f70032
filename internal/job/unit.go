package job

import (
	"context"
	"encoding/json"
	"time"
)

// Unit is one concrete, executable piece of work. Implementations are
// constructed from the deserialized envelope args by a Factory and must be
// safe to execute more than once: delivery is at least once and idempotence
// is the unit's responsibility.
type Unit interface {
	Execute(ctx context.Context) (string, error)
}

// Factory builds a Unit from raw envelope args.
type Factory func(args json.RawMessage) (Unit, error)

// Delivery is one broker delivery handed to the executor.
type Delivery struct {
	ID      string
	Queue   string
	Body    []byte
	Attempt int
	Timeout time.Duration
}

// Outcome is the tagged result of one execution pass. Exactly one of Result
// or Err is meaningful.
type Outcome struct {
	Result    string
	Err       error
	Traceback string
}

// Complete builds a successful outcome.
func Complete(result string) Outcome {
	return Outcome{Result: result}
}

// Fail builds a failed outcome carrying the diagnostic trace captured at the
// failure point.
func Fail(err error, traceback string) Outcome {
	return Outcome{Err: err, Traceback: traceback}
}

// Failed reports whether the pass ended in failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/cuongbtq/jobengine/internal/job"
)

// ErrAlwaysFail is the designated error raised by jobs.always_fail.
var ErrAlwaysFail = errors.New("this job always fails")

// AlwaysFail fails on every execution. Used to exercise the failure path,
// broker retries, and the manual requeue tooling.
type AlwaysFail struct {
	logger *slog.Logger
}

// NewAlwaysFail returns the factory for jobs.always_fail.
func NewAlwaysFail(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		return &AlwaysFail{logger: env.Logger}, nil
	}
}

func (a *AlwaysFail) Execute(ctx context.Context) (string, error) {
	a.logger.Info("Running always_fail job")
	return "", ErrAlwaysFail
}

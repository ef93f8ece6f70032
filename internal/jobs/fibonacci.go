package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cuongbtq/jobengine/internal/job"
)

// Fibonacci computes the n-th Fibonacci number iteratively.
type Fibonacci struct {
	n      int
	logger *slog.Logger
}

// NewFibonacci returns the factory for jobs.fibonacci.
func NewFibonacci(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		var params struct {
			N int `json:"n"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("fibonacci args: %w", err)
			}
		}
		return &Fibonacci{n: params.N, logger: env.Logger}, nil
	}
}

func (f *Fibonacci) Execute(ctx context.Context) (string, error) {
	f.logger.Info("Calculating Fibonacci number",
		slog.Int("n", f.n),
	)

	if f.n < 0 {
		return "", fmt.Errorf("n must be non-negative, got %d", f.n)
	}
	if f.n <= 1 {
		return strconv.Itoa(f.n), nil
	}

	var a, b uint64 = 0, 1
	for i := 2; i <= f.n; i++ {
		a, b = b, a+b
	}
	return strconv.FormatUint(b, 10), nil
}

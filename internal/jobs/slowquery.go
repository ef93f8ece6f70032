package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/jmoiron/sqlx"
)

// SlowQuery holds a database connection busy with pg_sleep. Used to exercise
// job timeouts and worker concurrency.
type SlowQuery struct {
	duration int
	db       *sqlx.DB
	logger   *slog.Logger
}

// NewSlowQuery returns the factory for jobs.slow_query.
func NewSlowQuery(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		var params struct {
			Duration int `json:"duration"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("slow_query args: %w", err)
			}
		}
		if params.Duration <= 0 {
			return nil, fmt.Errorf("slow_query duration must be positive, got %d", params.Duration)
		}
		return &SlowQuery{duration: params.Duration, db: env.DB, logger: env.Logger}, nil
	}
}

func (s *SlowQuery) Execute(ctx context.Context) (string, error) {
	s.logger.Info("Executing sleep query",
		slog.Int("duration_seconds", s.duration),
	)

	if _, err := s.db.ExecContext(ctx, "SELECT pg_sleep($1)", s.duration); err != nil {
		return "", fmt.Errorf("sleep query: %w", err)
	}

	return fmt.Sprintf("Slow query completed after %d seconds", s.duration), nil
}

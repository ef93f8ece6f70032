package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// TruncateTable truncates a table and resets its identity sequences.
type TruncateTable struct {
	table  string
	db     *sqlx.DB
	logger *slog.Logger
}

// NewTruncateTable returns the factory for jobs.truncate_table.
func NewTruncateTable(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		var params struct {
			Table string `json:"table"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("truncate_table args: %w", err)
			}
		}
		if params.Table == "" {
			return nil, fmt.Errorf("truncate_table requires table")
		}
		return &TruncateTable{table: params.Table, db: env.DB, logger: env.Logger}, nil
	}
}

func (t *TruncateTable) Execute(ctx context.Context) (string, error) {
	t.logger.Info("Truncating table",
		slog.String("table", t.table),
	)

	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", pq.QuoteIdentifier(t.table))
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("truncate table %s: %w", t.table, err)
	}

	return fmt.Sprintf("Table %s truncated successfully", t.table), nil
}

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

// DropTable drops a table if it exists.
type DropTable struct {
	table  string
	db     *sqlx.DB
	logger *slog.Logger
}

// NewDropTable returns the factory for jobs.drop_table.
func NewDropTable(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		var params struct {
			Table string `json:"table"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("drop_table args: %w", err)
			}
		}
		if params.Table == "" {
			return nil, fmt.Errorf("drop_table requires table")
		}
		return &DropTable{table: params.Table, db: env.DB, logger: env.Logger}, nil
	}
}

func (d *DropTable) Execute(ctx context.Context) (string, error) {
	d.logger.Info("Dropping table",
		slog.String("table", d.table),
	)

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", pq.QuoteIdentifier(d.table))
	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("drop table %s: %w", d.table, err)
	}

	return fmt.Sprintf("Table %s dropped successfully", d.table), nil
}

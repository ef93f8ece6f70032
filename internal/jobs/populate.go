package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/jmoiron/sqlx"
)

// Populate executes the SQL statements in a file, typically a seed script.
type Populate struct {
	sqlPath string
	db      *sqlx.DB
	logger  *slog.Logger
}

// NewPopulate returns the factory for jobs.populate.
func NewPopulate(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		var params struct {
			SQLPath string `json:"sql_path"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("populate args: %w", err)
			}
		}
		if params.SQLPath == "" {
			return nil, fmt.Errorf("populate requires sql_path")
		}
		return &Populate{sqlPath: params.SQLPath, db: env.DB, logger: env.Logger}, nil
	}
}

func (p *Populate) Execute(ctx context.Context) (string, error) {
	p.logger.Info("Populating table",
		slog.String("sql_path", p.sqlPath),
	)

	commands, err := os.ReadFile(p.sqlPath)
	if err != nil {
		return "", fmt.Errorf("read sql file: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, string(commands)); err != nil {
		return "", fmt.Errorf("execute sql file: %w", err)
	}

	p.logger.Info("Table populated successfully")
	return fmt.Sprintf("Executed %s", p.sqlPath), nil
}

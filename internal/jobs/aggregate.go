package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Aggregate sums salaries in a table grouped by a column. Identifiers come
// from the payload and are quoted, not bound, because Postgres cannot bind
// table or column names.
type Aggregate struct {
	table     string
	groupBy   string
	sortBy    string
	sortOrder string
	db        *sqlx.DB
	logger    *slog.Logger
}

// NewAggregate returns the factory for jobs.aggregate.
func NewAggregate(env *Env) job.Factory {
	return func(args json.RawMessage) (job.Unit, error) {
		var params struct {
			Table     string `json:"table"`
			GroupBy   string `json:"group_by"`
			SortBy    string `json:"sort_by"`
			SortOrder string `json:"sort_order"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("aggregate args: %w", err)
			}
		}
		if params.Table == "" || params.GroupBy == "" {
			return nil, fmt.Errorf("aggregate requires table and group_by")
		}
		if params.SortBy == "" {
			params.SortBy = params.GroupBy
		}
		switch strings.ToUpper(params.SortOrder) {
		case "", "ASC":
			params.SortOrder = "ASC"
		case "DESC":
			params.SortOrder = "DESC"
		default:
			return nil, fmt.Errorf("aggregate sort_order must be ASC or DESC, got %q", params.SortOrder)
		}
		return &Aggregate{
			table:     params.Table,
			groupBy:   params.GroupBy,
			sortBy:    params.SortBy,
			sortOrder: params.SortOrder,
			db:        env.DB,
			logger:    env.Logger,
		}, nil
	}
}

func (a *Aggregate) Execute(ctx context.Context) (string, error) {
	a.logger.Info("Aggregating table",
		slog.String("table", a.table),
		slog.String("group_by", a.groupBy),
	)

	query := fmt.Sprintf(
		"SELECT %s, SUM(salary) AS total_salary FROM %s GROUP BY %s ORDER BY %s %s",
		pq.QuoteIdentifier(a.groupBy),
		pq.QuoteIdentifier(a.table),
		pq.QuoteIdentifier(a.groupBy),
		pq.QuoteIdentifier(a.sortBy),
		a.sortOrder,
	)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("aggregate query: %w", err)
	}
	defer rows.Close()

	groups := 0
	for rows.Next() {
		groups++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("aggregate scan: %w", err)
	}

	return fmt.Sprintf("Aggregation complete. %d groups found.", groups), nil
}

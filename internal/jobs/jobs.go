package jobs

import (
	"log/slog"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/jmoiron/sqlx"
)

// Registry keys. These are the stable references persisted in job payloads,
// so renaming one breaks replay of existing records.
const (
	TypeFibonacci     = "jobs.fibonacci"
	TypeSlowQuery     = "jobs.slow_query"
	TypeAlwaysFail    = "jobs.always_fail"
	TypeAggregate     = "jobs.aggregate"
	TypePopulate      = "jobs.populate"
	TypeDropTable     = "jobs.drop_table"
	TypeTruncateTable = "jobs.truncate_table"
)

// Env carries the shared dependencies job units may need. It is passed to
// each factory at registration time instead of living in package state.
type Env struct {
	DB     *sqlx.DB
	Logger *slog.Logger
}

// Register binds every known job type to its factory. Called once at
// startup by every process that dispatches or executes jobs.
func Register(reg *job.Registry, env *Env) {
	reg.Register(TypeFibonacci, NewFibonacci(env))
	reg.Register(TypeSlowQuery, NewSlowQuery(env))
	reg.Register(TypeAlwaysFail, NewAlwaysFail(env))
	reg.Register(TypeAggregate, NewAggregate(env))
	reg.Register(TypePopulate, NewPopulate(env))
	reg.Register(TypeDropTable, NewDropTable(env))
	reg.Register(TypeTruncateTable, NewTruncateTable(env))
}

package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// Options configures the River client built by Setup.
type Options struct {
	Logger *zap.Logger
	// Events backs the overdue sweep. The sweep is disabled when nil or when
	// SweepSchedule is empty.
	Events        domain.EventRepository
	SweepSchedule string
	// Now overrides the sweep's clock.
	Now func() time.Time
}

// Setup creates a River client with the lifecycle workers registered and runs
// River's internal migrations. The caller must call client.Start() to begin
// processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &NotificationWorker{logger: logger})

	var periodic []*river.PeriodicJob
	if opts.Events != nil && opts.SweepSchedule != "" {
		schedule, err := ParseSchedule(opts.SweepSchedule)
		if err != nil {
			return nil, err
		}

		river.AddWorker(workers, &OverdueSweepWorker{events: opts.Events, logger: logger, now: now})
		periodic = append(periodic, river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) { return OverdueSweepArgs{}, nil },
			nil,
		))
	}

	client, err := river.NewClient(riversqlite.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}

// Migrate applies River's own schema (river_job, river_leader, ...). These
// tables are separate from the app's goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrator, err := rivermigrate.New(riversqlite.New(db), nil)
	if err != nil {
		return fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("running river migrations: %w", err)
	}
	return nil
}

// ParseSchedule parses a standard five-field cron expression (descriptors
// such as "@hourly" are accepted).
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", expr, err)
	}
	return schedule, nil
}

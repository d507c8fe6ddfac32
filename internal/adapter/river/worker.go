package river

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// NotificationWorker delivers lifecycle notifications. Delivery is a
// structured log line for now.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationJobArgs]
	logger *zap.Logger
}

// Work processes a single notification job.
func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationJobArgs]) error {
	w.logger.Info("lifecycle notification",
		zap.String("kind", job.Args.NotificationKind),
		zap.String("instance_id", job.Args.InstanceID),
		zap.String("event_id", job.Args.EventID),
		zap.String("task_id", job.Args.TaskID),
		zap.String("action", job.Args.Action),
		zap.String("state", job.Args.State),
		zap.String("actor_id", job.Args.ActorID),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// OverdueSweepArgs triggers one pass over pending events whose scheduled time
// has passed.
type OverdueSweepArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (OverdueSweepArgs) Kind() string { return "lifecycle.overdue_sweep" }

// OverdueSweepWorker reports overdue scheduled events. It never performs
// transitions: scheduled time is advisory and completion stays manual.
type OverdueSweepWorker struct {
	river.WorkerDefaults[OverdueSweepArgs]
	events domain.EventRepository
	logger *zap.Logger
	now    func() time.Time
}

// Work lists overdue events and logs one reminder per event.
func (w *OverdueSweepWorker) Work(ctx context.Context, job *river.Job[OverdueSweepArgs]) error {
	now := w.now()
	pending := true

	overdue, err := w.events.ListEvents(ctx, domain.EventFilter{Pending: &pending, DueBefore: &now})
	if err != nil {
		return err
	}

	for _, ev := range overdue {
		w.logger.Warn("scheduled event overdue",
			zap.String("event_id", ev.ID),
			zap.String("instance_id", ev.ServiceInstanceID),
			zap.String("action", string(ev.Action)),
			zap.String("assigned_to", ev.AssignedTo),
			zap.String("priority", string(ev.Priority)),
			zap.Duration("late_by", now.Sub(*ev.ScheduledTime)),
		)
	}

	w.logger.Debug("overdue sweep finished",
		zap.Int("overdue", len(overdue)),
		zap.Int64("job_id", job.ID),
	)
	return nil
}

package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/svclife/internal/domain"
)

const instrumentationName = "github.com/neomorfeo/svclife/internal/adapter/otel"

// Compile-time checks.
var (
	_ domain.InstanceRepository = (*TracingInstances)(nil)
	_ domain.HistoryRepository  = (*TracingHistory)(nil)
	_ domain.EventRepository    = (*TracingEvents)(nil)
	_ domain.TaskRepository     = (*TracingTasks)(nil)
)

// finish records err on span, if any.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TracingInstances wraps a domain.InstanceRepository with a span per call.
type TracingInstances struct {
	next   domain.InstanceRepository
	tracer trace.Tracer
}

// NewTracingInstances creates a tracing decorator around the given repository.
func NewTracingInstances(next domain.InstanceRepository) *TracingInstances {
	return &TracingInstances{next: next, tracer: otel.Tracer(instrumentationName)}
}

func (r *TracingInstances) CreateInstance(ctx context.Context, si domain.ServiceInstance) error {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.CreateInstance",
		trace.WithAttributes(
			attribute.String("instance.id", si.ID),
			attribute.String("instance.client_id", si.ClientID),
			attribute.String("instance.service_name", si.ServiceName),
		),
	)
	defer span.End()

	err := r.next.CreateInstance(ctx, si)
	finish(span, err)
	return err
}

func (r *TracingInstances) GetInstance(ctx context.Context, id string) (domain.ServiceInstance, error) {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.GetInstance",
		trace.WithAttributes(attribute.String("instance.id", id)),
	)
	defer span.End()

	si, err := r.next.GetInstance(ctx, id)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.String("instance.state", string(si.CurrentState)))
	}
	return si, err
}

func (r *TracingInstances) ListInstances(ctx context.Context, filter domain.InstanceFilter) ([]domain.ServiceInstance, error) {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.ListInstances",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.State != nil {
		span.SetAttributes(attribute.String("filter.state", string(*filter.State)))
	}
	if filter.ClientID != "" {
		span.SetAttributes(attribute.String("filter.client_id", filter.ClientID))
	}

	out, err := r.next.ListInstances(ctx, filter)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(out)))
	}
	return out, err
}

// TracingHistory wraps a domain.HistoryRepository with a span per call and
// counts committed and conflicting transitions.
type TracingHistory struct {
	next        domain.HistoryRepository
	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// NewTracingHistory creates a tracing decorator around the given repository.
func NewTracingHistory(next domain.HistoryRepository) (*TracingHistory, error) {
	counter, err := otel.Meter(instrumentationName).Int64Counter("svclife.transitions",
		metric.WithDescription("Transition commits by action and outcome."),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &TracingHistory{
		next:        next,
		tracer:      otel.Tracer(instrumentationName),
		transitions: counter,
	}, nil
}

func (r *TracingHistory) CommitTransition(ctx context.Context, commit domain.TransitionCommit) error {
	entry := commit.Entry
	attrs := []attribute.KeyValue{
		attribute.String("instance.id", entry.ServiceInstanceID),
		attribute.String("transition.action", string(entry.Action)),
		attribute.String("transition.from", string(commit.Expected)),
		attribute.String("transition.to", string(entry.ResultingState)),
		attribute.String("actor.role", string(entry.PerformedByRole)),
	}
	if commit.CompleteEventID != "" {
		attrs = append(attrs, attribute.String("event.id", commit.CompleteEventID))
	}

	ctx, span := r.tracer.Start(ctx, "HistoryRepository.CommitTransition", trace.WithAttributes(attrs...))
	defer span.End()

	err := r.next.CommitTransition(ctx, commit)
	finish(span, err)

	r.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition.action", string(entry.Action)),
		attribute.String("outcome", outcome(err)),
	))
	return err
}

func (r *TracingHistory) ListHistory(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	ctx, span := r.tracer.Start(ctx, "HistoryRepository.ListHistory",
		trace.WithAttributes(attribute.String("instance.id", instanceID)),
	)
	defer span.End()

	out, err := r.next.ListHistory(ctx, instanceID)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(out)))
	}
	return out, err
}

func outcome(err error) string {
	var conflict *domain.ConcurrencyConflictError
	switch {
	case err == nil:
		return "committed"
	case errors.As(err, &conflict):
		return "conflict"
	default:
		return "error"
	}
}

// TracingEvents wraps a domain.EventRepository with a span per call.
type TracingEvents struct {
	next   domain.EventRepository
	tracer trace.Tracer
}

// NewTracingEvents creates a tracing decorator around the given repository.
func NewTracingEvents(next domain.EventRepository) *TracingEvents {
	return &TracingEvents{next: next, tracer: otel.Tracer(instrumentationName)}
}

func (r *TracingEvents) CreateEvent(ctx context.Context, e domain.ScheduledEvent) error {
	ctx, span := r.tracer.Start(ctx, "EventRepository.CreateEvent",
		trace.WithAttributes(
			attribute.String("event.id", e.ID),
			attribute.String("instance.id", e.ServiceInstanceID),
			attribute.String("event.action", string(e.Action)),
			attribute.String("event.priority", string(e.Priority)),
		),
	)
	defer span.End()

	err := r.next.CreateEvent(ctx, e)
	finish(span, err)
	return err
}

func (r *TracingEvents) GetEvent(ctx context.Context, id string) (domain.ScheduledEvent, error) {
	ctx, span := r.tracer.Start(ctx, "EventRepository.GetEvent",
		trace.WithAttributes(attribute.String("event.id", id)),
	)
	defer span.End()

	e, err := r.next.GetEvent(ctx, id)
	finish(span, err)
	return e, err
}

func (r *TracingEvents) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.ScheduledEvent, error) {
	ctx, span := r.tracer.Start(ctx, "EventRepository.ListEvents")
	defer span.End()

	if filter.InstanceID != "" {
		span.SetAttributes(attribute.String("instance.id", filter.InstanceID))
	}
	if filter.Pending != nil {
		span.SetAttributes(attribute.Bool("filter.pending", *filter.Pending))
	}
	if filter.DueBefore != nil {
		span.SetAttributes(attribute.String("filter.due_before", filter.DueBefore.Format(time.RFC3339)))
	}

	out, err := r.next.ListEvents(ctx, filter)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(out)))
	}
	return out, err
}

func (r *TracingEvents) CancelEvent(ctx context.Context, c domain.Cancellation) error {
	ctx, span := r.tracer.Start(ctx, "EventRepository.CancelEvent",
		trace.WithAttributes(
			attribute.String("event.id", c.EventID),
			attribute.String("instance.id", c.ServiceInstanceID),
		),
	)
	defer span.End()

	err := r.next.CancelEvent(ctx, c)
	finish(span, err)
	return err
}

func (r *TracingEvents) ListCancellations(ctx context.Context, instanceID string) ([]domain.Cancellation, error) {
	ctx, span := r.tracer.Start(ctx, "EventRepository.ListCancellations",
		trace.WithAttributes(attribute.String("instance.id", instanceID)),
	)
	defer span.End()

	out, err := r.next.ListCancellations(ctx, instanceID)
	finish(span, err)
	return out, err
}

// TracingTasks wraps a domain.TaskRepository with a span per call.
type TracingTasks struct {
	next   domain.TaskRepository
	tracer trace.Tracer
}

// NewTracingTasks creates a tracing decorator around the given repository.
func NewTracingTasks(next domain.TaskRepository) *TracingTasks {
	return &TracingTasks{next: next, tracer: otel.Tracer(instrumentationName)}
}

func (r *TracingTasks) CreateTask(ctx context.Context, t domain.Task) error {
	ctx, span := r.tracer.Start(ctx, "TaskRepository.CreateTask",
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("event.id", t.EventID),
		),
	)
	defer span.End()

	err := r.next.CreateTask(ctx, t)
	finish(span, err)
	return err
}

func (r *TracingTasks) GetTask(ctx context.Context, id string) (domain.Task, error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepository.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	t, err := r.next.GetTask(ctx, id)
	finish(span, err)
	return t, err
}

func (r *TracingTasks) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepository.ListTasks")
	defer span.End()

	if filter.InstanceID != "" {
		span.SetAttributes(attribute.String("instance.id", filter.InstanceID))
	}
	if filter.EventID != "" {
		span.SetAttributes(attribute.String("event.id", filter.EventID))
	}
	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	out, err := r.next.ListTasks(ctx, filter)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(out)))
	}
	return out, err
}

func (r *TracingTasks) CompleteTask(ctx context.Context, id, completedBy string, completedAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "TaskRepository.CompleteTask",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.String("task.completed_by", completedBy),
		),
	)
	defer span.End()

	err := r.next.CompleteTask(ctx, id, completedBy, completedAt)
	finish(span, err)
	return err
}

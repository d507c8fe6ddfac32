package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// CreateEventRequest describes a deferred transition.
type CreateEventRequest struct {
	InstanceID string
	// CurrentState is the state the caller observed; the action must be
	// legal from it when the event is created.
	CurrentState  domain.State
	Action        domain.Action
	ScheduledTime *time.Time
	AssignedTo    string
	Priority      domain.Priority
	Actor         domain.Actor
}

// CompleteEventResult is the outcome of completing a scheduled event.
type CompleteEventResult struct {
	Event      domain.ScheduledEvent
	Transition TransitionResult
}

// Scheduler manages deferred transitions. Completing an event goes through
// the Controller; the scheduler never writes state or history itself.
type Scheduler struct {
	events     domain.EventRepository
	instances  domain.InstanceRepository
	table      domain.TransitionTable
	controller *Controller
	options
}

// NewScheduler creates a scheduler. The controller is used to execute
// completed events.
func NewScheduler(events domain.EventRepository, instances domain.InstanceRepository, table domain.TransitionTable, controller *Controller, opts ...Option) *Scheduler {
	return &Scheduler{
		events:     events,
		instances:  instances,
		table:      table,
		controller: controller,
		options:    buildOptions(opts),
	}
}

// CreateEvent persists a pending scheduled event.
func (s *Scheduler) CreateEvent(ctx context.Context, req CreateEventRequest) (domain.ScheduledEvent, error) {
	priority := req.Priority.OrDefault()
	if !priority.Valid() {
		return domain.ScheduledEvent{}, &domain.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown value %q", req.Priority)}
	}

	target, ok := s.table.NextState(req.CurrentState, req.Action)
	if !ok {
		return domain.ScheduledEvent{}, &domain.TransitionError{Action: req.Action, Current: req.CurrentState}
	}

	if _, err := s.instances.GetInstance(ctx, req.InstanceID); err != nil {
		return domain.ScheduledEvent{}, err
	}

	// Scheduling an action requires the right to perform it.
	if !s.table.ValidActions(req.CurrentState, req.Actor.Role).Contains(req.Action) {
		return domain.ScheduledEvent{}, &domain.UnauthorizedError{
			Role:   req.Actor.Role,
			Action: req.Action,
			State:  req.CurrentState,
		}
	}

	id, err := generateID()
	if err != nil {
		return domain.ScheduledEvent{}, fmt.Errorf("generating event id: %w", err)
	}

	event := domain.ScheduledEvent{
		ID:                id,
		ServiceInstanceID: req.InstanceID,
		TargetState:       target,
		Action:            req.Action,
		ScheduledTime:     req.ScheduledTime,
		AssignedTo:        req.AssignedTo,
		Priority:          priority,
		CreatedAt:         s.now(),
	}

	if err := s.events.CreateEvent(ctx, event); err != nil {
		return domain.ScheduledEvent{}, fmt.Errorf("creating scheduled event: %w", err)
	}

	s.logger.Info("event scheduled",
		zap.String("event_id", event.ID),
		zap.String("instance_id", event.ServiceInstanceID),
		zap.String("action", string(event.Action)),
		zap.String("target", string(event.TargetState)),
	)

	s.notify(ctx, domain.Notification{
		Kind:       domain.NotifyEventScheduled,
		InstanceID: event.ServiceInstanceID,
		EventID:    event.ID,
		Action:     event.Action,
		State:      event.TargetState,
		ActorID:    req.Actor.ID,
	})

	return event, nil
}

// CompleteEvent executes a pending event against the instance's live state.
// If the instance has moved since the event was scheduled and the action is
// no longer legal, the transition error is returned and the event stays
// pending.
func (s *Scheduler) CompleteEvent(ctx context.Context, eventID string, actor domain.Actor, comments string) (CompleteEventResult, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return CompleteEventResult{}, err
	}
	if event.IsCompleted {
		return CompleteEventResult{}, domain.ErrEventCompleted
	}

	instance, err := s.instances.GetInstance(ctx, event.ServiceInstanceID)
	if err != nil {
		return CompleteEventResult{}, err
	}

	result, err := s.controller.perform(ctx, TransitionRequest{
		InstanceID:      instance.ID,
		ExpectedState:   instance.CurrentState,
		ExpectedVersion: &instance.Version,
		Action:          event.Action,
		Actor:           actor,
		Comments:        comments,
	}, event.ID)
	if err != nil {
		return CompleteEventResult{}, err
	}

	completedAt := result.Entry.Timestamp
	event.IsCompleted = true
	event.CompletedTime = &completedAt
	event.HistoryEntryID = result.Entry.ID

	return CompleteEventResult{Event: event, Transition: result}, nil
}

// CancelEvent removes a pending event and records why. Only admin and staff
// may cancel. Cancellation never produces a history entry.
func (s *Scheduler) CancelEvent(ctx context.Context, eventID, reason string, actor domain.Actor) (domain.Cancellation, error) {
	if !actor.Role.Internal() {
		return domain.Cancellation{}, &domain.UnauthorizedError{Role: actor.Role, Operation: "cancel scheduled events"}
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Cancellation{}, err
	}
	if event.IsCompleted {
		return domain.Cancellation{}, domain.ErrEventCompleted
	}

	id, err := generateID()
	if err != nil {
		return domain.Cancellation{}, fmt.Errorf("generating cancellation id: %w", err)
	}

	cancellation := domain.Cancellation{
		ID:                id,
		EventID:           event.ID,
		ServiceInstanceID: event.ServiceInstanceID,
		Action:            event.Action,
		Reason:            reason,
		CancelledBy:       actor.ID,
		CancelledAt:       s.now(),
	}

	if err := s.events.CancelEvent(ctx, cancellation); err != nil {
		return domain.Cancellation{}, fmt.Errorf("cancelling scheduled event: %w", err)
	}

	s.logger.Info("event cancelled",
		zap.String("event_id", event.ID),
		zap.String("instance_id", event.ServiceInstanceID),
		zap.String("reason", reason),
	)

	s.notify(ctx, domain.Notification{
		Kind:       domain.NotifyEventCancelled,
		InstanceID: event.ServiceInstanceID,
		EventID:    event.ID,
		Action:     event.Action,
		ActorID:    actor.ID,
	})

	return cancellation, nil
}

// GetEvent returns a scheduled event by its unique identifier.
func (s *Scheduler) GetEvent(ctx context.Context, id string) (domain.ScheduledEvent, error) {
	return s.events.GetEvent(ctx, id)
}

// ListEvents returns scheduled events matching the given filter.
func (s *Scheduler) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.ScheduledEvent, error) {
	return s.events.ListEvents(ctx, filter)
}

// ListOverdue returns pending events whose scheduled time has passed.
func (s *Scheduler) ListOverdue(ctx context.Context) ([]domain.ScheduledEvent, error) {
	pending := true
	now := s.now()
	return s.events.ListEvents(ctx, domain.EventFilter{Pending: &pending, DueBefore: &now})
}

// ListCancellations returns the cancellation records of an instance.
func (s *Scheduler) ListCancellations(ctx context.Context, instanceID string) ([]domain.Cancellation, error) {
	return s.events.ListCancellations(ctx, instanceID)
}

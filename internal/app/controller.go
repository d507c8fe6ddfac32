package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// TransitionRequest asks for an immediate lifecycle transition.
// ExpectedState is the state the caller read earlier; the transition is
// evaluated against it and committed only if the instance is still in it.
// ExpectedVersion pins the same read for self-loops such as renew; when nil,
// the instance's version is read just before committing.
type TransitionRequest struct {
	InstanceID      string
	ExpectedState   domain.State
	ExpectedVersion *int64
	Action          domain.Action
	Actor           domain.Actor
	Comments        string
}

// TransitionResult is the outcome of a committed transition.
type TransitionResult struct {
	State   domain.State
	Version int64
	Entry   domain.HistoryEntry
}

// Controller executes lifecycle transitions. It is the only writer of the
// history ledger and of an instance's current state.
type Controller struct {
	instances domain.InstanceRepository
	history   domain.HistoryRepository
	table     domain.TransitionTable
	options
}

// NewController creates a controller with the given adapters.
func NewController(instances domain.InstanceRepository, history domain.HistoryRepository, table domain.TransitionTable, opts ...Option) *Controller {
	return &Controller{
		instances: instances,
		history:   history,
		table:     table,
		options:   buildOptions(opts),
	}
}

// PerformTransition validates and commits an immediate transition.
func (c *Controller) PerformTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	return c.perform(ctx, req, "")
}

// perform commits req, marking eventID completed in the same commit when set.
func (c *Controller) perform(ctx context.Context, req TransitionRequest, eventID string) (TransitionResult, error) {
	if req.Actor.ID == "" {
		return TransitionResult{}, &domain.ValidationError{Field: "actor", Message: "acting user is required"}
	}

	next, ok := c.table.NextState(req.ExpectedState, req.Action)
	if !ok {
		return TransitionResult{}, &domain.TransitionError{Action: req.Action, Current: req.ExpectedState}
	}

	if !c.table.ValidActions(req.ExpectedState, req.Actor.Role).Contains(req.Action) {
		return TransitionResult{}, &domain.UnauthorizedError{
			Role:   req.Actor.Role,
			Action: req.Action,
			State:  req.ExpectedState,
		}
	}

	version, err := c.expectedVersion(ctx, req)
	if err != nil {
		return TransitionResult{}, err
	}

	id, err := generateID()
	if err != nil {
		return TransitionResult{}, fmt.Errorf("generating history entry id: %w", err)
	}

	entry := domain.HistoryEntry{
		ID:                id,
		ServiceInstanceID: req.InstanceID,
		PreviousState:     req.ExpectedState,
		ResultingState:    next,
		Action:            req.Action,
		PerformedBy:       req.Actor.ID,
		PerformedByRole:   req.Actor.Role,
		Comments:          req.Comments,
		EventID:           eventID,
		Timestamp:         c.now(),
	}

	err = c.history.CommitTransition(ctx, domain.TransitionCommit{
		Expected:        req.ExpectedState,
		ExpectedVersion: version,
		Entry:           entry,
		CompleteEventID: eventID,
	})
	if err != nil {
		return TransitionResult{}, fmt.Errorf("committing transition: %w", err)
	}

	c.logger.Info("transition committed",
		zap.String("instance_id", req.InstanceID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(req.ExpectedState)),
		zap.String("to", string(next)),
		zap.Int64("version", version+1),
		zap.String("actor_id", req.Actor.ID),
		zap.String("event_id", eventID),
	)

	c.notify(ctx, domain.Notification{
		Kind:       domain.NotifyTransitionCommitted,
		InstanceID: req.InstanceID,
		EventID:    eventID,
		Action:     req.Action,
		State:      next,
		ActorID:    req.Actor.ID,
	})

	return TransitionResult{State: next, Version: version + 1, Entry: entry}, nil
}

func (c *Controller) expectedVersion(ctx context.Context, req TransitionRequest) (int64, error) {
	if req.ExpectedVersion != nil {
		return *req.ExpectedVersion, nil
	}
	instance, err := c.instances.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return 0, err
	}
	return instance.Version, nil
}

// ValidActions returns the actions role may perform from the instance's
// current state, in declaration order.
func (c *Controller) ValidActions(ctx context.Context, instanceID string, role domain.Role) (domain.State, []domain.Action, error) {
	instance, err := c.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return "", nil, err
	}
	return instance.CurrentState, domain.SortActions(c.table.ValidActions(instance.CurrentState, role)), nil
}

package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/svclife/internal/adapter/fsm"
	"github.com/neomorfeo/svclife/internal/app"
	"github.com/neomorfeo/svclife/internal/domain"
)

func mustCreateEvent(t *testing.T, h *harness, si domain.ServiceInstance, action domain.Action) domain.ScheduledEvent {
	t.Helper()
	ev, err := h.scheduler.CreateEvent(context.Background(), app.CreateEventRequest{
		InstanceID:   si.ID,
		CurrentState: si.CurrentState,
		Action:       action,
		Actor:        staff,
	})
	require.NoError(t, err)
	return ev
}

func TestCreateEvent_Pending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	when := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

	ev, err := h.scheduler.CreateEvent(ctx, app.CreateEventRequest{
		InstanceID:    si.ID,
		CurrentState:  domain.StateActive,
		Action:        domain.ActionRequestRenewal,
		ScheduledTime: &when,
		AssignedTo:    "u-staff",
		Priority:      domain.PriorityHigh,
		Actor:         staff,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, domain.StateRenewalDue, ev.TargetState)
	assert.Equal(t, domain.PriorityHigh, ev.Priority)
	assert.False(t, ev.IsCompleted)
	assert.Nil(t, ev.CompletedTime)

	// Scheduling never touches state or history.
	stored, err := h.instances.Get(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, stored.CurrentState)

	history, err := h.controller.HistoryFor(ctx, si.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Equal(t, []domain.NotificationKind{domain.NotifyEventScheduled}, h.notifier.kinds())
}

func TestCreateEvent_DefaultPriority(t *testing.T) {
	h := newHarness(t)
	si := h.provision(t, domain.StateActive)

	ev := mustCreateEvent(t, h, si, domain.ActionRenew)
	assert.Equal(t, domain.PriorityMedium, ev.Priority)
}

func TestCreateEvent_InvalidTransition(t *testing.T) {
	h := newHarness(t)
	si := h.provision(t, domain.StateSuspended)

	_, err := h.scheduler.CreateEvent(context.Background(), app.CreateEventRequest{
		InstanceID:   si.ID,
		CurrentState: domain.StateSuspended,
		Action:       domain.ActionRenew,
	})
	var trErr *domain.TransitionError
	assert.True(t, errors.As(err, &trErr), "expected TransitionError, got %v", err)
}

func TestCreateEvent_InvalidPriority(t *testing.T) {
	h := newHarness(t)
	si := h.provision(t, domain.StateActive)

	_, err := h.scheduler.CreateEvent(context.Background(), app.CreateEventRequest{
		InstanceID:   si.ID,
		CurrentState: domain.StateActive,
		Action:       domain.ActionRenew,
		Priority:     "asap",
	})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	assert.Equal(t, "priority", vErr.Field)
}

func TestCreateEvent_InstanceNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.scheduler.CreateEvent(context.Background(), app.CreateEventRequest{
		InstanceID:   "nonexistent",
		CurrentState: domain.StateActive,
		Action:       domain.ActionRenew,
	})
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestCreateEvent_RequiresRightToPerform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	observer := domain.Actor{ID: "u-obs", Role: domain.RoleObserver}

	tests := []struct {
		name   string
		actor  domain.Actor
		action domain.Action
	}{
		{"observer renewal", observer, domain.ActionRequestRenewal},
		{"client suspend", client, domain.ActionSuspend},
		{"staff terminate", staff, domain.ActionTerminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.scheduler.CreateEvent(ctx, app.CreateEventRequest{
				InstanceID:   si.ID,
				CurrentState: domain.StateActive,
				Action:       tt.action,
				Actor:        tt.actor,
			})
			var authErr *domain.UnauthorizedError
			require.True(t, errors.As(err, &authErr), "expected UnauthorizedError, got %v", err)
			assert.Equal(t, tt.actor.Role, authErr.Role)
			assert.Equal(t, tt.action, authErr.Action)
		})
	}

	events, err := h.scheduler.ListEvents(ctx, domain.EventFilter{InstanceID: si.ID})
	require.NoError(t, err)
	assert.Empty(t, events)

	// A client may schedule what it may perform.
	ev, err := h.scheduler.CreateEvent(ctx, app.CreateEventRequest{
		InstanceID:   si.ID,
		CurrentState: domain.StateActive,
		Action:       domain.ActionRequestRenewal,
		Actor:        client,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateRenewalDue, ev.TargetState)
}

func TestCompleteEvent_ExecutesTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionSuspend)

	res, err := h.scheduler.CompleteEvent(ctx, ev.ID, admin, "non-payment")
	require.NoError(t, err)
	assert.True(t, res.Event.IsCompleted)
	require.NotNil(t, res.Event.CompletedTime)
	assert.Equal(t, res.Transition.Entry.ID, res.Event.HistoryEntryID)
	assert.Equal(t, domain.StateSuspended, res.Transition.State)

	history, err := h.controller.HistoryFor(ctx, si.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StateSuspended, history[0].ResultingState)
	assert.Equal(t, ev.ID, history[0].EventID)
	assert.Equal(t, "non-payment", history[0].Comments)

	stored, err := h.scheduler.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
}

func TestCompleteEvent_StateDriftFailsAndStaysPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionRenew)

	// An unrelated call suspends the instance before the event is completed.
	_, err := h.controller.PerformTransition(ctx, app.TransitionRequest{
		InstanceID:    si.ID,
		ExpectedState: domain.StateActive,
		Action:        domain.ActionSuspend,
		Actor:         admin,
	})
	require.NoError(t, err)

	_, err = h.scheduler.CompleteEvent(ctx, ev.ID, admin, "")
	var trErr *domain.TransitionError
	require.True(t, errors.As(err, &trErr), "expected TransitionError, got %v", err)
	assert.Equal(t, domain.StateSuspended, trErr.Current)
	assert.Equal(t, domain.ActionRenew, trErr.Action)

	stored, err := h.scheduler.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCompleted)

	inst, err := h.instances.Get(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSuspended, inst.CurrentState)

	history, err := h.controller.HistoryFor(ctx, si.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the suspend entry")
}

func TestCompleteEvent_UsesLiveState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionRenew)
	assert.Equal(t, domain.StateActive, ev.TargetState)

	// Move to renewal_due; renew is still legal and lands on active.
	_, err := h.controller.PerformTransition(ctx, app.TransitionRequest{
		InstanceID:    si.ID,
		ExpectedState: domain.StateActive,
		Action:        domain.ActionRequestRenewal,
		Actor:         client,
	})
	require.NoError(t, err)

	res, err := h.scheduler.CompleteEvent(ctx, ev.ID, staff, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRenewalDue, res.Transition.Entry.PreviousState)
	assert.Equal(t, domain.StateActive, res.Transition.State)
}

func TestCompleteEvent_Unauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev, err := h.scheduler.CreateEvent(ctx, app.CreateEventRequest{
		InstanceID:   si.ID,
		CurrentState: si.CurrentState,
		Action:       domain.ActionTerminate,
		Actor:        admin,
	})
	require.NoError(t, err)

	_, err = h.scheduler.CompleteEvent(ctx, ev.ID, staff, "")
	var authErr *domain.UnauthorizedError
	require.True(t, errors.As(err, &authErr), "expected UnauthorizedError, got %v", err)

	stored, err := h.scheduler.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCompleted)
}

func TestCompleteEvent_AlreadyCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionRenew)

	_, err := h.scheduler.CompleteEvent(ctx, ev.ID, staff, "")
	require.NoError(t, err)

	_, err = h.scheduler.CompleteEvent(ctx, ev.ID, staff, "")
	assert.ErrorIs(t, err, domain.ErrEventCompleted)

	history, err := h.controller.HistoryFor(ctx, si.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCompleteEvent_ConcurrentSelfLoopProducesOneEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionRenew)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = h.scheduler.CompleteEvent(ctx, ev.ID, staff, "")
		}()
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// The loser either sees the completed event or loses the version race.
		var conflict *domain.ConcurrencyConflictError
		assert.True(t, errors.Is(err, domain.ErrEventCompleted) || errors.As(err, &conflict),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	history, err := h.controller.HistoryFor(ctx, si.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCompleteEvent_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.scheduler.CompleteEvent(context.Background(), "nonexistent", admin, "")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCancelEvent_RemovesWithoutHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionSuspend)

	c, err := h.scheduler.CancelEvent(ctx, ev.ID, "client paid", admin)
	require.NoError(t, err)
	assert.Equal(t, "client paid", c.Reason)
	assert.Equal(t, ev.ID, c.EventID)
	assert.Equal(t, "u-admin", c.CancelledBy)

	_, err = h.scheduler.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	pending := true
	events, err := h.scheduler.ListEvents(ctx, domain.EventFilter{InstanceID: si.ID, Pending: &pending})
	require.NoError(t, err)
	assert.Empty(t, events)

	history, err := h.controller.HistoryFor(ctx, si.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	cancellations, err := h.scheduler.ListCancellations(ctx, si.ID)
	require.NoError(t, err)
	require.Len(t, cancellations, 1)
	assert.Equal(t, "client paid", cancellations[0].Reason)
}

func TestCancelEvent_CompletedIsImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionSuspend)

	_, err := h.scheduler.CompleteEvent(ctx, ev.ID, admin, "")
	require.NoError(t, err)

	_, err = h.scheduler.CancelEvent(ctx, ev.ID, "too late", admin)
	assert.ErrorIs(t, err, domain.ErrEventCompleted)

	stored, err := h.scheduler.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted)
}

func TestCancelEvent_RequiresInternalRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	si := h.provision(t, domain.StateActive)
	ev := mustCreateEvent(t, h, si, domain.ActionSuspend)

	for _, actor := range []domain.Actor{client, {ID: "u-obs", Role: domain.RoleObserver}} {
		_, err := h.scheduler.CancelEvent(ctx, ev.ID, "", actor)
		var authErr *domain.UnauthorizedError
		require.True(t, errors.As(err, &authErr), "expected UnauthorizedError for %s, got %v", actor.Role, err)
		assert.Equal(t, actor.Role, authErr.Role)
	}

	stored, err := h.scheduler.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCompleted)

	cancellations, err := h.scheduler.ListCancellations(ctx, si.ID)
	require.NoError(t, err)
	assert.Empty(t, cancellations)

	_, err = h.scheduler.CancelEvent(ctx, ev.ID, "", staff)
	require.NoError(t, err)
}

func TestCancelEvent_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.scheduler.CancelEvent(context.Background(), "nonexistent", "", admin)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestListOverdue(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	table := fsm.New()
	controller := app.NewController(store, store, table)
	scheduler := app.NewScheduler(store, store, table, controller, app.WithClock(func() time.Time { return now }))
	instances := app.NewInstanceService(store)
	ctx := context.Background()

	si, err := instances.Provision(ctx, "client-1", "hosting")
	require.NoError(t, err)

	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)
	overdue, err := scheduler.CreateEvent(ctx, app.CreateEventRequest{
		InstanceID: si.ID, CurrentState: domain.StateRequested, Action: domain.ActionApprove, ScheduledTime: &past, Actor: admin,
	})
	require.NoError(t, err)
	_, err = scheduler.CreateEvent(ctx, app.CreateEventRequest{
		InstanceID: si.ID, CurrentState: domain.StateRequested, Action: domain.ActionTerminate, ScheduledTime: &future, Actor: admin,
	})
	require.NoError(t, err)
	_, err = scheduler.CreateEvent(ctx, app.CreateEventRequest{
		InstanceID: si.ID, CurrentState: domain.StateRequested, Action: domain.ActionApprove, Actor: admin,
	})
	require.NoError(t, err)

	got, err := scheduler.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

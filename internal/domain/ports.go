package domain

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// TransitionTable answers legality and permission questions over the static
// transition configuration. Implementations must be pure.
type TransitionTable interface {
	// NextState returns the destination of action from state, or false when the
	// pair is not in the table.
	NextState(state State, action Action) (State, bool)
	// ValidActions returns the actions legal from state that role may perform.
	// Unknown states or roles yield an empty set.
	ValidActions(state State, role Role) mapset.Set[Action]
}

// InstanceRepository persists service instances. It deliberately has no
// method for changing CurrentState; see HistoryRepository.CommitTransition.
type InstanceRepository interface {
	CreateInstance(ctx context.Context, instance ServiceInstance) error
	GetInstance(ctx context.Context, id string) (ServiceInstance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]ServiceInstance, error)
}

// InstanceFilter holds optional criteria for listing instances.
type InstanceFilter struct {
	State    *State
	ClientID string
	Limit    int
	Offset   int
}

// TransitionCommit is everything written by one executed transition.
type TransitionCommit struct {
	// Expected is the state the caller observed; the commit fails with a
	// ConcurrencyConflictError if the instance is no longer in it.
	Expected State
	// ExpectedVersion, when non-zero, must also match the instance's version.
	// It separates racers on a self-loop, where Expected still holds after
	// the first commit.
	ExpectedVersion int64
	Entry           HistoryEntry
	// CompleteEventID, when set, marks that pending event completed as part
	// of the same commit.
	CompleteEventID string
}

// HistoryRepository is the append-only ledger of executed transitions.
type HistoryRepository interface {
	// CommitTransition appends the entry and moves the instance's current
	// state to Entry.ResultingState atomically.
	CommitTransition(ctx context.Context, commit TransitionCommit) error
	// ListHistory returns an instance's entries, newest first.
	ListHistory(ctx context.Context, instanceID string) ([]HistoryEntry, error)
}

// EventRepository persists scheduled events and their cancellation records.
type EventRepository interface {
	CreateEvent(ctx context.Context, event ScheduledEvent) error
	GetEvent(ctx context.Context, id string) (ScheduledEvent, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]ScheduledEvent, error)
	// CancelEvent deletes a pending event and records the cancellation
	// atomically.
	CancelEvent(ctx context.Context, cancellation Cancellation) error
	ListCancellations(ctx context.Context, instanceID string) ([]Cancellation, error)
}

// EventFilter holds optional criteria for listing scheduled events.
type EventFilter struct {
	InstanceID string
	Pending    *bool
	DueBefore  *time.Time
}

// TaskRepository persists tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	// CompleteTask moves a pending task to completed.
	CompleteTask(ctx context.Context, id, completedBy string, completedAt time.Time) error
}

// TaskFilter holds optional criteria for listing tasks. InstanceID filters by
// joining through the task's event.
type TaskFilter struct {
	InstanceID string
	EventID    string
	Status     *TaskStatus
}

// NotificationKind names a lifecycle notification.
type NotificationKind string

const (
	NotifyTransitionCommitted NotificationKind = "transition.committed"
	NotifyEventScheduled      NotificationKind = "event.scheduled"
	NotifyEventCancelled      NotificationKind = "event.cancelled"
	NotifyTaskCompleted       NotificationKind = "task.completed"
)

// Notification is a secondary effect emitted after a successful operation.
type Notification struct {
	Kind       NotificationKind
	InstanceID string
	EventID    string
	TaskID     string
	Action     Action
	State      State
	ActorID    string
}

// Notifier emits notifications. Failures are never fatal to the operation
// that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

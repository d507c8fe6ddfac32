package domain

import "time"

// ServiceInstance is a client's subscription to one service.
// CurrentState is a cache of the newest history entry and is only changed by
// the lifecycle controller. Version starts at 1 and is bumped by every
// committed transition, including self-loops that leave CurrentState as is.
type ServiceInstance struct {
	ID           string
	ClientID     string
	ServiceName  string
	CurrentState State
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewServiceInstance creates an instance in the initial "requested" state.
func NewServiceInstance(id, clientID, serviceName string) ServiceInstance {
	now := time.Now().UTC()
	return ServiceInstance{
		ID:           id,
		ClientID:     clientID,
		ServiceName:  serviceName,
		CurrentState: StateRequested,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// HistoryEntry is an immutable record of one executed transition.
type HistoryEntry struct {
	ID                string
	ServiceInstanceID string
	PreviousState     State
	ResultingState    State
	Action            Action
	PerformedBy       string
	PerformedByRole   Role
	Comments          string
	// EventID is set when the transition was produced by completing a
	// scheduled event.
	EventID   string
	Timestamp time.Time
}

// Priority ranks scheduled events and tasks for operators.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// OrDefault returns p, or PriorityMedium when p is empty.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityMedium
	}
	return p
}

// ScheduledEvent is a deferred transition. ScheduledTime is advisory: nothing
// fires the event automatically.
type ScheduledEvent struct {
	ID                string
	ServiceInstanceID string
	TargetState       State
	Action            Action
	ScheduledTime     *time.Time
	AssignedTo        string
	Priority          Priority
	IsCompleted       bool
	CompletedTime     *time.Time
	// HistoryEntryID links a completed event to the entry it produced.
	HistoryEntryID string
	CreatedAt      time.Time
}

// Overdue reports whether the event is still pending past its scheduled time.
func (e ScheduledEvent) Overdue(now time.Time) bool {
	return !e.IsCompleted && e.ScheduledTime != nil && e.ScheduledTime.Before(now)
}

// Cancellation records why a pending scheduled event was removed.
type Cancellation struct {
	ID                string
	EventID           string
	ServiceInstanceID string
	Action            Action
	Reason            string
	CancelledBy       string
	CancelledAt       time.Time
}

// TaskStatus is the state of an ancillary work item.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	return s == TaskPending || s == TaskCompleted
}

// Task is a work item attached to a scheduled event. Its completion is
// independent of the event's completion.
type Task struct {
	ID          string
	EventID     string
	Title       string
	Description string
	AssignedTo  string
	DueDate     *time.Time
	Priority    Priority
	Status      TaskStatus
	CompletedBy string
	CompletedAt *time.Time
	CreatedAt   time.Time
}

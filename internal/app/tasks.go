package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// CreateTaskRequest describes a work item attached to a scheduled event.
type CreateTaskRequest struct {
	EventID     string
	Title       string
	Description string
	AssignedTo  string
	DueDate     *time.Time
	Priority    domain.Priority
	Actor       domain.Actor
}

// TaskManager manages tasks. Task completion is independent of the attached
// event: a task may be completed while its event is still pending.
type TaskManager struct {
	tasks  domain.TaskRepository
	events domain.EventRepository
	options
}

// NewTaskManager creates a task manager with the given adapters.
func NewTaskManager(tasks domain.TaskRepository, events domain.EventRepository, opts ...Option) *TaskManager {
	return &TaskManager{
		tasks:   tasks,
		events:  events,
		options: buildOptions(opts),
	}
}

// CreateTask persists a pending task referencing an existing event. Only admin
// and staff may create tasks.
func (m *TaskManager) CreateTask(ctx context.Context, req CreateTaskRequest) (domain.Task, error) {
	if !req.Actor.Role.Internal() {
		return domain.Task{}, &domain.UnauthorizedError{Role: req.Actor.Role, Operation: "create tasks"}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Task{}, &domain.ValidationError{Field: "title", Message: "must not be empty"}
	}

	priority := req.Priority.OrDefault()
	if !priority.Valid() {
		return domain.Task{}, &domain.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown value %q", req.Priority)}
	}

	if _, err := m.events.GetEvent(ctx, req.EventID); err != nil {
		return domain.Task{}, err
	}

	id, err := generateID()
	if err != nil {
		return domain.Task{}, fmt.Errorf("generating task id: %w", err)
	}

	task := domain.Task{
		ID:          id,
		EventID:     req.EventID,
		Title:       title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
		Priority:    priority,
		Status:      domain.TaskPending,
		CreatedAt:   m.now(),
	}

	if err := m.tasks.CreateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("creating task: %w", err)
	}

	return task, nil
}

// CompleteTask marks a pending task completed by actorID. It does not look at
// the state of the attached event.
func (m *TaskManager) CompleteTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	if actorID == "" {
		return domain.Task{}, &domain.ValidationError{Field: "actor", Message: "acting user is required"}
	}

	if err := m.tasks.CompleteTask(ctx, taskID, actorID, m.now()); err != nil {
		return domain.Task{}, err
	}

	task, err := m.tasks.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	m.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.String("event_id", task.EventID),
		zap.String("completed_by", actorID),
	)

	m.notify(ctx, domain.Notification{
		Kind:    domain.NotifyTaskCompleted,
		EventID: task.EventID,
		TaskID:  task.ID,
		ActorID: actorID,
	})

	return task, nil
}

// GetTask returns a task by its unique identifier.
func (m *TaskManager) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return m.tasks.GetTask(ctx, id)
}

// ListTasks returns tasks matching the given filter.
func (m *TaskManager) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	return m.tasks.ListTasks(ctx, filter)
}

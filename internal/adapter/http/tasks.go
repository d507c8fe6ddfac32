package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/svclife/internal/app"
	"github.com/neomorfeo/svclife/internal/domain"
)

// TaskResponse is the API representation of a task.
type TaskResponse struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CompletedBy string `json:"completed_by,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toTaskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		EventID:     t.EventID,
		Title:       t.Title,
		Description: t.Description,
		AssignedTo:  t.AssignedTo,
		DueDate:     formatNullTime(t.DueDate),
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		CompletedBy: t.CompletedBy,
		CompletedAt: formatNullTime(t.CompletedAt),
		CreatedAt:   formatTime(t.CreatedAt),
	}
}

type CreateTaskInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Scheduled event ID"`
	Body struct {
		Title       string     `json:"title" minLength:"1" maxLength:"255"`
		Description string     `json:"description,omitempty" maxLength:"4000"`
		AssignedTo  string     `json:"assigned_to,omitempty"`
		DueDate     *time.Time `json:"due_date,omitempty"`
		Priority    string     `json:"priority,omitempty" default:"medium" enum:"low,medium,high,urgent"`
	}
}

type TaskOutput struct {
	Body TaskResponse
}

type CompleteTaskInput struct {
	ActorHeaders
	ID string `path:"id" doc:"Task ID"`
}

type ListTasksInput struct {
	ID     string `path:"id" doc:"Service instance ID"`
	Status string `query:"status" required:"false" enum:"pending,completed" doc:"Filter by status"`
}

type ListTasksOutput struct {
	Body []TaskResponse
}

func registerTasks(api huma.API, svc Services) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/api/v1/events/{id}/tasks",
		Summary:       "Attach a task to a scheduled event",
		Tags:          []string{"Tasks"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTaskInput) (*TaskOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		task, err := svc.Tasks.CreateTask(ctx, app.CreateTaskRequest{
			EventID:     input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssignedTo:  input.Body.AssignedTo,
			DueDate:     input.Body.DueDate,
			Priority:    domain.Priority(input.Body.Priority),
			Actor:       actor,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TaskOutput{Body: toTaskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/api/v1/tasks/{id}/complete",
		Summary:     "Mark a task completed",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *CompleteTaskInput) (*TaskOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		task, err := svc.Tasks.CompleteTask(ctx, input.ID, actor.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TaskOutput{Body: toTaskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances/{id}/tasks",
		Summary:     "List tasks attached to an instance's events",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		if _, err := svc.Instances.Get(ctx, input.ID); err != nil {
			return nil, toHumaError(err)
		}

		filter := domain.TaskFilter{InstanceID: input.ID}
		if input.Status != "" {
			s := domain.TaskStatus(input.Status)
			filter.Status = &s
		}

		tasks, err := svc.Tasks.ListTasks(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TaskResponse, len(tasks))
		for i, t := range tasks {
			resp[i] = toTaskResponse(t)
		}
		return &ListTasksOutput{Body: resp}, nil
	})
}

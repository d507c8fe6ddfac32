package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/svclife/internal/app"
	"github.com/neomorfeo/svclife/internal/domain"
)

// EventResponse is the API representation of a scheduled event.
type EventResponse struct {
	ID                string `json:"id"`
	ServiceInstanceID string `json:"service_instance_id"`
	TargetState       string `json:"target_state"`
	Action            string `json:"action"`
	ScheduledTime     string `json:"scheduled_time,omitempty" doc:"Advisory due time (RFC 3339)"`
	AssignedTo        string `json:"assigned_to,omitempty"`
	Priority          string `json:"priority"`
	IsCompleted       bool   `json:"is_completed"`
	CompletedTime     string `json:"completed_time,omitempty"`
	HistoryEntryID    string `json:"history_entry_id,omitempty" doc:"History entry produced on completion"`
	CreatedAt         string `json:"created_at"`
}

func toEventResponse(e domain.ScheduledEvent) EventResponse {
	return EventResponse{
		ID:                e.ID,
		ServiceInstanceID: e.ServiceInstanceID,
		TargetState:       string(e.TargetState),
		Action:            string(e.Action),
		ScheduledTime:     formatNullTime(e.ScheduledTime),
		AssignedTo:        e.AssignedTo,
		Priority:          string(e.Priority),
		IsCompleted:       e.IsCompleted,
		CompletedTime:     formatNullTime(e.CompletedTime),
		HistoryEntryID:    e.HistoryEntryID,
		CreatedAt:         formatTime(e.CreatedAt),
	}
}

// CancellationResponse is the API representation of a cancelled event.
type CancellationResponse struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	Action      string `json:"action"`
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by"`
	CancelledAt string `json:"cancelled_at"`
}

func toCancellationResponse(c domain.Cancellation) CancellationResponse {
	return CancellationResponse{
		ID:          c.ID,
		EventID:     c.EventID,
		Action:      string(c.Action),
		Reason:      c.Reason,
		CancelledBy: c.CancelledBy,
		CancelledAt: formatTime(c.CancelledAt),
	}
}

// --- Create ---

type CreateEventInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Service instance ID"`
	Body struct {
		Action        string     `json:"action" doc:"Action to perform on completion" enum:"approve,activate,request_renewal,renew,suspend,reinstate,terminate"`
		ExpectedState string     `json:"expected_state" doc:"State the caller last observed" enum:"requested,onboarding,active,renewal_due,suspended,terminated"`
		ScheduledTime *time.Time `json:"scheduled_time,omitempty" doc:"Advisory due time"`
		AssignedTo    string     `json:"assigned_to,omitempty" doc:"User responsible for completing the event"`
		Priority      string     `json:"priority,omitempty" default:"medium" enum:"low,medium,high,urgent"`
	}
}

type EventOutput struct {
	Body EventResponse
}

// --- List ---

type ListEventsInput struct {
	ID      string `path:"id" doc:"Service instance ID"`
	Pending string `query:"pending" required:"false" enum:"true,false" doc:"Filter by completion"`
}

type ListEventsOutput struct {
	Body []EventResponse
}

type ListOverdueOutput struct {
	Body []EventResponse
}

// --- Complete / Cancel ---

type CompleteEventInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Scheduled event ID"`
	Body struct {
		Comments string `json:"comments,omitempty" maxLength:"2000"`
	} `required:"false"`
}

type CompleteEventOutput struct {
	ETag string `header:"ETag"`
	Body struct {
		Event   EventResponse        `json:"event"`
		State   string               `json:"state" doc:"Resulting instance state"`
		Version int64                `json:"version" doc:"Instance version after the transition"`
		Entry   HistoryEntryResponse `json:"entry"`
	}
}

type CancelEventInput struct {
	ActorHeaders
	ID     string `path:"id" doc:"Scheduled event ID"`
	Reason string `query:"reason" required:"false" maxLength:"2000" doc:"Why the event is cancelled"`
}

type CancelEventOutput struct {
	Body CancellationResponse
}

func registerEvents(api huma.API, svc Services) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-event",
		Method:        http.MethodPost,
		Path:          "/api/v1/instances/{id}/events",
		Summary:       "Schedule a deferred transition",
		Tags:          []string{"Events"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateEventInput) (*EventOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		event, err := svc.Scheduler.CreateEvent(ctx, app.CreateEventRequest{
			InstanceID:    input.ID,
			CurrentState:  domain.State(input.Body.ExpectedState),
			Action:        domain.Action(input.Body.Action),
			ScheduledTime: input.Body.ScheduledTime,
			AssignedTo:    input.Body.AssignedTo,
			Priority:      domain.Priority(input.Body.Priority),
			Actor:         actor,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &EventOutput{Body: toEventResponse(event)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances/{id}/events",
		Summary:     "List an instance's scheduled events",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
		if _, err := svc.Instances.Get(ctx, input.ID); err != nil {
			return nil, toHumaError(err)
		}

		filter := domain.EventFilter{InstanceID: input.ID}
		if input.Pending != "" {
			pending := input.Pending == "true"
			filter.Pending = &pending
		}

		events, err := svc.Scheduler.ListEvents(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListEventsOutput{Body: toEventResponses(events)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overdue-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/overdue",
		Summary:     "List pending events past their scheduled time",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, _ *struct{}) (*ListOverdueOutput, error) {
		events, err := svc.Scheduler.ListOverdue(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListOverdueOutput{Body: toEventResponses(events)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/complete",
		Summary:     "Execute a scheduled event against the live state",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *CompleteEventInput) (*CompleteEventOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		result, err := svc.Scheduler.CompleteEvent(ctx, input.ID, actor, input.Body.Comments)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &CompleteEventOutput{ETag: etag(result.Transition.Version)}
		out.Body.Event = toEventResponse(result.Event)
		out.Body.State = string(result.Transition.State)
		out.Body.Version = result.Transition.Version
		out.Body.Entry = toHistoryEntryResponse(result.Transition.Entry)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-event",
		Method:      http.MethodDelete,
		Path:        "/api/v1/events/{id}",
		Summary:     "Cancel a pending scheduled event",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *CancelEventInput) (*CancelEventOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		c, err := svc.Scheduler.CancelEvent(ctx, input.ID, input.Reason, actor)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CancelEventOutput{Body: toCancellationResponse(c)}, nil
	})
}

func toEventResponses(events []domain.ScheduledEvent) []EventResponse {
	resp := make([]EventResponse, len(events))
	for i, e := range events {
		resp[i] = toEventResponse(e)
	}
	return resp
}

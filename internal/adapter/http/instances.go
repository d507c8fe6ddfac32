package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/svclife/internal/app"
	"github.com/neomorfeo/svclife/internal/domain"
)

// InstanceResponse is the API representation of a service instance.
type InstanceResponse struct {
	ID           string `json:"id" doc:"Unique identifier"`
	ClientID     string `json:"client_id" doc:"Owning client"`
	ServiceName  string `json:"service_name" doc:"Subscribed service"`
	CurrentState string `json:"current_state" doc:"Lifecycle state"`
	Version      int64  `json:"version" doc:"Bumped by every transition; send as If-Match to pin this read"`
	CreatedAt    string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt    string `json:"updated_at" doc:"Last state change (RFC 3339)"`
}

func toInstanceResponse(si domain.ServiceInstance) InstanceResponse {
	return InstanceResponse{
		ID:           si.ID,
		ClientID:     si.ClientID,
		ServiceName:  si.ServiceName,
		CurrentState: string(si.CurrentState),
		Version:      si.Version,
		CreatedAt:    formatTime(si.CreatedAt),
		UpdatedAt:    formatTime(si.UpdatedAt),
	}
}

// HistoryEntryResponse is the API representation of one executed transition.
type HistoryEntryResponse struct {
	ID              string `json:"id"`
	PreviousState   string `json:"previous_state"`
	ResultingState  string `json:"resulting_state"`
	Action          string `json:"action"`
	PerformedBy     string `json:"performed_by"`
	PerformedByRole string `json:"performed_by_role"`
	Comments        string `json:"comments,omitempty"`
	EventID         string `json:"event_id,omitempty" doc:"Scheduled event that produced this entry"`
	Timestamp       string `json:"timestamp"`
}

func toHistoryEntryResponse(e domain.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:              e.ID,
		PreviousState:   string(e.PreviousState),
		ResultingState:  string(e.ResultingState),
		Action:          string(e.Action),
		PerformedBy:     e.PerformedBy,
		PerformedByRole: string(e.PerformedByRole),
		Comments:        e.Comments,
		EventID:         e.EventID,
		Timestamp:       formatTime(e.Timestamp),
	}
}

// --- Provision ---

type ProvisionInput struct {
	ActorHeaders
	Body struct {
		ClientID    string `json:"client_id" minLength:"1" maxLength:"255" doc:"Owning client"`
		ServiceName string `json:"service_name" minLength:"1" maxLength:"255" doc:"Service to subscribe to"`
	}
}

type InstanceOutput struct {
	ETag string `header:"ETag"`
	Body InstanceResponse
}

func toInstanceOutput(si domain.ServiceInstance) *InstanceOutput {
	return &InstanceOutput{ETag: etag(si.Version), Body: toInstanceResponse(si)}
}

// --- Get / List ---

type GetInstanceInput struct {
	ID string `path:"id" doc:"Service instance ID"`
}

type ListInstancesInput struct {
	State    string `query:"state" required:"false" doc:"Filter by lifecycle state" enum:"requested,onboarding,active,renewal_due,suspended,terminated"`
	ClientID string `query:"client_id" required:"false" doc:"Filter by client"`
	Limit    int    `query:"limit" required:"false" default:"50" minimum:"1" maximum:"500" doc:"Max results"`
	Offset   int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListInstancesOutput struct {
	Body []InstanceResponse
}

// --- Actions ---

type ValidActionsInput struct {
	ActorHeaders
	ID string `path:"id" doc:"Service instance ID"`
}

type ValidActionsOutput struct {
	Body struct {
		State   string   `json:"state" doc:"Live state the actions were computed from"`
		Actions []string `json:"actions" doc:"Actions the caller's role may perform"`
	}
}

// --- Transition ---

type TransitionInput struct {
	ActorHeaders
	ID      string `path:"id" doc:"Service instance ID"`
	IfMatch string `header:"If-Match" required:"false" doc:"Instance version (ETag) the caller last observed"`
	Body    struct {
		Action        string `json:"action" doc:"Lifecycle action" enum:"approve,activate,request_renewal,renew,suspend,reinstate,terminate"`
		ExpectedState string `json:"expected_state" doc:"State the caller last observed" enum:"requested,onboarding,active,renewal_due,suspended,terminated"`
		Comments      string `json:"comments,omitempty" maxLength:"2000" doc:"Free-form note stored in the history entry"`
	}
}

type TransitionOutput struct {
	ETag string `header:"ETag"`
	Body struct {
		State   string               `json:"state" doc:"Resulting state"`
		Version int64                `json:"version" doc:"Instance version after the transition"`
		Entry   HistoryEntryResponse `json:"entry"`
	}
}

// --- History / Cancellations ---

type HistoryOutput struct {
	Body []HistoryEntryResponse
}

type CancellationsOutput struct {
	Body []CancellationResponse
}

func registerInstances(api huma.API, svc Services) {
	huma.Register(api, huma.Operation{
		OperationID:   "provision-instance",
		Method:        http.MethodPost,
		Path:          "/api/v1/instances",
		Summary:       "Provision a service instance",
		Tags:          []string{"Instances"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ProvisionInput) (*InstanceOutput, error) {
		if _, err := input.actor(); err != nil {
			return nil, err
		}
		si, err := svc.Instances.Provision(ctx, input.Body.ClientID, input.Body.ServiceName)
		if err != nil {
			return nil, toHumaError(err)
		}
		return toInstanceOutput(si), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-instance",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances/{id}",
		Summary:     "Get a service instance by ID",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *GetInstanceInput) (*InstanceOutput, error) {
		si, err := svc.Instances.Get(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return toInstanceOutput(si), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-instances",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances",
		Summary:     "List service instances",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *ListInstancesInput) (*ListInstancesOutput, error) {
		filter := domain.InstanceFilter{
			ClientID: input.ClientID,
			Limit:    input.Limit,
			Offset:   input.Offset,
		}
		if input.State != "" {
			s := domain.State(input.State)
			filter.State = &s
		}

		instances, err := svc.Instances.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]InstanceResponse, len(instances))
		for i, si := range instances {
			resp[i] = toInstanceResponse(si)
		}
		return &ListInstancesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-valid-actions",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances/{id}/actions",
		Summary:     "List actions the caller may perform now",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *ValidActionsInput) (*ValidActionsOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		state, actions, err := svc.Controller.ValidActions(ctx, input.ID, actor.Role)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ValidActionsOutput{}
		out.Body.State = string(state)
		out.Body.Actions = make([]string, len(actions))
		for i, a := range actions {
			out.Body.Actions[i] = string(a)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "perform-transition",
		Method:      http.MethodPost,
		Path:        "/api/v1/instances/{id}/transitions",
		Summary:     "Perform an immediate lifecycle transition",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		actor, err := input.actor()
		if err != nil {
			return nil, err
		}

		version, err := parseIfMatch(input.IfMatch)
		if err != nil {
			return nil, err
		}

		result, err := svc.Controller.PerformTransition(ctx, app.TransitionRequest{
			InstanceID:      input.ID,
			ExpectedState:   domain.State(input.Body.ExpectedState),
			ExpectedVersion: version,
			Action:          domain.Action(input.Body.Action),
			Actor:           actor,
			Comments:        input.Body.Comments,
		})
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &TransitionOutput{ETag: etag(result.Version)}
		out.Body.State = string(result.State)
		out.Body.Version = result.Version
		out.Body.Entry = toHistoryEntryResponse(result.Entry)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances/{id}/history",
		Summary:     "List an instance's transition history, newest first",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *GetInstanceInput) (*HistoryOutput, error) {
		entries, err := svc.Controller.HistoryFor(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]HistoryEntryResponse, len(entries))
		for i, e := range entries {
			resp[i] = toHistoryEntryResponse(e)
		}
		return &HistoryOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cancellations",
		Method:      http.MethodGet,
		Path:        "/api/v1/instances/{id}/cancellations",
		Summary:     "List cancelled scheduled events of an instance",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *GetInstanceInput) (*CancellationsOutput, error) {
		if _, err := svc.Instances.Get(ctx, input.ID); err != nil {
			return nil, toHumaError(err)
		}

		cancellations, err := svc.Scheduler.ListCancellations(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]CancellationResponse, len(cancellations))
		for i, c := range cancellations {
			resp[i] = toCancellationResponse(c)
		}
		return &CancellationsOutput{Body: resp}, nil
	})
}

package domain

import mapset "github.com/deckarep/golang-set/v2"

// State represents the operational stage of a service instance.
type State string

const (
	StateRequested  State = "requested"
	StateOnboarding State = "onboarding"
	StateActive     State = "active"
	StateRenewalDue State = "renewal_due"
	StateSuspended  State = "suspended"
	StateTerminated State = "terminated"
)

// States returns every lifecycle state in declaration order.
func States() []State {
	return []State{
		StateRequested,
		StateOnboarding,
		StateActive,
		StateRenewalDue,
		StateSuspended,
		StateTerminated,
	}
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateRequested, StateOnboarding, StateActive, StateRenewalDue, StateSuspended, StateTerminated:
		return true
	}
	return false
}

// Final reports whether no action can move an instance out of s.
func (s State) Final() bool {
	return s == StateTerminated
}

// Action is an operation that may move a service instance between states.
type Action string

const (
	ActionApprove        Action = "approve"
	ActionActivate       Action = "activate"
	ActionRequestRenewal Action = "request_renewal"
	ActionRenew          Action = "renew"
	ActionSuspend        Action = "suspend"
	ActionReinstate      Action = "reinstate"
	ActionTerminate      Action = "terminate"
)

// Actions returns every lifecycle action in declaration order.
func Actions() []Action {
	return []Action{
		ActionApprove,
		ActionActivate,
		ActionRequestRenewal,
		ActionRenew,
		ActionSuspend,
		ActionReinstate,
		ActionTerminate,
	}
}

// Valid reports whether a is a known lifecycle action.
func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionActivate, ActionRequestRenewal, ActionRenew,
		ActionSuspend, ActionReinstate, ActionTerminate:
		return true
	}
	return false
}

// Role is the dashboard role of the acting user, as resolved upstream.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleClient   Role = "client"
	RoleObserver Role = "observer"
)

// Roles returns every role in declaration order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleStaff, RoleClient, RoleObserver}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleClient, RoleObserver:
		return true
	}
	return false
}

// Internal reports whether r belongs to the agency's own team. Only internal
// roles cancel scheduled events or attach tasks to them.
func (r Role) Internal() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Transition defines a legal state change: Action moves an instance from From
// to To, and only Roles may perform it.
type Transition struct {
	From   State
	Action Action
	To     State
	Roles  mapset.Set[Role]
}

func roles(r ...Role) mapset.Set[Role] {
	return mapset.NewThreadUnsafeSet(r...)
}

// Transitions is the static transition table. Pairs of (From, Action) that do
// not appear here are illegal.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{From: StateRequested, Action: ActionApprove, To: StateOnboarding, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateRequested, Action: ActionTerminate, To: StateTerminated, Roles: roles(RoleAdmin, RoleClient)},

	{From: StateOnboarding, Action: ActionApprove, To: StateActive, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateOnboarding, Action: ActionActivate, To: StateActive, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateOnboarding, Action: ActionTerminate, To: StateTerminated, Roles: roles(RoleAdmin)},

	{From: StateActive, Action: ActionRequestRenewal, To: StateRenewalDue, Roles: roles(RoleAdmin, RoleStaff, RoleClient)},
	{From: StateActive, Action: ActionRenew, To: StateActive, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateActive, Action: ActionSuspend, To: StateSuspended, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateActive, Action: ActionTerminate, To: StateTerminated, Roles: roles(RoleAdmin)},

	{From: StateRenewalDue, Action: ActionRenew, To: StateActive, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateRenewalDue, Action: ActionSuspend, To: StateSuspended, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateRenewalDue, Action: ActionTerminate, To: StateTerminated, Roles: roles(RoleAdmin)},

	{From: StateSuspended, Action: ActionReinstate, To: StateActive, Roles: roles(RoleAdmin, RoleStaff)},
	{From: StateSuspended, Action: ActionTerminate, To: StateTerminated, Roles: roles(RoleAdmin)},
}

// SortActions returns the members of set in declaration order.
func SortActions(set mapset.Set[Action]) []Action {
	out := make([]Action, 0, set.Cardinality())
	for _, a := range Actions() {
		if set.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}

package fsm

import (
	"context"
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/svclife/internal/domain"
)

// Compile-time check: Table implements domain.TransitionTable.
var _ domain.TransitionTable = (*Table)(nil)

type ruleKey struct {
	state  domain.State
	action domain.Action
}

// buildEvents converts transitions into looplab/fsm EventDesc format.
// It consolidates transitions with the same action+destination into a single
// EventDesc with multiple source states (e.g., terminate from every
// non-final state goes to "terminated").
func buildEvents(transitions []domain.Transition) []loopfsm.EventDesc {
	type key struct {
		action string
		dst    string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range transitions {
		k := key{action: string(t.Action), dst: string(t.To)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.From))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.action,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Table implements domain.TransitionTable using looplab/fsm for legality and
// a per-(state, action) role allow-list for permission.
// looplab/fsm is stateful, so every lookup runs on a short-lived machine
// initialized with the queried state.
type Table struct {
	events []loopfsm.EventDesc
	roles  map[ruleKey]mapset.Set[domain.Role]
}

// New creates a table over domain.Transitions.
func New() *Table {
	return NewFromTransitions(domain.Transitions)
}

// NewFromTransitions creates a table over an explicit transition list.
func NewFromTransitions(transitions []domain.Transition) *Table {
	roles := make(map[ruleKey]mapset.Set[domain.Role], len(transitions))
	for _, t := range transitions {
		allowed := mapset.NewSet[domain.Role]()
		if t.Roles != nil {
			allowed.Append(t.Roles.ToSlice()...)
		}
		roles[ruleKey{state: t.From, action: t.Action}] = allowed
	}
	return &Table{
		events: buildEvents(transitions),
		roles:  roles,
	}
}

// NextState returns the destination of action from state.
func (t *Table) NextState(state domain.State, action domain.Action) (domain.State, bool) {
	machine := loopfsm.NewFSM(string(state), t.events, nil)

	if err := machine.Event(context.Background(), string(action)); err != nil {
		// looplab/fsm reports a legal self-loop (e.g. renew while active)
		// as NoTransitionError.
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return state, true
		}
		return "", false
	}

	return domain.State(machine.Current()), true
}

// ValidActions returns the actions legal from state that role may perform.
func (t *Table) ValidActions(state domain.State, role domain.Role) mapset.Set[domain.Action] {
	out := mapset.NewSet[domain.Action]()
	if !state.Valid() || !role.Valid() {
		return out
	}

	machine := loopfsm.NewFSM(string(state), t.events, nil)
	for _, name := range machine.AvailableTransitions() {
		action := domain.Action(name)
		if allowed, ok := t.roles[ruleKey{state: state, action: action}]; ok && allowed.Contains(role) {
			out.Add(action)
		}
	}
	return out
}

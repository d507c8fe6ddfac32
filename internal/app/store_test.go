package app_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/neomorfeo/svclife/internal/domain"
)

// --- Mocks ---

// memStore implements every repository port in memory. The mutex makes
// CommitTransition atomic, matching the sqlite adapter's transaction.
type memStore struct {
	mu            sync.Mutex
	instances     map[string]domain.ServiceInstance
	history       []domain.HistoryEntry
	events        map[string]domain.ScheduledEvent
	cancellations []domain.Cancellation
	tasks         map[string]domain.Task
}

func newMemStore() *memStore {
	return &memStore{
		instances: make(map[string]domain.ServiceInstance),
		events:    make(map[string]domain.ScheduledEvent),
		tasks:     make(map[string]domain.Task),
	}
}

func (m *memStore) CreateInstance(_ context.Context, si domain.ServiceInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[si.ID] = si
	return nil
}

func (m *memStore) GetInstance(_ context.Context, id string) (domain.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	si, ok := m.instances[id]
	if !ok {
		return domain.ServiceInstance{}, domain.ErrInstanceNotFound
	}
	return si, nil
}

func (m *memStore) ListInstances(_ context.Context, filter domain.InstanceFilter) ([]domain.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ServiceInstance, 0, len(m.instances))
	for _, si := range m.instances {
		if filter.State != nil && si.CurrentState != *filter.State {
			continue
		}
		if filter.ClientID != "" && si.ClientID != filter.ClientID {
			continue
		}
		out = append(out, si)
	}
	return out, nil
}

func (m *memStore) CommitTransition(_ context.Context, c domain.TransitionCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	si, ok := m.instances[c.Entry.ServiceInstanceID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	if si.CurrentState != c.Expected || (c.ExpectedVersion != 0 && si.Version != c.ExpectedVersion) {
		return &domain.ConcurrencyConflictError{
			InstanceID:      si.ID,
			Expected:        c.Expected,
			Actual:          si.CurrentState,
			ExpectedVersion: c.ExpectedVersion,
			ActualVersion:   si.Version,
		}
	}

	if c.CompleteEventID != "" {
		ev, ok := m.events[c.CompleteEventID]
		if !ok {
			return domain.ErrEventNotFound
		}
		if ev.IsCompleted {
			return domain.ErrEventCompleted
		}
		ts := c.Entry.Timestamp
		ev.IsCompleted = true
		ev.CompletedTime = &ts
		ev.HistoryEntryID = c.Entry.ID
		m.events[ev.ID] = ev
	}

	si.CurrentState = c.Entry.ResultingState
	si.Version++
	si.UpdatedAt = c.Entry.Timestamp
	m.instances[si.ID] = si
	m.history = append(m.history, c.Entry)
	return nil
}

func (m *memStore) ListHistory(_ context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.HistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ServiceInstanceID == instanceID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m *memStore) CreateEvent(_ context.Context, ev domain.ScheduledEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
	return nil
}

func (m *memStore) GetEvent(_ context.Context, id string) (domain.ScheduledEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return domain.ScheduledEvent{}, domain.ErrEventNotFound
	}
	return ev, nil
}

func (m *memStore) ListEvents(_ context.Context, filter domain.EventFilter) ([]domain.ScheduledEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledEvent
	for _, ev := range m.events {
		if filter.InstanceID != "" && ev.ServiceInstanceID != filter.InstanceID {
			continue
		}
		if filter.Pending != nil && ev.IsCompleted == *filter.Pending {
			continue
		}
		if filter.DueBefore != nil && (ev.ScheduledTime == nil || !ev.ScheduledTime.Before(*filter.DueBefore)) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CancelEvent(_ context.Context, c domain.Cancellation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[c.EventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if ev.IsCompleted {
		return domain.ErrEventCompleted
	}
	delete(m.events, c.EventID)
	for id, task := range m.tasks {
		if task.EventID == c.EventID {
			delete(m.tasks, id)
		}
	}
	m.cancellations = append(m.cancellations, c)
	return nil
}

func (m *memStore) ListCancellations(_ context.Context, instanceID string) ([]domain.Cancellation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Cancellation
	for _, c := range m.cancellations {
		if c.ServiceInstanceID == instanceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return task, nil
}

func (m *memStore) ListTasks(_ context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, task := range m.tasks {
		if filter.EventID != "" && task.EventID != filter.EventID {
			continue
		}
		if filter.InstanceID != "" && m.events[task.EventID].ServiceInstanceID != filter.InstanceID {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (m *memStore) CompleteTask(_ context.Context, id, completedBy string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if task.Status == domain.TaskCompleted {
		return domain.ErrTaskCompleted
	}
	task.Status = domain.TaskCompleted
	task.CompletedBy = completedBy
	task.CompletedAt = &completedAt
	m.tasks[id] = task
	return nil
}

// setState forces an instance into a state, bypassing the ledger. Only used
// to arrange test preconditions.
func (m *memStore) setState(id string, state domain.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	si := m.instances[id]
	si.CurrentState = state
	m.instances[id] = si
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *mockNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *mockNotifier) kinds() []domain.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.NotificationKind, len(n.sent))
	for i, msg := range n.sent {
		out[i] = msg.Kind
	}
	return out
}

var errNotifierDown = errors.New("notifier down")

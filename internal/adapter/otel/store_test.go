package otel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/svclife/internal/adapter/otel"
	"github.com/neomorfeo/svclife/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

// --- Fakes ---

type fakeInstances struct {
	instances map[string]domain.ServiceInstance
}

func (f *fakeInstances) CreateInstance(_ context.Context, si domain.ServiceInstance) error {
	f.instances[si.ID] = si
	return nil
}

func (f *fakeInstances) GetInstance(_ context.Context, id string) (domain.ServiceInstance, error) {
	si, ok := f.instances[id]
	if !ok {
		return domain.ServiceInstance{}, domain.ErrInstanceNotFound
	}
	return si, nil
}

func (f *fakeInstances) ListInstances(_ context.Context, _ domain.InstanceFilter) ([]domain.ServiceInstance, error) {
	out := make([]domain.ServiceInstance, 0, len(f.instances))
	for _, si := range f.instances {
		out = append(out, si)
	}
	return out, nil
}

type fakeHistory struct {
	commitErr error
	entries   []domain.HistoryEntry
}

func (f *fakeHistory) CommitTransition(_ context.Context, c domain.TransitionCommit) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.entries = append(f.entries, c.Entry)
	return nil
}

func (f *fakeHistory) ListHistory(_ context.Context, _ string) ([]domain.HistoryEntry, error) {
	return f.entries, nil
}

type fakeEvents struct {
	domain.EventRepository
	cancelErr error
}

func (f *fakeEvents) CancelEvent(_ context.Context, _ domain.Cancellation) error {
	return f.cancelErr
}

func (f *fakeEvents) ListEvents(_ context.Context, _ domain.EventFilter) ([]domain.ScheduledEvent, error) {
	return []domain.ScheduledEvent{{ID: "ev-1"}}, nil
}

type fakeTasks struct {
	domain.TaskRepository
}

func (fakeTasks) CompleteTask(_ context.Context, _, _ string, _ time.Time) error {
	return domain.ErrTaskCompleted
}

// --- Tests ---

func TestTracingInstances_CreateInstance_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingInstances(&fakeInstances{instances: map[string]domain.ServiceInstance{}})

	si := domain.NewServiceInstance("si-1", "client-1", "hosting")
	require.NoError(t, repo.CreateInstance(context.Background(), si))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "InstanceRepository.CreateInstance", spans[0].Name)
	assertAttribute(t, spans[0], "instance.id", "si-1")
	assertAttribute(t, spans[0], "instance.client_id", "client-1")
}

func TestTracingInstances_GetInstance_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingInstances(&fakeInstances{instances: map[string]domain.ServiceInstance{}})

	_, err := repo.GetInstance(context.Background(), "nonexistent")
	require.ErrorIs(t, err, domain.ErrInstanceNotFound)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events, "expected error event on span")
}

func TestTracingInstances_ListInstances_RecordsResultCount(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := &fakeInstances{instances: map[string]domain.ServiceInstance{
		"si-1": domain.NewServiceInstance("si-1", "c", "a"),
		"si-2": domain.NewServiceInstance("si-2", "c", "b"),
	}}
	repo := adapter.NewTracingInstances(inner)

	active := domain.StateActive
	out, err := repo.ListInstances(context.Background(), domain.InstanceFilter{State: &active})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assertAttribute(t, spans[0], "result.count", "2")
	assertAttribute(t, spans[0], "filter.state", "active")
}

func TestTracingHistory_CommitTransition_SpanAndCounter(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)

	inner := &fakeHistory{}
	repo, err := adapter.NewTracingHistory(inner)
	require.NoError(t, err)

	commit := domain.TransitionCommit{
		Expected: domain.StateActive,
		Entry: domain.HistoryEntry{
			ID:                "h-1",
			ServiceInstanceID: "si-1",
			PreviousState:     domain.StateActive,
			ResultingState:    domain.StateSuspended,
			Action:            domain.ActionSuspend,
			PerformedByRole:   domain.RoleStaff,
		},
		CompleteEventID: "ev-1",
	}
	require.NoError(t, repo.CommitTransition(context.Background(), commit))

	inner.commitErr = &domain.ConcurrencyConflictError{InstanceID: "si-1", Expected: domain.StateActive, Actual: domain.StateSuspended}
	err = repo.CommitTransition(context.Background(), commit)
	var conflict *domain.ConcurrencyConflictError
	require.True(t, errors.As(err, &conflict))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "HistoryRepository.CommitTransition", spans[0].Name)
	assertAttribute(t, spans[0], "transition.action", "suspend")
	assertAttribute(t, spans[0], "transition.to", "suspended")
	assertAttribute(t, spans[0], "event.id", "ev-1")
	assert.Equal(t, codes.Error, spans[1].Status.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "svclife.transitions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "unexpected aggregation %T", m.Data)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				outcomes[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"committed": 1, "conflict": 1}, outcomes)
}

func TestTracingEvents_CancelEvent_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingEvents(&fakeEvents{cancelErr: domain.ErrEventCompleted})

	err := repo.CancelEvent(context.Background(), domain.Cancellation{EventID: "ev-1", ServiceInstanceID: "si-1"})
	require.ErrorIs(t, err, domain.ErrEventCompleted)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "EventRepository.CancelEvent", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assertAttribute(t, spans[0], "event.id", "ev-1")
}

func TestTracingEvents_ListEvents_RecordsFilter(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingEvents(&fakeEvents{})

	pending := true
	out, err := repo.ListEvents(context.Background(), domain.EventFilter{InstanceID: "si-1", Pending: &pending})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assertAttribute(t, spans[0], "filter.pending", "true")
	assertAttribute(t, spans[0], "result.count", "1")
}

func TestTracingTasks_CompleteTask_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingTasks(fakeTasks{})

	err := repo.CompleteTask(context.Background(), "task-1", "u-staff", time.Now())
	require.ErrorIs(t, err, domain.ErrTaskCompleted)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "TaskRepository.CompleteTask", spans[0].Name)
	assertAttribute(t, spans[0], "task.completed_by", "u-staff")
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			assert.Equal(t, want, attr.Value.Emit(), "attribute %q", key)
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}

package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proppulse-risk/internal/grading"
	"proppulse-risk/internal/storage"
)

type memEventStore struct {
	mu     sync.Mutex
	events map[int64]*storage.AlertEvent
	runs   map[uuid.UUID]storage.SimulationRun
}

func newMemEventStore() *memEventStore {
	return &memEventStore{
		events: make(map[int64]*storage.AlertEvent),
		runs:   make(map[uuid.UUID]storage.SimulationRun),
	}
}

func (m *memEventStore) add(event storage.AlertEvent, run storage.SimulationRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = &event
	m.runs[run.RunID] = run
}

func (m *memEventStore) GetRun(ctx context.Context, runID uuid.UUID) (storage.SimulationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return storage.SimulationRun{}, errors.New("run not found")
	}
	return run, nil
}

func (m *memEventStore) ListUndispatchedAlerts(ctx context.Context) ([]storage.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []storage.AlertEvent
	for _, event := range m.events {
		if !event.Dispatched {
			pending = append(pending, *event)
		}
	}
	return pending, nil
}

func (m *memEventStore) MarkAlertDispatched(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return errors.New("event not found")
	}
	event.Dispatched = true
	return nil
}

type scriptedSink struct {
	name     string
	failures int
	calls    int
}

func (s *scriptedSink) Name() string { return s.name }

func (s *scriptedSink) Deliver(ctx context.Context, note Notification) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("gateway unavailable")
	}
	return nil
}

func dispatchFixture() (storage.AlertEvent, storage.SimulationRun) {
	runID := uuid.New()
	event := storage.AlertEvent{
		ID:            1,
		PropertyID:    "PROP-001",
		RunID:         runID,
		PreviousGrade: grading.GradeGreen,
		NewGrade:      grading.GradeRed,
		CreatedAt:     time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
	run := storage.SimulationRun{
		RunID:           runID,
		PropertyID:      "PROP-001",
		MeanIRR:         0.02,
		ProbNegativeIRR: 0.4,
	}
	return event, run
}

func testDispatchOptions() DispatchOptions {
	return DispatchOptions{MaxRetries: 1, RetryBackoff: time.Millisecond}
}

func TestDispatchMarksEventAfterAllSinks(t *testing.T) {
	store := newMemEventStore()
	event, run := dispatchFixture()
	store.add(event, run)

	a := &scriptedSink{name: "crm_task"}
	b := &scriptedSink{name: "investor_notify"}
	d := NewDispatcher([]Sink{a, b}, store, store, testDispatchOptions(), zerolog.Nop())

	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("sink calls = %d/%d, want 1/1", a.calls, b.calls)
	}

	pending, _ := store.ListUndispatchedAlerts(context.Background())
	if len(pending) != 0 {
		t.Fatalf("%d events still undispatched, want 0", len(pending))
	}
}

func TestDispatchRetriesTransientSinkFailure(t *testing.T) {
	store := newMemEventStore()
	event, run := dispatchFixture()
	store.add(event, run)

	flaky := &scriptedSink{name: "crm_task", failures: 1}
	d := NewDispatcher([]Sink{flaky}, store, store, testDispatchOptions(), zerolog.Nop())

	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("Dispatch should recover after one retry: %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("sink called %d times, want 2", flaky.calls)
	}
}

func TestDispatchFailureLeavesEventForRedispatch(t *testing.T) {
	store := newMemEventStore()
	event, run := dispatchFixture()
	store.add(event, run)

	broken := &scriptedSink{name: "crm_task", failures: 100}
	healthy := &scriptedSink{name: "investor_notify"}
	d := NewDispatcher([]Sink{broken, healthy}, store, store, testDispatchOptions(), zerolog.Nop())

	if err := d.Dispatch(context.Background(), event); err == nil {
		t.Fatal("Dispatch should fail while a sink is down")
	}

	pending, _ := store.ListUndispatchedAlerts(context.Background())
	if len(pending) != 1 {
		t.Fatalf("%d events undispatched, want 1", len(pending))
	}

	// sink heals; a redispatch pass delivers the backlog
	broken.failures = 0
	delivered, err := d.Redispatch(context.Background())
	if err != nil {
		t.Fatalf("Redispatch: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("redispatched %d events, want 1", delivered)
	}

	pending, _ = store.ListUndispatchedAlerts(context.Background())
	if len(pending) != 0 {
		t.Fatalf("%d events still undispatched after redispatch", len(pending))
	}
}

func TestRedispatchNoBacklogIsNoop(t *testing.T) {
	store := newMemEventStore()
	d := NewDispatcher(nil, store, store, testDispatchOptions(), zerolog.Nop())
	delivered, err := d.Redispatch(context.Background())
	if err != nil {
		t.Fatalf("Redispatch: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}

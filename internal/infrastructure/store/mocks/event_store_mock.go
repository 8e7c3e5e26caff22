package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing.
// It enforces expected versions the same way the real stores do.
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	snapshots map[string]*store.Snapshot

	// For tracking calls in tests
	AppendCalls    []AppendCall
	SnapshotsSaved []store.Snapshot

	AppendErr error
	GetErr    error

	// BeforeAppend runs once before the version check, outside the lock,
	// so a test can slip in a competing write.
	BeforeAppend func(recs []store.Record)
}

// AppendCall records one Append or AppendAll invocation
type AppendCall struct {
	Records []store.Record
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		snapshots:   make(map[string]*store.Snapshot),
		AppendCalls: make([]AppendCall, 0),
	}
}

func (m *MockEventStore) Append(ctx context.Context, rec store.Record) (*store.Event, error) {
	events, err := m.AppendAll(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &events[0], nil
}

func (m *MockEventStore) AppendAll(_ context.Context, recs ...store.Record) ([]store.Event, error) {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, AppendCall{Records: recs})
	hook := m.BeforeAppend
	m.BeforeAppend = nil
	m.mu.Unlock()

	if hook != nil {
		hook(recs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	next := make(map[string]int)
	for _, rec := range recs {
		current, ok := next[rec.AggregateID]
		if !ok {
			current = len(m.events[rec.AggregateID])
		}
		if rec.ExpectedVersion != store.AnyVersion && rec.ExpectedVersion != current {
			return nil, fmt.Errorf("%w: %s at version %d, expected %d",
				store.ErrVersionConflict, rec.AggregateID, current, rec.ExpectedVersion)
		}
		next[rec.AggregateID] = current + 1
	}

	created := make([]store.Event, 0, len(recs))
	for _, rec := range recs {
		event, err := m.newEvent(rec.AggregateID, rec.AggregateType, rec.EventType, rec.Data)
		if err != nil {
			return nil, err
		}
		m.events[rec.AggregateID] = append(m.events[rec.AggregateID], event)
		created = append(created, event)
	}
	return created, nil
}

func (m *MockEventStore) GetEvents(_ context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return append([]store.Event(nil), m.events[aggregateID]...), nil
}

func (m *MockEventStore) GetEventsFromVersion(_ context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var events []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

func (m *MockEventStore) GetAllEvents(_ context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var all []store.Event
	for _, events := range m.events {
		all = append(all, events...)
	}
	return all, nil
}

func (m *MockEventStore) SaveSnapshot(_ context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *snapshot
	m.snapshots[s.AggregateID] = &s
	m.SnapshotsSaved = append(m.SnapshotsSaved, s)
	return nil
}

func (m *MockEventStore) GetSnapshot(_ context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.snapshots[aggregateID], nil
}

// Events returns the stored events for an aggregate without going through
// the error hooks.
func (m *MockEventStore) Events(aggregateID string) []store.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.events[aggregateID]...)
}

// AddEvent appends a single event for test setup, bypassing version checks
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := m.newEvent(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return err
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	return nil
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.snapshots = make(map[string]*store.Snapshot)
	m.AppendCalls = make([]AppendCall, 0)
	m.SnapshotsSaved = nil
	m.AppendErr = nil
	m.GetErr = nil
	m.BeforeAppend = nil
}

func (m *MockEventStore) newEvent(aggregateID, aggregateType, eventType string, data any) (store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}
	return store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       len(m.events[aggregateID]) + 1,
	}, nil
}

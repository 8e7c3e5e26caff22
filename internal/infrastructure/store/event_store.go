package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/localmart/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// EventStore keeps events in memory and publishes them after commit.
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	order     []Event
	snapshots map[string]*Snapshot
	publisher Publisher
	logger    *zap.Logger
}

func NewEventStore(publisher Publisher, logger *zap.Logger) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		publisher: publisher,
		logger:    logger.Named("event_store"),
	}
}

// Append stores a single event and publishes it
func (es *EventStore) Append(ctx context.Context, rec Record) (*Event, error) {
	events, err := es.AppendAll(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &events[0], nil
}

// AppendAll checks every expected version under one lock, then stores all
// records together.
func (es *EventStore) AppendAll(ctx context.Context, recs ...Record) ([]Event, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	payloads := make([]json.RawMessage, len(recs))
	for i, rec := range recs {
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", rec.EventType, err)
		}
		payloads[i] = data
	}

	es.mu.Lock()
	next := make(map[string]int, len(recs))
	for _, rec := range recs {
		current, ok := next[rec.AggregateID]
		if !ok {
			current = len(es.events[rec.AggregateID])
		}
		if rec.ExpectedVersion != AnyVersion && rec.ExpectedVersion != current {
			es.mu.Unlock()
			return nil, fmt.Errorf("%w: %s at version %d, expected %d",
				ErrVersionConflict, rec.AggregateID, current, rec.ExpectedVersion)
		}
		next[rec.AggregateID] = current + 1
	}

	now := time.Now()
	created := make([]Event, len(recs))
	for i, rec := range recs {
		event := Event{
			ID:            uuid.New().String(),
			AggregateID:   rec.AggregateID,
			AggregateType: rec.AggregateType,
			EventType:     rec.EventType,
			Data:          payloads[i],
			Timestamp:     now,
			Version:       len(es.events[rec.AggregateID]) + 1,
		}
		es.events[rec.AggregateID] = append(es.events[rec.AggregateID], event)
		es.order = append(es.order, event)
		created[i] = event
	}
	es.mu.Unlock()

	publishCommitted(ctx, es.publisher, es.logger, created)
	return created, nil
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(_ context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...), nil
}

// GetEventsFromVersion returns events newer than fromVersion
func (es *EventStore) GetEventsFromVersion(_ context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.events[aggregateID] {
		if e.Version > fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetAllEvents returns all events in commit order
func (es *EventStore) GetAllEvents(_ context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.order...), nil
}

func (es *EventStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	s := *snapshot
	es.snapshots[snapshot.AggregateID] = &s
	return nil
}

func (es *EventStore) GetSnapshot(_ context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	s, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// publishCommitted forwards events that are already durable. A publish
// failure does not undo the commit; consumers catch up through replay.
func publishCommitted(ctx context.Context, publisher Publisher, logger *zap.Logger, events []Event) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		if err := publisher.Publish(ctx, event.AggregateID, event); err != nil {
			metrics.EventPublishFailuresTotal.Inc()
			logger.Warn("failed to publish event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err),
			)
		}
	}
}

package store

import (
	"context"
	"errors"
)

// AnyVersion disables the optimistic concurrency check for a record.
const AnyVersion = -1

// ErrVersionConflict is returned when an aggregate's stored version does not
// match the version a writer loaded before appending.
var ErrVersionConflict = errors.New("event version conflict")

// Record is an event waiting to be appended. ExpectedVersion is the
// aggregate version the writer based its decision on; 0 means the aggregate
// must not exist yet.
type Record struct {
	AggregateID     string
	AggregateType   string
	EventType       string
	ExpectedVersion int
	Data            any
}

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, rec Record) (*Event, error)
	// AppendAll stores every record or none of them.
	AppendAll(ctx context.Context, recs ...Record) ([]Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// Publisher forwards committed events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

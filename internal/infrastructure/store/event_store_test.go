package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

func newTestStore(pub Publisher) *EventStore {
	return NewEventStore(pub, zap.NewNop())
}

// ============================================
// Append Tests
// ============================================

func TestEventStore_Append_AssignsSequentialVersions(t *testing.T) {
	es := newTestStore(nil)
	ctx := context.Background()

	e1, err := es.Append(ctx, Record{AggregateID: "LOC-1", AggregateType: "Order", EventType: "OrderPlaced", ExpectedVersion: 0, Data: map[string]string{"a": "b"}})
	require.NoError(t, err)
	e2, err := es.Append(ctx, Record{AggregateID: "LOC-1", AggregateType: "Order", EventType: "OrderCancelled", ExpectedVersion: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, e1.Version)
	assert.Equal(t, 2, e2.Version)
	assert.JSONEq(t, `{"a":"b"}`, string(e1.Data))
}

func TestEventStore_Append_RejectsStaleVersion(t *testing.T) {
	es := newTestStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0})
	require.NoError(t, err)

	_, err = es.Append(ctx, Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0})
	assert.ErrorIs(t, err, ErrVersionConflict)

	events, err := es.GetEvents(ctx, "LOC-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventStore_Append_AnyVersionSkipsCheck(t *testing.T) {
	es := newTestStore(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := es.Append(ctx, Record{AggregateID: "p1", EventType: "ProductUpdated", ExpectedVersion: AnyVersion})
		require.NoError(t, err)
	}

	events, _ := es.GetEvents(ctx, "p1")
	assert.Len(t, events, 3)
}

// ============================================
// AppendAll Tests
// ============================================

func TestEventStore_AppendAll_AllOrNothing(t *testing.T) {
	es := newTestStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, Record{AggregateID: "cart-a", EventType: "ItemAddedToCart", ExpectedVersion: 0})
	require.NoError(t, err)

	// cart moved on to version 1, so the batch must be rejected as a whole
	_, err = es.AppendAll(ctx,
		Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0},
		Record{AggregateID: "cart-a", EventType: "CartCleared", ExpectedVersion: 0},
	)
	assert.ErrorIs(t, err, ErrVersionConflict)

	orderEvents, _ := es.GetEvents(ctx, "LOC-1")
	assert.Empty(t, orderEvents)

	created, err := es.AppendAll(ctx,
		Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0},
		Record{AggregateID: "cart-a", EventType: "CartCleared", ExpectedVersion: 1},
	)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 1, created[0].Version)
	assert.Equal(t, 2, created[1].Version)
}

func TestEventStore_AppendAll_SameAggregateTwice(t *testing.T) {
	es := newTestStore(nil)

	created, err := es.AppendAll(context.Background(),
		Record{AggregateID: "cart-a", EventType: "ItemAddedToCart", ExpectedVersion: 0},
		Record{AggregateID: "cart-a", EventType: "ItemAddedToCart", ExpectedVersion: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, created[1].Version)
}

func TestEventStore_ConcurrentAppends_OneWins(t *testing.T) {
	es := newTestStore(nil)
	ctx := context.Background()
	_, err := es.Append(ctx, Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = es.Append(ctx, Record{AggregateID: "LOC-1", EventType: "OrderCancelled", ExpectedVersion: 1})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// ============================================
// Publishing Tests
// ============================================

func TestEventStore_PublishesAfterCommit(t *testing.T) {
	pub := &recordingPublisher{}
	es := newTestStore(pub)

	_, err := es.AppendAll(context.Background(),
		Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0},
		Record{AggregateID: "cart-a", EventType: "CartCleared", ExpectedVersion: AnyVersion},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"LOC-1", "cart-a"}, pub.keys)
}

func TestEventStore_PublishFailureKeepsCommit(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	es := newTestStore(pub)
	ctx := context.Background()

	_, err := es.Append(ctx, Record{AggregateID: "LOC-1", EventType: "OrderPlaced", ExpectedVersion: 0})
	require.NoError(t, err)

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// ============================================
// Snapshot Tests
// ============================================

func TestEventStore_Snapshots(t *testing.T) {
	es := newTestStore(nil)
	ctx := context.Background()

	snap, err := es.GetSnapshot(ctx, "LOC-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	for i := 0; i < 12; i++ {
		_, err := es.Append(ctx, Record{AggregateID: "LOC-1", EventType: "Noop", ExpectedVersion: i})
		require.NoError(t, err)
	}
	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID: "LOC-1", AggregateType: "Order", Version: 10,
		State: []byte(`{"id":"LOC-1"}`), CreatedAt: time.Now(),
	}))

	snap, err = es.GetSnapshot(ctx, "LOC-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10, snap.Version)

	rest, err := es.GetEventsFromVersion(ctx, "LOC-1", snap.Version)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, 11, rest[0].Version)
}

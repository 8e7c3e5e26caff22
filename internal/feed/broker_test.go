package feed

import (
	"context"
	"testing"
	"time"

	"github.com/example/localmart/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, ch <-chan *readmodel.OrderReadModel) *readmodel.OrderReadModel {
	t.Helper()
	select {
	case o, ok := <-ch:
		require.True(t, ok, "channel closed")
		return o
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan *readmodel.OrderReadModel) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

func TestBroker_FilterSelectsOrders(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := b.Subscribe(ctx, func(o *readmodel.OrderReadModel) bool {
		return o.CustomerID == "asha@example.com"
	}, 4)
	store := b.Subscribe(ctx, func(o *readmodel.OrderReadModel) bool {
		return o.HasStore("spice-bazaar")
	}, 4)

	b.Publish(&readmodel.OrderReadModel{ID: "LOC-1", CustomerID: "ravi@example.com", StoreIDs: []string{"spice-bazaar"}})
	b.Publish(&readmodel.OrderReadModel{ID: "LOC-2", CustomerID: "asha@example.com", StoreIDs: []string{"green-grocer"}})

	assert.Equal(t, "LOC-2", receive(t, mine).ID)
	assert.Equal(t, "LOC-1", receive(t, store).ID)
	assert.Empty(t, mine)
	assert.Empty(t, store)
}

func TestBroker_PublishSendsCopies(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, nil, 1)

	o := &readmodel.OrderReadModel{ID: "LOC-1", StoreIDs: []string{"s1"}}
	b.Publish(o)
	o.StoreIDs[0] = "changed"

	assert.Equal(t, []string{"s1"}, receive(t, ch).StoreIDs)
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := b.Subscribe(ctx, nil, 1)
	fast := b.Subscribe(ctx, nil, 8)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(&readmodel.OrderReadModel{ID: "LOC-1", Version: i + 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Equal(t, 1, receive(t, slow).Version)
	assert.Len(t, fast, 5)
}

func TestBroker_UnsubscribeOnContextDone(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, nil, 1)
	require.Equal(t, 1, b.Subscribers())

	cancel()

	waitClosed(t, ch)
	assert.Equal(t, 0, b.Subscribers())
	b.Publish(&readmodel.OrderReadModel{ID: "LOC-1"})
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, nil, 1)

	b.Close()
	b.Close()

	waitClosed(t, ch)
	waitClosed(t, b.Subscribe(ctx, nil, 1))
	assert.Equal(t, 0, b.Subscribers())
}

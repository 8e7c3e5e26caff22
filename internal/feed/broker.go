// Package feed fans order updates out to live subscribers such as the
// order list streams of customers, sellers and admins.
package feed

import (
	"context"
	"sync"

	"github.com/example/localmart/internal/metrics"
	"github.com/example/localmart/internal/readmodel"
	"go.uber.org/zap"
)

// Filter selects the orders a subscriber may see.
type Filter func(*readmodel.OrderReadModel) bool

type subscriber struct {
	ch     chan *readmodel.OrderReadModel
	filter Filter
}

// Broker is an in-process pub/sub for order read models. Publish never
// blocks: a subscriber whose buffer is full misses that update.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.Named("feed"),
	}
}

// Subscribe registers a subscriber until ctx ends. The returned channel is
// closed when ctx is done or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, filter Filter, buffer int) <-chan *readmodel.OrderReadModel {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan *readmodel.OrderReadModel, buffer), filter: filter}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	metrics.FeedSubscribers.Inc()

	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()
	return sub.ch
}

func (b *Broker) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	metrics.FeedSubscribers.Dec()
}

// Publish hands a copy of order to every subscriber whose filter accepts it.
func (b *Broker) Publish(order *readmodel.OrderReadModel) {
	if order == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(order) {
			continue
		}
		select {
		case sub.ch <- order.Clone():
		default:
			metrics.FeedDroppedTotal.Inc()
			b.logger.Warn("subscriber too slow, update dropped",
				zap.String("order_id", order.ID),
				zap.Int("version", order.Version),
			)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later Subscribe calls get a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
		metrics.FeedSubscribers.Dec()
	}
}

package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/example/localmart/internal/domain/cart"
	"github.com/example/localmart/internal/domain/order"
	"github.com/example/localmart/internal/domain/product"
	"github.com/example/localmart/internal/infrastructure/cache"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/metrics"
	"github.com/example/localmart/internal/readmodel"
	"go.uber.org/zap"
)

// OrderSink receives every order read model the projector writes.
// feed.Broker implements it.
type OrderSink interface {
	Publish(order *readmodel.OrderReadModel)
}

// ErrOutOfOrder reports an event whose predecessors have not been
// projected and could not be fetched.
var ErrOutOfOrder = errors.New("event delivered out of order")

// EventSource returns an aggregate's events newer than a version.
// store.EventStoreInterface satisfies it.
type EventSource interface {
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error)
}

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc func(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error)

func (f EventSourceFunc) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	return f(ctx, aggregateID, fromVersion)
}

// gapError is returned by the per-aggregate handlers when the read model
// is behind the event by more than one version.
type gapError struct {
	aggregateID string
	projected   int
	got         int
}

func (e *gapError) Error() string {
	return fmt.Sprintf("%s: %s projected at version %d, got version %d", ErrOutOfOrder, e.aggregateID, e.projected, e.got)
}

func (e *gapError) Unwrap() error { return ErrOutOfOrder }

type Projector struct {
	readStore store.ReadStoreInterface
	cache     cache.OrderCache
	sink      OrderSink
	source    EventSource
	logger    *zap.Logger
}

type Option func(*Projector)

// WithOrderCache invalidates cached orders as they change.
func WithOrderCache(c cache.OrderCache) Option {
	return func(p *Projector) { p.cache = c }
}

// WithEventSource lets the projector fetch events it has not seen when one
// arrives ahead of its predecessors. Without a source such an event fails
// with ErrOutOfOrder and the caller redelivers it.
func WithEventSource(src EventSource) Option {
	return func(p *Projector) { p.source = src }
}

// WithOrderSink forwards updated orders, e.g. to live feed subscribers.
func WithOrderSink(s OrderSink) Option {
	return func(p *Projector) { p.sink = s }
}

func NewProjector(readStore store.ReadStoreInterface, logger *zap.Logger, opts ...Option) *Projector {
	p := &Projector{
		readStore: readStore,
		cache:     cache.Noop{},
		logger:    logger.Named("projector"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleEvent decodes a Kafka message value and applies it.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event %s: %w", key, err)
	}
	return p.Apply(ctx, event)
}

// Replay applies events in order, stopping at the first failure.
func (p *Projector) Replay(ctx context.Context, events []store.Event) error {
	for _, event := range events {
		if err := p.Apply(ctx, event); err != nil {
			return err
		}
	}
	p.logger.Info("replay finished", zap.Int("events", len(events)))
	return nil
}

// Apply updates the read models for one event. Events at or below the
// version already projected are skipped, so redelivery is harmless. Cart
// and order events are applied strictly in version order.
func (p *Projector) Apply(ctx context.Context, event store.Event) error {
	p.logger.Debug("received event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.Int("version", event.Version),
	)

	err := p.project(ctx, event)
	var gap *gapError
	if errors.As(err, &gap) {
		err = p.catchUp(ctx, event, gap)
	}
	if err != nil {
		metrics.ProjectionErrorsTotal.WithLabelValues(event.EventType).Inc()
		p.logger.Error("projection failed",
			zap.String("event_type", event.EventType),
			zap.String("aggregate_id", event.AggregateID),
			zap.Error(err),
		)
	}
	return err
}

func (p *Projector) project(ctx context.Context, event store.Event) error {
	switch event.AggregateType {
	case product.AggregateType:
		return p.handleProductEvent(ctx, event)
	case cart.AggregateType:
		return p.handleCartEvent(ctx, event)
	case order.AggregateType:
		return p.handleOrderEvent(ctx, event)
	}
	return nil
}

// catchUp projects the events between the read model and event, in order.
func (p *Projector) catchUp(ctx context.Context, event store.Event, gap *gapError) error {
	if p.source == nil {
		return gap
	}
	missed, err := p.source.GetEventsFromVersion(ctx, event.AggregateID, gap.projected)
	if err != nil {
		return fmt.Errorf("load missed events for %s: %w", event.AggregateID, err)
	}
	p.logger.Info("catching up out-of-order events",
		zap.String("aggregate_id", event.AggregateID),
		zap.Int("from_version", gap.projected),
		zap.Int("to_version", event.Version),
	)
	want := gap.projected + 1
	for _, e := range missed {
		if e.Version > event.Version {
			break
		}
		if e.Version != want {
			return fmt.Errorf("%w: %s source skipped from %d to %d", ErrOutOfOrder, event.AggregateID, want-1, e.Version)
		}
		if err := p.project(ctx, e); err != nil {
			return err
		}
		want++
	}
	if want <= event.Version {
		return gap
	}
	return nil
}

func (p *Projector) handleProductEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case product.EventProductCreated:
		var e product.ProductCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.readStore.Set(ctx, readmodel.CollectionProducts, e.ProductID, &readmodel.ProductReadModel{
			ID:          e.ProductID,
			StoreID:     e.StoreID,
			Name:        e.Name,
			Description: e.Description,
			Price:       e.Price,
			ImageURL:    e.ImageURL,
			CreatedAt:   e.CreatedAt,
			UpdatedAt:   e.CreatedAt,
		})

	case product.EventProductUpdated:
		var e product.ProductUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.CollectionProducts, e.ProductID, func(current any) any {
			prod := *current.(*readmodel.ProductReadModel)
			prod.Name = e.Name
			prod.Description = e.Description
			prod.Price = e.Price
			prod.ImageURL = e.ImageURL
			prod.UpdatedAt = e.UpdatedAt
			return &prod
		})
		return err

	case product.EventProductDeleted:
		var e product.ProductDeleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.readStore.Delete(ctx, readmodel.CollectionProducts, e.ProductID)
	}
	return nil
}

func (p *Projector) handleCartEvent(ctx context.Context, event store.Event) error {
	cartID := event.AggregateID
	var apply func(c *readmodel.CartReadModel)

	switch event.EventType {
	case cart.EventItemAdded:
		var e cart.ItemAddedToCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(c *readmodel.CartReadModel) {
			c.CustomerID = e.CustomerID
			if i := lineIndex(c.Lines, e.ProductID); i >= 0 {
				c.Lines[i].Quantity += e.Quantity
				c.Lines[i].Price = e.Price
				c.Lines[i].Name = e.Name
			} else {
				c.Lines = append(c.Lines, readmodel.CartLineReadModel{
					ProductID: e.ProductID,
					StoreID:   e.StoreID,
					Name:      e.Name,
					Price:     e.Price,
					Quantity:  e.Quantity,
				})
			}
			c.UpdatedAt = e.AddedAt
		}

	case cart.EventItemRemoved:
		var e cart.ItemRemovedFromCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(c *readmodel.CartReadModel) {
			if i := lineIndex(c.Lines, e.ProductID); i >= 0 {
				c.Lines = slices.Delete(c.Lines, i, i+1)
			}
			c.UpdatedAt = e.RemovedAt
		}

	case cart.EventQuantityChanged:
		var e cart.CartQuantityChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(c *readmodel.CartReadModel) {
			if i := lineIndex(c.Lines, e.ProductID); i >= 0 {
				c.Lines[i].Quantity = e.Quantity
			}
			c.UpdatedAt = e.ChangedAt
		}

	case cart.EventCartCleared:
		var e cart.CartCleared
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(c *readmodel.CartReadModel) {
			c.CustomerID = e.CustomerID
			c.Lines = []readmodel.CartLineReadModel{}
			c.UpdatedAt = e.ClearedAt
		}

	default:
		return nil
	}

	behind := -1
	found, err := p.readStore.Update(ctx, readmodel.CollectionCarts, cartID, func(current any) any {
		c := current.(*readmodel.CartReadModel)
		if c.Version >= event.Version {
			return c
		}
		if c.Version+1 < event.Version {
			behind = c.Version
			return c
		}
		next := *c
		next.Lines = slices.Clone(c.Lines)
		apply(&next)
		next.Subtotal = cartSubtotal(next.Lines)
		next.Version = event.Version
		return &next
	})
	if err != nil {
		return err
	}
	if behind >= 0 {
		return &gapError{aggregateID: cartID, projected: behind, got: event.Version}
	}
	if found {
		return nil
	}
	if event.Version > 1 {
		return &gapError{aggregateID: cartID, projected: 0, got: event.Version}
	}

	c := &readmodel.CartReadModel{ID: cartID, Lines: []readmodel.CartLineReadModel{}}
	apply(c)
	c.Subtotal = cartSubtotal(c.Lines)
	c.Version = event.Version
	return p.readStore.Set(ctx, readmodel.CollectionCarts, cartID, c)
}

func (p *Projector) handleOrderEvent(ctx context.Context, event store.Event) error {
	if event.EventType == order.EventOrderPlaced {
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		existing, ok, err := p.readStore.Get(ctx, readmodel.CollectionOrders, e.OrderID)
		if err != nil {
			return err
		}
		if ok {
			p.alreadyProjected(existing.(*readmodel.OrderReadModel), event)
			return nil
		}
		o := orderPlacedModel(e, event.Version)
		if err := p.readStore.Set(ctx, readmodel.CollectionOrders, e.OrderID, o); err != nil {
			return err
		}
		p.orderChanged(ctx, o)
		return nil
	}

	var apply func(o *readmodel.OrderReadModel)
	switch event.EventType {
	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusCancelled)
			o.UpdatedAt = e.CancelledAt
		}

	case order.EventOrderOutForDelivery:
		var e order.OrderOutForDelivery
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusOutForDelivery)
			o.SellerNote = e.SellerNote
			o.UpdatedAt = e.DispatchedAt
		}

	case order.EventOrderDelivered:
		var e order.OrderDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		apply = func(o *readmodel.OrderReadModel) {
			o.Status = string(order.StatusDelivered)
			o.UpdatedAt = e.DeliveredAt
		}

	default:
		return nil
	}

	var updated, latest *readmodel.OrderReadModel
	behind := -1
	found, err := p.readStore.Update(ctx, readmodel.CollectionOrders, event.AggregateID, func(current any) any {
		o := current.(*readmodel.OrderReadModel)
		if o.Version >= event.Version {
			latest = o
			return o
		}
		if o.Version+1 < event.Version {
			behind = o.Version
			return o
		}
		next := o.Clone()
		apply(next)
		next.Version = event.Version
		updated = next
		return next
	})
	if err != nil {
		return err
	}
	if !found {
		return &gapError{aggregateID: event.AggregateID, projected: 0, got: event.Version}
	}
	if behind >= 0 {
		return &gapError{aggregateID: event.AggregateID, projected: behind, got: event.Version}
	}
	if updated != nil {
		p.orderChanged(ctx, updated)
	} else if latest != nil {
		p.alreadyProjected(latest, event)
	}
	return nil
}

// alreadyProjected handles an event the read model already reflects. When
// it is the latest one, another projector instance wrote it first and the
// local sink still has to hear about it.
func (p *Projector) alreadyProjected(o *readmodel.OrderReadModel, event store.Event) {
	if o.Version != event.Version || p.sink == nil {
		return
	}
	p.sink.Publish(o.Clone())
}

// orderChanged drops the cached copy and notifies the sink.
func (p *Projector) orderChanged(ctx context.Context, o *readmodel.OrderReadModel) {
	if err := p.cache.Invalidate(ctx, o.ID, o.Version); err != nil {
		p.logger.Warn("order cache invalidation failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	if p.sink != nil {
		p.sink.Publish(o)
	}
}

func orderPlacedModel(e order.OrderPlaced, version int) *readmodel.OrderReadModel {
	items := make([]readmodel.OrderItemReadModel, len(e.Items))
	var storeIDs []string
	for i, item := range e.Items {
		items[i] = readmodel.OrderItemReadModel{
			ProductID: item.ProductID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
		if !slices.Contains(storeIDs, item.StoreID) {
			storeIDs = append(storeIDs, item.StoreID)
		}
	}
	return &readmodel.OrderReadModel{
		ID:           e.OrderID,
		CustomerID:   e.CustomerID,
		StoreIDs:     storeIDs,
		Items:        items,
		Subtotal:     e.Subtotal,
		DeliveryFee:  e.DeliveryFee,
		Tax:          e.Tax,
		Total:        e.Total,
		Status:       string(order.StatusProcessing),
		Instructions: e.Instructions,
		Date:         e.Date,
		Version:      version,
		CreatedAt:    e.PlacedAt,
		UpdatedAt:    e.PlacedAt,
	}
}

func lineIndex(lines []readmodel.CartLineReadModel, productID string) int {
	return slices.IndexFunc(lines, func(l readmodel.CartLineReadModel) bool {
		return l.ProductID == productID
	})
}

func cartSubtotal(lines []readmodel.CartLineReadModel) int {
	total := 0
	for _, l := range lines {
		total += l.Price * l.Quantity
	}
	return total
}

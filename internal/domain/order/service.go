package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/aggregate"
	"github.com/example/localmart/internal/domain/cart"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxInstructionsLen = 500
	maxNoteLen         = 500

	// MaxSubtotal bounds an order's item subtotal so totals never overflow.
	MaxSubtotal = 1_000_000_000_000
)

type Service struct {
	eventStore store.EventStoreInterface
	pricing    Pricing
	now        func() time.Time
	newID      func() string
	logger     *zap.Logger
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides NewOrderID.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(es store.EventStoreInterface, pricing Pricing, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		eventStore: es,
		pricing:    pricing,
		now:        time.Now,
		newID:      NewOrderID,
		logger:     logger.Named("order"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOrderID returns a collision-resistant order id with the LOC- prefix.
func NewOrderID() string {
	return "LOC-" + strings.ToUpper(uuid.New().String())
}

// Pricing returns the pricing applied to new orders.
func (s *Service) Pricing() Pricing { return s.pricing }

// Get loads an order from the event store.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, found, err := aggregate.LoadAggregate(ctx, s.eventStore, orderID, func() *Order { return &Order{} })
	if err != nil {
		return nil, aggregate.LoadError(err)
	}
	if !found {
		return nil, fmt.Errorf("%w %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

// Place turns the customer's cart into a Processing order and clears the
// cart in the same append. c must be the cart as loaded from the event
// store; if it changed since, Place fails with a ConflictError and writes
// nothing.
func (s *Service) Place(ctx context.Context, customerID string, c *cart.Cart, instructions string) (*Order, error) {
	o, err := s.place(ctx, customerID, c, instructions)
	if err != nil {
		metrics.OrderRejectionsTotal.WithLabelValues("place", errs.Kind(err)).Inc()
		return nil, err
	}
	metrics.OrdersPlacedTotal.Inc()
	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Int("items", len(o.Items)),
		zap.Int("total", o.Total),
	)
	return o, nil
}

func (s *Service) place(ctx context.Context, customerID string, c *cart.Cart, instructions string) (*Order, error) {
	if customerID == "" {
		return nil, ErrNoCustomer
	}
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if c.CustomerID != customerID {
		return nil, errs.Validation("cart", "cart belongs to another customer")
	}
	instructions = strings.TrimSpace(instructions)
	if utf8.RuneCountInString(instructions) > maxInstructionsLen {
		return nil, errs.Validation("instructions", fmt.Sprintf("must be at most %d characters", maxInstructionsLen))
	}

	lines := c.Snapshot()
	items := make([]OrderItem, 0, len(lines))
	subtotal := 0
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, errs.Validation("items", fmt.Sprintf("quantity of %s must be positive", l.ProductID))
		}
		if l.Price < 0 {
			return nil, errs.Validation("items", fmt.Sprintf("price of %s must not be negative", l.ProductID))
		}
		if l.Price > 0 && l.Quantity > (MaxSubtotal-subtotal)/l.Price {
			return nil, errs.Validation("items", fmt.Sprintf("order subtotal exceeds %d", MaxSubtotal))
		}
		items = append(items, OrderItem{
			ProductID: l.ProductID,
			StoreID:   l.StoreID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
		})
		subtotal += l.Subtotal()
	}

	quote := s.pricing.Quote(subtotal)
	now := s.now()
	orderID := s.newID()

	placed := OrderPlaced{
		OrderID:      orderID,
		CustomerID:   customerID,
		CartID:       c.ID,
		Items:        items,
		Subtotal:     quote.Subtotal,
		DeliveryFee:  quote.DeliveryFee,
		Tax:          quote.Tax,
		Total:        quote.Total,
		Instructions: instructions,
		Date:         now.Format(time.DateOnly),
		PlacedAt:     now,
	}

	stored, err := s.eventStore.AppendAll(ctx,
		store.Record{
			AggregateID:     orderID,
			AggregateType:   AggregateType,
			EventType:       EventOrderPlaced,
			ExpectedVersion: 0,
			Data:            placed,
		},
		cart.ClearRecord(c, orderID),
	)
	if err != nil {
		return nil, aggregate.AppendError(c.ID, c.Version, err)
	}

	o := &Order{}
	if err := o.ApplyEvent(stored[0]); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel moves a Processing order to Cancelled. Only the owning customer
// may cancel.
func (s *Service) Cancel(ctx context.Context, p actor.Principal, orderID, reason string) (*Order, error) {
	return s.Transition(ctx, p, orderID, ActionCancel, reason)
}

// Process hands a Processing order to delivery, recording the seller's note.
func (s *Service) Process(ctx context.Context, p actor.Principal, orderID, note string) (*Order, error) {
	return s.Transition(ctx, p, orderID, ActionProcess, note)
}

// Deliver completes an order that is out for delivery.
func (s *Service) Deliver(ctx context.Context, p actor.Principal, orderID string) (*Order, error) {
	return s.Transition(ctx, p, orderID, ActionDeliver, "")
}

// Transition applies action to the order on behalf of p. text is the
// cancellation reason or the seller note. A refused action returns an
// errs.InvalidTransitionError and writes nothing.
func (s *Service) Transition(ctx context.Context, p actor.Principal, orderID string, action Action, text string) (*Order, error) {
	o, err := s.transition(ctx, p, orderID, action, text)
	if err != nil {
		metrics.OrderRejectionsTotal.WithLabelValues(string(action), errs.Kind(err)).Inc()
		s.logger.Debug("order transition refused",
			zap.String("order_id", orderID),
			zap.String("action", string(action)),
			zap.String("actor", actor.Describe(p)),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(action)).Inc()
	s.logger.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("action", string(action)),
		zap.String("status", string(o.Status)),
		zap.String("actor", actor.Describe(p)),
	)
	return o, nil
}

func (s *Service) transition(ctx context.Context, p actor.Principal, orderID string, action Action, text string) (*Order, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxNoteLen {
		return nil, errs.Validation("note", fmt.Sprintf("must be at most %d characters", maxNoteLen))
	}

	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if reason := o.checkTransition(p, action); reason != nil {
		return nil, o.transitionError(p, action, reason)
	}

	now := s.now()
	var (
		eventType string
		data      any
	)
	switch action {
	case ActionCancel:
		eventType = EventOrderCancelled
		data = OrderCancelled{
			OrderID:     o.ID,
			CustomerID:  o.CustomerID,
			CancelledBy: p.ID(),
			Reason:      text,
			CancelledAt: now,
		}
	case ActionProcess:
		seller := p.(actor.Seller)
		eventType = EventOrderOutForDelivery
		data = OrderOutForDelivery{
			OrderID:      o.ID,
			CustomerID:   o.CustomerID,
			StoreID:      seller.StoreID,
			ProcessedBy:  seller.UserID,
			SellerNote:   text,
			DispatchedAt: now,
		}
	case ActionDeliver:
		eventType = EventOrderDelivered
		data = OrderDelivered{
			OrderID:     o.ID,
			CustomerID:  o.CustomerID,
			DeliveredBy: actor.Describe(p),
			DeliveredAt: now,
		}
	}

	expected := o.Version
	stored, err := s.eventStore.Append(ctx, store.Record{
		AggregateID:     o.ID,
		AggregateType:   AggregateType,
		EventType:       eventType,
		ExpectedVersion: expected,
		Data:            data,
	})
	if err != nil {
		return nil, aggregate.AppendError(o.ID, expected, err)
	}
	if err := o.ApplyEvent(*stored); err != nil {
		return nil, err
	}

	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, o, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

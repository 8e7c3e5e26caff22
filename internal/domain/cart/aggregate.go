package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/example/localmart/internal/domain/aggregate"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store"
	"go.uber.org/zap"
)

const AggregateType = "Cart"

// MaxLineQuantity caps the units of one product in a cart.
const MaxLineQuantity = 99

var (
	ErrInvalidQuantity  = errs.Validation("quantity", "quantity must be positive")
	ErrInvalidProduct   = errs.Validation("product_id", "product_id is required")
	ErrInvalidCustomer  = errs.Validation("customer_id", "customer_id is required")
	ErrInvalidPrice     = errs.Validation("price", "price must not be negative")
	ErrItemNotInCart    = errs.Validation("product_id", "product is not in the cart")
	ErrQuantityTooLarge = errs.Validation("quantity", fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
)

// Line is one product in the cart. Lines are values; copying a Line never
// shares state with the cart.
type Line struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal is price times quantity.
func (l Line) Subtotal() int { return l.Price * l.Quantity }

// Item describes the product being added to a cart.
type Item struct {
	ProductID string
	StoreID   string
	Name      string
	Price     int
}

type Cart struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Lines      []Line `json:"lines"` // insertion order
	Version    int    `json:"version"`
}

// GetCartID returns the cart ID for a customer; each customer has one cart
func GetCartID(customerID string) string {
	return "cart-" + customerID
}

func (c *Cart) GetID() string { return c.ID }
func (c *Cart) GetVersion() int { return c.Version }
func (c *Cart) SetVersion(v int) { c.Version = v }
func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

// Snapshot returns a copy of the lines.
func (c *Cart) Snapshot() []Line {
	return slices.Clone(c.Lines)
}

// Subtotal sums all lines.
func (c *Cart) Subtotal() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) lineIndex(productID string) int {
	return slices.IndexFunc(c.Lines, func(l Line) bool { return l.ProductID == productID })
}

// ApplyEvent applies a single event to the cart state
func (c *Cart) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventItemAdded:
		var data ItemAddedToCart
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.ID = data.CartID
		c.CustomerID = data.CustomerID
		if i := c.lineIndex(data.ProductID); i >= 0 {
			c.Lines[i].Quantity += data.Quantity
			c.Lines[i].Price = data.Price
			c.Lines[i].Name = data.Name
		} else {
			c.Lines = append(c.Lines, Line{
				ProductID: data.ProductID,
				StoreID:   data.StoreID,
				Name:      data.Name,
				Price:     data.Price,
				Quantity:  data.Quantity,
			})
		}
	case EventItemRemoved:
		var data ItemRemovedFromCart
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if i := c.lineIndex(data.ProductID); i >= 0 {
			c.Lines = slices.Delete(c.Lines, i, i+1)
		}
	case EventQuantityChanged:
		var data CartQuantityChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if i := c.lineIndex(data.ProductID); i >= 0 {
			c.Lines[i].Quantity = data.Quantity
		}
	case EventCartCleared:
		c.Lines = nil
	}
	c.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
	logger     *zap.Logger
}

func NewService(es store.EventStoreInterface, logger *zap.Logger) *Service {
	return &Service{eventStore: es, logger: logger.Named("cart")}
}

// Load returns the customer's current cart, empty if it has no events yet.
func (s *Service) Load(ctx context.Context, customerID string) (*Cart, error) {
	if customerID == "" {
		return nil, ErrInvalidCustomer
	}
	cartID := GetCartID(customerID)
	c, _, err := aggregate.LoadAggregate(ctx, s.eventStore, cartID, func() *Cart { return &Cart{} })
	if err != nil {
		return nil, aggregate.LoadError(err)
	}
	c.ID = cartID
	c.CustomerID = customerID
	return c, nil
}

// AddItem adds quantity units of item, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, customerID string, item Item, quantity int) (*Cart, error) {
	if item.ProductID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if item.Price < 0 {
		return nil, ErrInvalidPrice
	}
	if quantity > MaxLineQuantity {
		return nil, ErrQuantityTooLarge
	}

	c, err := s.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if i := c.lineIndex(item.ProductID); i >= 0 && c.Lines[i].Quantity+quantity > MaxLineQuantity {
		return nil, ErrQuantityTooLarge
	}

	return s.apply(ctx, c, EventItemAdded, ItemAddedToCart{
		CartID:     c.ID,
		CustomerID: customerID,
		ProductID:  item.ProductID,
		StoreID:    item.StoreID,
		Name:       item.Name,
		Price:      item.Price,
		Quantity:   quantity,
		AddedAt:    time.Now(),
	})
}

// ChangeQuantity sets the quantity of an existing line.
func (s *Service) ChangeQuantity(ctx context.Context, customerID, productID string, quantity int) (*Cart, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity > MaxLineQuantity {
		return nil, ErrQuantityTooLarge
	}

	c, err := s.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.lineIndex(productID) < 0 {
		return nil, ErrItemNotInCart
	}

	return s.apply(ctx, c, EventQuantityChanged, CartQuantityChanged{
		CartID:     c.ID,
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   quantity,
		ChangedAt:  time.Now(),
	})
}

func (s *Service) RemoveItem(ctx context.Context, customerID, productID string) (*Cart, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}

	c, err := s.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.lineIndex(productID) < 0 {
		return nil, ErrItemNotInCart
	}

	return s.apply(ctx, c, EventItemRemoved, ItemRemovedFromCart{
		CartID:     c.ID,
		CustomerID: customerID,
		ProductID:  productID,
		RemovedAt:  time.Now(),
	})
}

// Clear empties the cart. Clearing an empty cart writes nothing.
func (s *Service) Clear(ctx context.Context, customerID string) (*Cart, error) {
	c, err := s.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return c, nil
	}
	return s.apply(ctx, c, EventCartCleared, ClearedEvent(c, ""))
}

// ClearedEvent builds the event that empties c.
func ClearedEvent(c *Cart, orderID string) CartCleared {
	return CartCleared{
		CartID:     c.ID,
		CustomerID: c.CustomerID,
		OrderID:    orderID,
		ClearedAt:  time.Now(),
	}
}

// ClearRecord is the append that empties c, guarded by the version c was
// loaded at. Checkout writes it together with the new order.
func ClearRecord(c *Cart, orderID string) store.Record {
	return store.Record{
		AggregateID:     c.ID,
		AggregateType:   AggregateType,
		EventType:       EventCartCleared,
		ExpectedVersion: c.Version,
		Data:            ClearedEvent(c, orderID),
	}
}

func (s *Service) apply(ctx context.Context, c *Cart, eventType string, data any) (*Cart, error) {
	expected := c.Version
	stored, err := s.eventStore.Append(ctx, store.Record{
		AggregateID:     c.ID,
		AggregateType:   AggregateType,
		EventType:       eventType,
		ExpectedVersion: expected,
		Data:            data,
	})
	if err != nil {
		return nil, aggregate.AppendError(c.ID, expected, err)
	}

	if err := c.ApplyEvent(*stored); err != nil {
		return nil, err
	}

	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, c, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("cart_id", c.ID), zap.Error(err))
	}
	return c, nil
}

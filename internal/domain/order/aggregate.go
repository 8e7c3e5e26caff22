package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store"
)

const AggregateType = "Order"

type Status string

const (
	StatusProcessing     Status = "Processing"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

// IsTerminal reports whether no action can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Action string

const (
	ActionCancel  Action = "cancel"
	ActionProcess Action = "process"
	ActionDeliver Action = "deliver"
)

// Reasons carried by errs.InvalidTransitionError.
var (
	ErrOrderCancelled        = errors.New("order has been cancelled")
	ErrOrderDelivered        = errors.New("order has already been delivered")
	ErrNotCancellable        = errors.New("order can no longer be cancelled")
	ErrAlreadyOutForDelivery = errors.New("order is already out for delivery")
	ErrNotOutForDelivery     = errors.New("order is not out for delivery yet")
	ErrActionNotPermitted    = errors.New("actor is not permitted to perform this action")
	ErrNotOrderParticipant   = errors.New("order does not belong to the actor")
	ErrUnknownAction         = errors.New("unknown action")
)

var (
	ErrOrderNotFound = fmt.Errorf("%w: order", errs.ErrNotFound)
	ErrEmptyCart     = errs.Validation("cart", "cart is empty")
	ErrNoCustomer    = errs.Validation("customer_id", "customer_id is required")
)

type transition struct {
	from   Status
	action Action
}

// lifecycle lists every permitted status change.
var lifecycle = map[transition]Status{
	{StatusProcessing, ActionCancel}:      StatusCancelled,
	{StatusProcessing, ActionProcess}:     StatusOutForDelivery,
	{StatusOutForDelivery, ActionDeliver}: StatusDelivered,
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
}

func (i OrderItem) Subtotal() int { return i.Price * i.Quantity }

type Order struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customer_id"`
	Items        []OrderItem `json:"items"`
	Subtotal     int         `json:"subtotal"`
	DeliveryFee  int         `json:"delivery_fee"`
	Tax          int         `json:"tax"`
	Total        int         `json:"total"`
	Status       Status      `json:"status"`
	Instructions string      `json:"instructions,omitempty"`
	SellerNote   string      `json:"seller_note,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	Date         string      `json:"date"` // YYYY-MM-DD
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Version      int         `json:"version"`
}

// Aggregate interface implementation
func (o *Order) GetID() string    { return o.ID }
func (o *Order) GetVersion() int  { return o.Version }
func (o *Order) SetVersion(v int) { o.Version = v }

// StoreIDs returns the distinct stores supplying the order, sorted.
func (o *Order) StoreIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.StoreID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// HasStore reports whether any item comes from storeID.
func (o *Order) HasStore(storeID string) bool {
	return slices.ContainsFunc(o.Items, func(i OrderItem) bool { return i.StoreID == storeID })
}

// Next returns the status action leads to from the current status.
func (o *Order) Next(action Action) (Status, bool) {
	next, ok := lifecycle[transition{o.Status, action}]
	return next, ok
}

// CanTransition reports whether p may perform action right now.
func (o *Order) CanTransition(p actor.Principal, action Action) bool {
	return o.checkTransition(p, action) == nil
}

// checkTransition returns the reason action is refused, or nil. The actor
// is checked before the status.
func (o *Order) checkTransition(p actor.Principal, action Action) error {
	if p == nil {
		return ErrActionNotPermitted
	}
	if reason := o.authorize(p, action); reason != nil {
		return reason
	}
	if _, ok := o.Next(action); ok {
		return nil
	}
	return o.statusReason(action)
}

func (o *Order) authorize(p actor.Principal, action Action) error {
	return actor.Match(p,
		func(c actor.Customer) error {
			if action != ActionCancel {
				return ErrActionNotPermitted
			}
			if c.UserID != o.CustomerID {
				return ErrNotOrderParticipant
			}
			return nil
		},
		func(s actor.Seller) error {
			if action != ActionProcess && action != ActionDeliver {
				return ErrActionNotPermitted
			}
			if !o.HasStore(s.StoreID) {
				return ErrNotOrderParticipant
			}
			return nil
		},
		func(actor.Admin) error { return ErrActionNotPermitted },
		func(actor.System) error {
			if action != ActionDeliver {
				return ErrActionNotPermitted
			}
			return nil
		},
	)
}

func (o *Order) statusReason(action Action) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusDelivered:
		return ErrOrderDelivered
	case o.Status == StatusOutForDelivery && action == ActionCancel:
		return ErrNotCancellable
	case o.Status == StatusOutForDelivery && action == ActionProcess:
		return ErrAlreadyOutForDelivery
	case o.Status == StatusProcessing && action == ActionDeliver:
		return ErrNotOutForDelivery
	default:
		return ErrUnknownAction
	}
}

func (o *Order) transitionError(p actor.Principal, action Action, reason error) error {
	return &errs.InvalidTransitionError{
		OrderID: o.ID,
		From:    string(o.Status),
		Action:  string(action),
		Actor:   actor.Describe(p),
		Reason:  reason,
	}
}

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.CustomerID = data.CustomerID
		o.Items = data.Items
		o.Subtotal = data.Subtotal
		o.DeliveryFee = data.DeliveryFee
		o.Tax = data.Tax
		o.Total = data.Total
		o.Instructions = data.Instructions
		o.Date = data.Date
		o.Status = StatusProcessing
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.CancelReason = data.Reason
		o.UpdatedAt = data.CancelledAt
	case EventOrderOutForDelivery:
		var data OrderOutForDelivery
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusOutForDelivery
		o.SellerNote = data.SellerNote
		o.UpdatedAt = data.DispatchedAt
	case EventOrderDelivered:
		var data OrderDelivered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusDelivered
		o.UpdatedAt = data.DeliveredAt
	}
	o.Version = event.Version
	return nil
}

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/localmart/internal/domain/order"
	"github.com/example/localmart/internal/email"
	"github.com/example/localmart/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Handler turns order events into customer e-mails. Customers are
// identified by their e-mail address, so the customer id is the recipient.
type Handler struct {
	sender email.Sender
	logger *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender email.Sender, logger *zap.Logger) *Handler {
	return &Handler{
		sender: sender,
		logger: logger.Named("notifier"),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("failed to unmarshal event", zap.Error(err))
		return err
	}
	return h.Notify(ctx, event)
}

// Notify sends the mail for event, if it has one.
func (h *Handler) Notify(ctx context.Context, event store.Event) error {
	if event.AggregateType != order.AggregateType {
		return nil
	}

	msg, ok, err := h.render(event)
	if err != nil {
		h.logger.Error("failed to decode order event",
			zap.String("event_type", event.EventType),
			zap.String("order_id", event.AggregateID),
			zap.Error(err),
		)
		return err
	}
	if !ok {
		return nil
	}
	if !strings.Contains(msg.To, "@") {
		h.logger.Warn("customer has no deliverable address",
			zap.String("order_id", event.AggregateID),
			zap.String("customer_id", msg.To),
		)
		return nil
	}

	if err := h.sender.Send(msg); err != nil {
		h.logger.Error("failed to send email",
			zap.String("event_type", event.EventType),
			zap.String("order_id", event.AggregateID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("email sent",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.AggregateID),
		zap.String("to", msg.To),
	)
	return nil
}

func (h *Handler) render(event store.Event) (email.Message, bool, error) {
	switch event.EventType {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return email.Message{}, false, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		items := make([]email.OrderItem, len(e.Items))
		for i, item := range e.Items {
			items[i] = email.OrderItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				Price:     item.Price,
			}
		}
		return email.OrderConfirmation(e.CustomerID, email.OrderSummary{
			OrderID:      e.OrderID,
			Items:        items,
			Subtotal:     e.Subtotal,
			DeliveryFee:  e.DeliveryFee,
			Tax:          e.Tax,
			Total:        e.Total,
			Instructions: e.Instructions,
		}), true, nil

	case order.EventOrderOutForDelivery:
		var e order.OrderOutForDelivery
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return email.Message{}, false, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		return email.StatusUpdate(e.CustomerID, email.StatusChange{
			OrderID: e.OrderID,
			Status:  string(order.StatusOutForDelivery),
			Note:    e.SellerNote,
		}), true, nil

	case order.EventOrderDelivered:
		var e order.OrderDelivered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return email.Message{}, false, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		return email.StatusUpdate(e.CustomerID, email.StatusChange{
			OrderID: e.OrderID,
			Status:  string(order.StatusDelivered),
		}), true, nil

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return email.Message{}, false, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		return email.StatusUpdate(e.CustomerID, email.StatusChange{
			OrderID: e.OrderID,
			Status:  string(order.StatusCancelled),
			Note:    e.Reason,
		}), true, nil
	}
	return email.Message{}, false, nil
}

package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/domain/order"
	"github.com/example/localmart/internal/metrics"
	"github.com/example/localmart/internal/readmodel"
	"go.uber.org/zap"
)

var (
	ErrNotTrackable = errs.Validation("status", "only orders that are processing or out for delivery can be tracked")
	ErrNotOwner     = fmt.Errorf("%w: only the ordering customer can track an order", errs.ErrForbidden)
)

// OrderLookup finds an order visible to a principal.
type OrderLookup interface {
	GetOrder(ctx context.Context, p actor.Principal, orderID string) (*readmodel.OrderReadModel, error)
}

type Service struct {
	orders    OrderLookup
	settings  Settings
	newTicker func(time.Duration) Ticker
	logger    *zap.Logger
}

func NewService(orders OrderLookup, settings Settings, logger *zap.Logger) *Service {
	return &Service{
		orders:    orders,
		settings:  settings,
		newTicker: NewTicker,
		logger:    logger.Named("tracking"),
	}
}

// WithTicker replaces the ticker factory, for tests.
func (s *Service) WithTicker(newTicker func(time.Duration) Ticker) *Service {
	s.newTicker = newTicker
	return s
}

// Trackable reports whether an order in status can be tracked.
func Trackable(status string) bool {
	return status == string(order.StatusProcessing) || status == string(order.StatusOutForDelivery)
}

// Open starts a fresh session for the customer's in-flight order. The
// caller must Stop the returned handle or cancel ctx.
func (s *Service) Open(ctx context.Context, p actor.Principal, orderID string, onTick func(Snapshot)) (*Handle, error) {
	customer, ok := p.(actor.Customer)
	if !ok {
		return nil, ErrNotOwner
	}

	o, err := s.orders.GetOrder(ctx, p, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customer.UserID {
		return nil, ErrNotOwner
	}
	if !Trackable(o.Status) {
		return nil, ErrNotTrackable
	}

	metrics.TrackingSessionsStartedTotal.Inc()
	s.logger.Debug("tracking session opened",
		zap.String("order_id", o.ID),
		zap.String("customer_id", customer.UserID),
	)

	session := NewSession(o.ID, s.settings)
	return Start(ctx, session, s.newTicker(s.settings.TickInterval), onTick), nil
}

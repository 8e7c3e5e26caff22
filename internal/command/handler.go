package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/cart"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/domain/order"
	"github.com/example/localmart/internal/domain/product"
	"github.com/example/localmart/internal/metrics"
	"github.com/example/localmart/internal/readmodel"
	"go.uber.org/zap"
)

// Catalog looks up products by id. query.Handler implements it over the
// product read model.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*readmodel.ProductReadModel, error)
}

type Handler struct {
	productSvc *product.Service
	cartSvc    *cart.Service
	orderSvc   *order.Service
	catalog    Catalog
	logger     *zap.Logger
}

func NewHandler(
	productSvc *product.Service,
	cartSvc *cart.Service,
	orderSvc *order.Service,
	catalog Catalog,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		productSvc: productSvc,
		cartSvc:    cartSvc,
		orderSvc:   orderSvc,
		catalog:    catalog,
		logger:     logger.Named("command"),
	}
}

// CreateProduct adds a product to the acting seller's store. Admins name
// the store in the command.
func (h *Handler) CreateProduct(ctx context.Context, p actor.Principal, cmd CreateProduct) (*product.Product, error) {
	return h.productSvc.Create(ctx, p, product.Draft{
		StoreID:     cmd.StoreID,
		Name:        cmd.Name,
		Description: cmd.Description,
		Price:       cmd.Price,
		ImageURL:    cmd.ImageURL,
	})
}

func (h *Handler) UpdateProduct(ctx context.Context, p actor.Principal, cmd UpdateProduct) (*product.Product, error) {
	return h.productSvc.Update(ctx, p, cmd.ProductID, product.Draft{
		Name:        cmd.Name,
		Description: cmd.Description,
		Price:       cmd.Price,
		ImageURL:    cmd.ImageURL,
	})
}

func (h *Handler) DeleteProduct(ctx context.Context, p actor.Principal, cmd DeleteProduct) error {
	return h.productSvc.Delete(ctx, p, cmd.ProductID)
}

// AddToCart adds a catalog product to the customer's cart at its current price.
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*cart.Cart, error) {
	prod, err := h.catalog.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	return h.cartSvc.AddItem(ctx, cmd.CustomerID, cart.Item{
		ProductID: prod.ID,
		StoreID:   prod.StoreID,
		Name:      prod.Name,
		Price:     prod.Price,
	}, cmd.Quantity)
}

func (h *Handler) ChangeCartQuantity(ctx context.Context, cmd ChangeCartQuantity) (*cart.Cart, error) {
	return h.cartSvc.ChangeQuantity(ctx, cmd.CustomerID, cmd.ProductID, cmd.Quantity)
}

func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*cart.Cart, error) {
	return h.cartSvc.RemoveItem(ctx, cmd.CustomerID, cmd.ProductID)
}

func (h *Handler) ClearCart(ctx context.Context, cmd ClearCart) (*cart.Cart, error) {
	return h.cartSvc.Clear(ctx, cmd.CustomerID)
}

// Checkout turns the customer's cart into an order. The cart is read from
// the event store and every line is priced from the catalog at this moment;
// the order and the cleared cart are then written in one append.
func (h *Handler) Checkout(ctx context.Context, cmd Checkout) (*order.Order, error) {
	c, err := h.cartSvc.Load(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := h.reprice(ctx, c); err != nil {
		metrics.OrderRejectionsTotal.WithLabelValues("place", errs.Kind(err)).Inc()
		h.logger.Info("checkout refused",
			zap.String("customer_id", cmd.CustomerID),
			zap.Error(err),
		)
		return nil, err
	}
	return h.orderSvc.Place(ctx, cmd.CustomerID, c, cmd.Instructions)
}

// reprice replaces the price, name and store of each line with the
// catalog's. c's version is unchanged, so a cart edited meanwhile still
// fails the append.
func (h *Handler) reprice(ctx context.Context, c *cart.Cart) error {
	for i, l := range c.Lines {
		prod, err := h.catalog.GetProduct(ctx, l.ProductID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return errs.Validation("items", fmt.Sprintf("%s is no longer available", l.Name))
		case err != nil:
			return errs.Unavailable("catalog", err)
		}
		c.Lines[i].Price = prod.Price
		c.Lines[i].Name = prod.Name
		c.Lines[i].StoreID = prod.StoreID
	}
	return nil
}

func (h *Handler) CancelOrder(ctx context.Context, p actor.Principal, cmd CancelOrder) (*order.Order, error) {
	return h.orderSvc.Cancel(ctx, p, cmd.OrderID, cmd.Reason)
}

func (h *Handler) ProcessOrder(ctx context.Context, p actor.Principal, cmd ProcessOrder) (*order.Order, error) {
	return h.orderSvc.Process(ctx, p, cmd.OrderID, cmd.Note)
}

func (h *Handler) DeliverOrder(ctx context.Context, p actor.Principal, cmd DeliverOrder) (*order.Order, error) {
	return h.orderSvc.Deliver(ctx, p, cmd.OrderID)
}

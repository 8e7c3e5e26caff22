package query

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/cart"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/cache"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/metrics"
	"github.com/example/localmart/internal/readmodel"
	"go.uber.org/zap"
)

var (
	ErrProductNotFound = fmt.Errorf("%w: product", errs.ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("%w: order", errs.ErrNotFound)
)

type Handler struct {
	readStore store.ReadStoreInterface
	cache     cache.OrderCache
	logger    *zap.Logger
}

func NewHandler(readStore store.ReadStoreInterface, orderCache cache.OrderCache, logger *zap.Logger) *Handler {
	if orderCache == nil {
		orderCache = cache.Noop{}
	}
	return &Handler{
		readStore: readStore,
		cache:     orderCache,
		logger:    logger.Named("query"),
	}
}

// Visible reports whether p may see order o: customers their own orders,
// sellers orders with at least one item from their store, admins and
// system principals everything.
func Visible(p actor.Principal, o *readmodel.OrderReadModel) bool {
	if p == nil {
		return false
	}
	return actor.Match(p,
		func(c actor.Customer) bool { return o.CustomerID == c.UserID },
		func(s actor.Seller) bool { return o.HasStore(s.StoreID) },
		func(actor.Admin) bool { return true },
		func(actor.System) bool { return true },
	)
}

// Products

// GetProduct returns a catalog entry. Read store failures are reported as
// the catalog being unavailable.
func (h *Handler) GetProduct(ctx context.Context, id string) (*readmodel.ProductReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionProducts, id)
	if err != nil {
		h.logger.Error("get product failed", zap.String("product_id", id), zap.Error(err))
		return nil, errs.Unavailable("catalog", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrProductNotFound, id)
	}
	return data.(*readmodel.ProductReadModel), nil
}

// ListProducts returns the catalog by name, limited to storeID when it is
// not empty.
func (h *Handler) ListProducts(ctx context.Context, storeID string) ([]*readmodel.ProductReadModel, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionProducts)
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		return nil, errs.Unavailable("catalog", err)
	}
	products := make([]*readmodel.ProductReadModel, 0, len(items))
	for _, item := range items {
		p := item.(*readmodel.ProductReadModel)
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b *readmodel.ProductReadModel) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return products, nil
}

// Cart

// GetCart returns the customer's cart, empty when nothing was added yet.
func (h *Handler) GetCart(ctx context.Context, customerID string) (*readmodel.CartReadModel, error) {
	cartID := cart.GetCartID(customerID)
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionCarts, cartID)
	if err != nil {
		h.logger.Error("get cart failed", zap.String("cart_id", cartID), zap.Error(err))
		return nil, errs.Unavailable("read store", err)
	}
	if !ok {
		return &readmodel.CartReadModel{
			ID:         cartID,
			CustomerID: customerID,
			Lines:      []readmodel.CartLineReadModel{},
		}, nil
	}
	return data.(*readmodel.CartReadModel), nil
}

// Orders

// ListOrders returns the orders p may see, newest first.
func (h *Handler) ListOrders(ctx context.Context, p actor.Principal) ([]*readmodel.OrderReadModel, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionOrders)
	if err != nil {
		h.logger.Error("list orders failed", zap.String("principal", actor.Describe(p)), zap.Error(err))
		return nil, errs.Unavailable("read store", err)
	}
	orders := make([]*readmodel.OrderReadModel, 0)
	for _, item := range items {
		o := item.(*readmodel.OrderReadModel)
		if Visible(p, o) {
			orders = append(orders, o)
		}
	}
	slices.SortFunc(orders, func(a, b *readmodel.OrderReadModel) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return orders, nil
}

// GetOrder returns one order if p may see it. Orders outside p's view are
// reported as not found. Lookups go through the order cache; a cache
// failure falls back to the read store.
func (h *Handler) GetOrder(ctx context.Context, p actor.Principal, orderID string) (*readmodel.OrderReadModel, error) {
	o, err := h.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !Visible(p, o) {
		return nil, fmt.Errorf("%w %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

func (h *Handler) loadOrder(ctx context.Context, orderID string) (*readmodel.OrderReadModel, error) {
	cached, ok, err := h.cache.Get(ctx, orderID)
	switch {
	case err != nil:
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		h.logger.Warn("order cache read failed", zap.String("order_id", orderID), zap.Error(err))
	case ok:
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionOrders, orderID)
	if err != nil {
		h.logger.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, errs.Unavailable("read store", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrOrderNotFound, orderID)
	}
	o := data.(*readmodel.OrderReadModel)

	if err := h.cache.Set(ctx, o); err != nil {
		h.logger.Warn("order cache write failed", zap.String("order_id", orderID), zap.Error(err))
	}
	return o, nil
}

package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/cache"
	"github.com/example/localmart/internal/infrastructure/store/mocks"
	"github.com/example/localmart/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueryHandler() (*Handler, *mocks.MockReadStore, *cache.Memory) {
	readStore := mocks.NewMockReadStore()
	orderCache := cache.NewMemory()
	handler := NewHandler(readStore, orderCache, zap.NewNop())
	return handler, readStore, orderCache
}

var (
	asha   = actor.Customer{UserID: "asha@example.com"}
	ravi   = actor.Customer{UserID: "ravi@example.com"}
	spices = actor.Seller{UserID: "meena", StoreID: "spice-bazaar"}
	greens = actor.Seller{UserID: "kiran", StoreID: "green-grocer"}
	admin  = actor.Admin{UserID: "root"}
)

func seedOrders(rs *mocks.MockReadStore) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rs.SetData(readmodel.CollectionOrders, "LOC-A", &readmodel.OrderReadModel{
		ID: "LOC-A", CustomerID: asha.UserID, StoreIDs: []string{"spice-bazaar"},
		Status: "Processing", CreatedAt: base,
	})
	rs.SetData(readmodel.CollectionOrders, "LOC-B", &readmodel.OrderReadModel{
		ID: "LOC-B", CustomerID: asha.UserID, StoreIDs: []string{"spice-bazaar", "green-grocer"},
		Status: "Out for Delivery", CreatedAt: base.Add(time.Hour),
	})
	rs.SetData(readmodel.CollectionOrders, "LOC-C", &readmodel.OrderReadModel{
		ID: "LOC-C", CustomerID: ravi.UserID, StoreIDs: []string{"green-grocer"},
		Status: "Delivered", CreatedAt: base.Add(2 * time.Hour),
	})
}

func ids(orders []*readmodel.OrderReadModel) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

// ============================================
// Role-Scoped Order View Tests
// ============================================

func TestHandler_ListOrders_ByRole(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	seedOrders(readStore)

	tests := []struct {
		name string
		p    actor.Principal
		want []string
	}{
		{"customer sees own orders", asha, []string{"LOC-B", "LOC-A"}},
		{"other customer", ravi, []string{"LOC-C"}},
		{"seller sees orders touching the store", spices, []string{"LOC-B", "LOC-A"}},
		{"mixed-store order visible to both sellers", greens, []string{"LOC-C", "LOC-B"}},
		{"admin sees all, newest first", admin, []string{"LOC-C", "LOC-B", "LOC-A"}},
		{"system sees all", actor.System{Name: "courier"}, []string{"LOC-C", "LOC-B", "LOC-A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := handler.ListOrders(context.Background(), tt.p)

			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(orders))
		})
	}
}

func TestHandler_ListOrders_Empty(t *testing.T) {
	handler, _, _ := newTestQueryHandler()

	orders, err := handler.ListOrders(context.Background(), asha)

	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestHandler_ListOrders_StoreFailure(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	readStore.Err = errors.New("connection reset")

	_, err := handler.ListOrders(context.Background(), admin)

	assert.ErrorIs(t, err, errs.ErrCollaboratorUnavailable)
}

func TestHandler_GetOrder_Visibility(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	seedOrders(readStore)
	ctx := context.Background()

	o, err := handler.GetOrder(ctx, asha, "LOC-A")
	require.NoError(t, err)
	assert.Equal(t, "Processing", o.Status)

	_, err = handler.GetOrder(ctx, ravi, "LOC-A")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = handler.GetOrder(ctx, greens, "LOC-A")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = handler.GetOrder(ctx, admin, "LOC-404")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestHandler_GetOrder_UsesCache(t *testing.T) {
	handler, readStore, orderCache := newTestQueryHandler()
	seedOrders(readStore)
	ctx := context.Background()

	_, err := handler.GetOrder(ctx, asha, "LOC-A")
	require.NoError(t, err)
	assert.Equal(t, 1, orderCache.Len())
	assert.Len(t, readStore.GetCalls, 1)

	_, err = handler.GetOrder(ctx, spices, "LOC-A")
	require.NoError(t, err)
	assert.Len(t, readStore.GetCalls, 1, "second read should be served from cache")

	// visibility is still enforced on cache hits
	_, err = handler.GetOrder(ctx, ravi, "LOC-A")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestHandler_GetOrder_OlderReadIsNotCached(t *testing.T) {
	handler, readStore, orderCache := newTestQueryHandler()
	seedOrders(readStore)
	ctx := context.Background()

	// the projector has already invalidated a newer version than the
	// read store returns to this reader
	require.NoError(t, orderCache.Invalidate(ctx, "LOC-A", 99))

	_, err := handler.GetOrder(ctx, asha, "LOC-A")
	require.NoError(t, err)
	assert.Equal(t, 0, orderCache.Len())

	_, err = handler.GetOrder(ctx, asha, "LOC-A")
	require.NoError(t, err)
	assert.Len(t, readStore.GetCalls, 2)
}

func TestHandler_GetOrder_CacheFailureFallsBack(t *testing.T) {
	handler, readStore, orderCache := newTestQueryHandler()
	seedOrders(readStore)
	orderCache.Err = errors.New("redis down")

	o, err := handler.GetOrder(context.Background(), asha, "LOC-B")

	require.NoError(t, err)
	assert.Equal(t, "LOC-B", o.ID)
}

func TestVisible_NilPrincipal(t *testing.T) {
	assert.False(t, Visible(nil, &readmodel.OrderReadModel{ID: "LOC-1"}))
}

// ============================================
// Product Query Tests
// ============================================

func TestHandler_GetProduct(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	readStore.SetData(readmodel.CollectionProducts, "p-1", &readmodel.ProductReadModel{
		ID: "p-1", StoreID: "spice-bazaar", Name: "Turmeric", Price: 120,
	})

	p, err := handler.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 120, p.Price)

	_, err = handler.GetProduct(context.Background(), "p-404")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestHandler_GetProduct_StoreFailure(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	readStore.Err = errors.New("connection reset")

	_, err := handler.GetProduct(context.Background(), "p-1")

	assert.ErrorIs(t, err, errs.ErrCollaboratorUnavailable)
}

func TestHandler_ListProducts(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	readStore.SetData(readmodel.CollectionProducts, "p-1", &readmodel.ProductReadModel{ID: "p-1", StoreID: "spice-bazaar", Name: "Turmeric"})
	readStore.SetData(readmodel.CollectionProducts, "p-2", &readmodel.ProductReadModel{ID: "p-2", StoreID: "green-grocer", Name: "Spinach"})
	readStore.SetData(readmodel.CollectionProducts, "p-3", &readmodel.ProductReadModel{ID: "p-3", StoreID: "spice-bazaar", Name: "Cardamom"})

	all, err := handler.ListProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "Cardamom", all[0].Name)

	store, err := handler.ListProducts(context.Background(), "spice-bazaar")
	require.NoError(t, err)
	require.Len(t, store, 2)
	assert.Equal(t, "Turmeric", store[1].Name)
}

// ============================================
// Cart Query Tests
// ============================================

func TestHandler_GetCart_Found(t *testing.T) {
	handler, readStore, _ := newTestQueryHandler()
	readStore.SetData(readmodel.CollectionCarts, "cart-asha@example.com", &readmodel.CartReadModel{
		ID:         "cart-asha@example.com",
		CustomerID: asha.UserID,
		Lines:      []readmodel.CartLineReadModel{{ProductID: "p-1", Price: 120, Quantity: 2}},
		Subtotal:   240,
	})

	c, err := handler.GetCart(context.Background(), asha.UserID)

	require.NoError(t, err)
	assert.Equal(t, 240, c.Subtotal)
}

func TestHandler_GetCart_EmptyWhenMissing(t *testing.T) {
	handler, _, _ := newTestQueryHandler()

	c, err := handler.GetCart(context.Background(), asha.UserID)

	require.NoError(t, err)
	assert.Equal(t, asha.UserID, c.CustomerID)
	assert.Empty(t, c.Lines)
	assert.Equal(t, 0, c.Subtotal)
}

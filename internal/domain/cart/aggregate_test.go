package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const customer = "asha@example.com"

var (
	milk  = Item{ProductID: "p1", StoreID: "s1", Name: "Milk", Price: 250}
	bread = Item{ProductID: "p2", StoreID: "s2", Name: "Bread", Price: 180}
)

func newTestCartService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewService(eventStore, zap.NewNop()), eventStore
}

// ============================================
// GetCartID Tests
// ============================================

func TestGetCartID(t *testing.T) {
	assert.Equal(t, "cart-asha@example.com", GetCartID(customer))
	assert.Equal(t, "cart-user-123", GetCartID("user-123"))
}

// ============================================
// Add Item Tests
// ============================================

func TestService_AddItem_Success(t *testing.T) {
	service, eventStore := newTestCartService()

	c, err := service.AddItem(context.Background(), customer, milk, 2)

	require.NoError(t, err)
	require.Len(t, eventStore.AppendCalls, 1)
	rec := eventStore.AppendCalls[0].Records[0]
	assert.Equal(t, EventItemAdded, rec.EventType)
	assert.Equal(t, AggregateType, rec.AggregateType)
	assert.Equal(t, "cart-asha@example.com", rec.AggregateID)
	assert.Equal(t, 0, rec.ExpectedVersion)

	assert.Equal(t, []Line{{ProductID: "p1", StoreID: "s1", Name: "Milk", Price: 250, Quantity: 2}}, c.Lines)
	assert.Equal(t, 1, c.Version)
}

func TestService_AddItem_MergesExistingLine(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()

	_, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, customer, bread, 2)
	require.NoError(t, err)
	c, err := service.AddItem(ctx, customer, milk, 3)
	require.NoError(t, err)

	require.Len(t, c.Lines, 2)
	assert.Equal(t, "p1", c.Lines[0].ProductID, "lines keep insertion order")
	assert.Equal(t, 4, c.Lines[0].Quantity)
	assert.Equal(t, 250*4+180*2, c.Subtotal())
}

func TestService_AddItem_Validation(t *testing.T) {
	tests := []struct {
		name     string
		customer string
		item     Item
		quantity int
		wantErr  error
	}{
		{"missing product", customer, Item{Price: 10}, 1, ErrInvalidProduct},
		{"zero quantity", customer, milk, 0, ErrInvalidQuantity},
		{"negative quantity", customer, milk, -2, ErrInvalidQuantity},
		{"negative price", customer, Item{ProductID: "p1", Price: -1}, 1, ErrInvalidPrice},
		{"missing customer", "", milk, 1, ErrInvalidCustomer},
		{"quantity over cap", customer, milk, MaxLineQuantity + 1, ErrQuantityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestCartService()

			_, err := service.AddItem(context.Background(), tt.customer, tt.item, tt.quantity)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, errs.ErrValidation)
			assert.Empty(t, eventStore.AppendCalls)
		})
	}
}

func TestService_AddItem_MergeOverCapRejected(t *testing.T) {
	service, eventStore := newTestCartService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, customer, milk, MaxLineQuantity-1)
	require.NoError(t, err)

	_, err = service.AddItem(ctx, customer, milk, 2)

	assert.ErrorIs(t, err, ErrQuantityTooLarge)
	assert.Len(t, eventStore.AppendCalls, 1, "nothing written")
	c, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxLineQuantity, c.Lines[0].Quantity)
}

func TestService_AddItem_StoreFailure(t *testing.T) {
	service, eventStore := newTestCartService()
	eventStore.AppendErr = errors.New("disk full")

	_, err := service.AddItem(context.Background(), customer, milk, 1)

	assert.ErrorIs(t, err, errs.ErrCollaboratorUnavailable)
}

// ============================================
// Change Quantity / Remove Tests
// ============================================

func TestService_ChangeQuantity(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)

	c, err := service.ChangeQuantity(ctx, customer, "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Lines[0].Quantity)

	_, err = service.ChangeQuantity(ctx, customer, "p1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = service.ChangeQuantity(ctx, customer, "p1", MaxLineQuantity+1)
	assert.ErrorIs(t, err, ErrQuantityTooLarge)

	_, err = service.ChangeQuantity(ctx, customer, "nope", 2)
	assert.ErrorIs(t, err, ErrItemNotInCart)
}

func TestService_RemoveItem(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, customer, bread, 1)
	require.NoError(t, err)

	c, err := service.RemoveItem(ctx, customer, "p1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p2", c.Lines[0].ProductID)

	_, err = service.RemoveItem(ctx, customer, "p1")
	assert.ErrorIs(t, err, ErrItemNotInCart)
}

// ============================================
// Clear Tests
// ============================================

func TestService_Clear(t *testing.T) {
	service, eventStore := newTestCartService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)

	c, err := service.Clear(ctx, customer)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Len(t, eventStore.AppendCalls, 2)

	// clearing an empty cart is a no-op
	_, err = service.Clear(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestClearRecord_UsesLoadedVersion(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)
	c, err := service.AddItem(ctx, customer, bread, 1)
	require.NoError(t, err)

	rec := ClearRecord(c, "LOC-1")

	assert.Equal(t, 2, rec.ExpectedVersion)
	assert.Equal(t, EventCartCleared, rec.EventType)
	assert.Equal(t, "LOC-1", rec.Data.(CartCleared).OrderID)
}

// ============================================
// Snapshot / Concurrency Tests
// ============================================

func TestCart_SnapshotIsACopy(t *testing.T) {
	c := &Cart{Lines: []Line{{ProductID: "p1", Price: 250, Quantity: 1}}}

	lines := c.Snapshot()
	lines[0].Quantity = 99

	assert.Equal(t, 1, c.Lines[0].Quantity)
}

func TestService_ConcurrentWriteIsConflict(t *testing.T) {
	service, eventStore := newTestCartService()
	ctx := context.Background()
	_, err := service.AddItem(ctx, customer, milk, 1)
	require.NoError(t, err)

	eventStore.BeforeAppend = func([]store.Record) {
		_ = eventStore.AddEvent(GetCartID(customer), AggregateType, EventItemAdded, ItemAddedToCart{
			CartID: GetCartID(customer), CustomerID: customer, ProductID: "p9", Quantity: 1,
		})
	}

	_, err = service.AddItem(ctx, customer, bread, 1)
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestService_SnapshotEveryTenEvents(t *testing.T) {
	service, eventStore := newTestCartService()
	ctx := context.Background()

	for i := 0; i < store.SnapshotThreshold; i++ {
		_, err := service.AddItem(ctx, customer, milk, 1)
		require.NoError(t, err)
	}

	require.Len(t, eventStore.SnapshotsSaved, 1)
	assert.Equal(t, 10, eventStore.SnapshotsSaved[0].Version)

	c, err := service.Load(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Lines[0].Quantity)
	assert.Equal(t, 10, c.Version)
}

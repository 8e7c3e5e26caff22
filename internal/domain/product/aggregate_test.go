package product

import (
	"context"
	"testing"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	seller      = actor.Seller{UserID: "seller-1", StoreID: "s1"}
	otherSeller = actor.Seller{UserID: "seller-2", StoreID: "s2"}
	admin       = actor.Admin{UserID: "root"}
	customer    = actor.Customer{UserID: "asha@example.com"}
)

func newTestProductService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewService(eventStore, zap.NewNop()), eventStore
}

// ============================================
// Create Tests
// ============================================

func TestService_Create_SellerPinnedToOwnStore(t *testing.T) {
	service, eventStore := newTestProductService()

	p, err := service.Create(context.Background(), seller, Draft{Name: "Milk", Price: 250, ImageURL: "milk.png"})

	require.NoError(t, err)
	assert.Equal(t, "s1", p.StoreID)
	assert.Equal(t, 1, p.Version)
	assert.NotEmpty(t, p.ID)
	require.Len(t, eventStore.AppendCalls, 1)
	assert.Equal(t, EventProductCreated, eventStore.AppendCalls[0].Records[0].EventType)
}

func TestService_Create_Permissions(t *testing.T) {
	tests := []struct {
		name      string
		principal actor.Principal
		draft     Draft
		wantErr   error
	}{
		{"customer", customer, Draft{Name: "Milk", Price: 1}, errs.ErrForbidden},
		{"system", actor.System{Name: "courier"}, Draft{Name: "Milk", Price: 1}, errs.ErrForbidden},
		{"seller naming other store", seller, Draft{StoreID: "s2", Name: "Milk", Price: 1}, ErrNotStoreOwner},
		{"admin without store", admin, Draft{Name: "Milk", Price: 1}, ErrInvalidStore},
		{"empty name", seller, Draft{Name: "  ", Price: 1}, ErrInvalidName},
		{"zero price", seller, Draft{Name: "Milk"}, ErrInvalidPrice},
		{"price too high", seller, Draft{Name: "Milk", Price: MaxPrice + 1}, ErrPriceTooHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestProductService()

			_, err := service.Create(context.Background(), tt.principal, tt.draft)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, eventStore.AppendCalls)
		})
	}
}

func TestService_Create_AdminChoosesStore(t *testing.T) {
	service, _ := newTestProductService()

	p, err := service.Create(context.Background(), admin, Draft{StoreID: "s7", Name: "Eggs", Price: 90})

	require.NoError(t, err)
	assert.Equal(t, "s7", p.StoreID)
}

// ============================================
// Update / Delete Tests
// ============================================

func TestService_Update(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()
	p, err := service.Create(ctx, seller, Draft{Name: "Milk", Price: 250})
	require.NoError(t, err)

	updated, err := service.Update(ctx, seller, p.ID, Draft{Name: "Toned Milk", Price: 270})
	require.NoError(t, err)
	assert.Equal(t, "Toned Milk", updated.Name)
	assert.Equal(t, 270, updated.Price)
	assert.Equal(t, "s1", updated.StoreID)
	assert.Equal(t, 2, updated.Version)

	_, err = service.Update(ctx, otherSeller, p.ID, Draft{Name: "Stolen", Price: 1})
	assert.ErrorIs(t, err, ErrNotStoreOwner)

	_, err = service.Update(ctx, admin, p.ID, Draft{Name: "Admin edit", Price: 300})
	assert.NoError(t, err)
}

func TestService_Delete(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()
	p, err := service.Create(ctx, seller, Draft{Name: "Milk", Price: 250})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, seller, p.ID))

	err = service.Delete(ctx, seller, p.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = service.Update(ctx, seller, p.ID, Draft{Name: "Milk", Price: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_Update_UnknownProduct(t *testing.T) {
	service, _ := newTestProductService()

	_, err := service.Update(context.Background(), admin, "missing", Draft{Name: "X", Price: 1})

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

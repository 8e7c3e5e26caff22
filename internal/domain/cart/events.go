package cart

import "time"

const (
	EventItemAdded       = "ItemAddedToCart"
	EventItemRemoved     = "ItemRemovedFromCart"
	EventQuantityChanged = "CartQuantityChanged"
	EventCartCleared     = "CartCleared"
)

type ItemAddedToCart struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	Price      int       `json:"price"`
	Quantity   int       `json:"quantity"`
	AddedAt    time.Time `json:"added_at"`
}

type ItemRemovedFromCart struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	RemovedAt  time.Time `json:"removed_at"`
}

type CartQuantityChanged struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	ChangedAt  time.Time `json:"changed_at"`
}

// CartCleared empties the cart. OrderID is set when the cart was turned
// into an order.
type CartCleared struct {
	CartID     string    `json:"cart_id"`
	CustomerID string    `json:"customer_id"`
	OrderID    string    `json:"order_id,omitempty"`
	ClearedAt  time.Time `json:"cleared_at"`
}

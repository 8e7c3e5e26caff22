package readmodel

import (
	"slices"
	"time"
)

// Read store collections
const (
	CollectionProducts = "products"
	CollectionCarts    = "carts"
	CollectionOrders   = "orders"
)

// ProductReadModel is the read model for catalog products
type ProductReadModel struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CartLineReadModel is one product line in a cart
type CartLineReadModel struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
}

// CartReadModel is the read model for shopping carts
type CartReadModel struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Lines      []CartLineReadModel `json:"lines"`
	Subtotal   int                 `json:"subtotal"`
	Version    int                 `json:"version"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// OrderItemReadModel represents an item in an order
type OrderItemReadModel struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID           string               `json:"id"`
	CustomerID   string               `json:"customer_id"`
	StoreIDs     []string             `json:"store_ids"`
	Items        []OrderItemReadModel `json:"items"`
	Subtotal     int                  `json:"subtotal"`
	DeliveryFee  int                  `json:"delivery_fee"`
	Tax          int                  `json:"tax"`
	Total        int                  `json:"total"`
	Status       string               `json:"status"`
	Instructions string               `json:"instructions,omitempty"`
	SellerNote   string               `json:"seller_note,omitempty"`
	Date         string               `json:"date"`
	Version      int                  `json:"version"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// HasStore reports whether any item of the order comes from storeID.
func (o *OrderReadModel) HasStore(storeID string) bool {
	return slices.Contains(o.StoreIDs, storeID)
}

// Clone returns a deep copy so callers can hand the model to other
// goroutines without sharing slices.
func (o *OrderReadModel) Clone() *OrderReadModel {
	c := *o
	c.StoreIDs = slices.Clone(o.StoreIDs)
	c.Items = slices.Clone(o.Items)
	return &c
}

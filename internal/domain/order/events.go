package order

import "time"

const (
	EventOrderPlaced         = "OrderPlaced"
	EventOrderCancelled      = "OrderCancelled"
	EventOrderOutForDelivery = "OrderOutForDelivery"
	EventOrderDelivered      = "OrderDelivered"
)

type OrderPlaced struct {
	OrderID      string      `json:"order_id"`
	CustomerID   string      `json:"customer_id"`
	CartID       string      `json:"cart_id"`
	Items        []OrderItem `json:"items"`
	Subtotal     int         `json:"subtotal"`
	DeliveryFee  int         `json:"delivery_fee"`
	Tax          int         `json:"tax"`
	Total        int         `json:"total"`
	Instructions string      `json:"instructions,omitempty"`
	Date         string      `json:"date"`
	PlacedAt     time.Time   `json:"placed_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	CancelledBy string    `json:"cancelled_by"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type OrderOutForDelivery struct {
	OrderID      string    `json:"order_id"`
	CustomerID   string    `json:"customer_id"`
	StoreID      string    `json:"store_id"`
	ProcessedBy  string    `json:"processed_by"`
	SellerNote   string    `json:"seller_note,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

type OrderDelivered struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	DeliveredBy string    `json:"delivered_by"`
	DeliveredAt time.Time `json:"delivered_at"`
}

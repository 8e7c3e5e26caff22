package command

// Product Commands
type CreateProduct struct {
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	ImageURL    string `json:"image_url"`
}

type UpdateProduct struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	ImageURL    string `json:"image_url"`
}

type DeleteProduct struct {
	ProductID string `json:"product_id"`
}

// Cart Commands
type AddToCart struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

type ChangeCartQuantity struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

type RemoveFromCart struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
}

type ClearCart struct {
	CustomerID string `json:"customer_id"`
}

// Order Commands
type Checkout struct {
	CustomerID   string `json:"customer_id"`
	Instructions string `json:"instructions"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type ProcessOrder struct {
	OrderID string `json:"order_id"`
	Note    string `json:"note"`
}

type DeliverOrder struct {
	OrderID string `json:"order_id"`
}

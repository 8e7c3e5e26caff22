package order

// Pricing adds a flat delivery fee and a percentage tax to the item
// subtotal. Amounts are integer currency units.
type Pricing struct {
	DeliveryFee int
	TaxPercent  int
}

// DefaultPricing charges 79 for delivery and no tax.
var DefaultPricing = Pricing{DeliveryFee: 79}

// Breakdown is the priced result of a subtotal.
type Breakdown struct {
	Subtotal    int `json:"subtotal"`
	DeliveryFee int `json:"delivery_fee"`
	Tax         int `json:"tax"`
	Total       int `json:"total"`
}

// Quote prices subtotal. Tax rounds half up.
func (p Pricing) Quote(subtotal int) Breakdown {
	tax := (subtotal*p.TaxPercent + 50) / 100
	return Breakdown{
		Subtotal:    subtotal,
		DeliveryFee: p.DeliveryFee,
		Tax:         tax,
		Total:       subtotal + p.DeliveryFee + tax,
	}
}

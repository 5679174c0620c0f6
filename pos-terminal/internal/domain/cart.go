package domain

import "time"

// CartLine is one completed scan-and-add action: a single unit of Product.
type CartLine struct {
	Product Product
	AddedAt time.Time
}

// GroupedLine is the display projection of all lines sharing a product ID.
type GroupedLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	Subtotal int64   `json:"subtotal"`
}

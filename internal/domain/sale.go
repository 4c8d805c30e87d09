// Package domain defines the core interfaces and types for Magpie.
package domain

import (
	"time"
)

// PaymentCash is the only payment method with dedicated detection
// behavior; every other value is treated as non-cash.
const PaymentCash = "cash"

// LineItem is one entry in a sale's item list.
type LineItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Price is the unit price actually charged.
	Price float64 `json:"price"`

	// OriginalPrice is the catalog price before any discount, resolved
	// by the checkout processor before analysis. Nil when the line could
	// not be matched against the catalog.
	OriginalPrice *float64 `json:"originalPrice,omitempty"`

	Quantity int `json:"quantity"`
}

// TransactionContext is the snapshot of one completed sale handed to the
// fraud engine. It is immutable for the duration of a single evaluation.
type TransactionContext struct {
	Items         []LineItem `json:"items"`
	TotalAmount   float64    `json:"totalAmount"`
	PaymentMethod string     `json:"paymentMethod"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	CashierID     string     `json:"cashierId,omitempty"`

	// Timestamp is the moment the sale was recorded, in local wall-clock
	// time. Hour-of-day granularity matters for the off-hours check.
	Timestamp time.Time `json:"timestamp"`
}

// ItemCount returns the summed quantity across all lines.
func (c *TransactionContext) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Sale is a persisted checkout transaction.
type Sale struct {
	ID            string     `json:"id"`
	RetailerID    string     `json:"retailerId"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	CashierID     string     `json:"cashierId,omitempty"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"paymentMethod"`
	Timestamp     time.Time  `json:"timestamp"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Product is a catalog entry. Its Price is the list price used as the
// original price when checking for excessive discounting.
type Product struct {
	ID         string    `json:"id"`
	RetailerID string    `json:"retailerId"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SaleRequest is the API payload for recording a sale.
type SaleRequest struct {
	Items         []SaleRequestItem `json:"items"`
	PaymentMethod string            `json:"paymentMethod"`
	CustomerPhone string            `json:"customerPhone,omitempty"`
	CashierID     string            `json:"cashierId,omitempty"`
}

// SaleRequestItem is one cart line as submitted by the caller. The charged
// price is trusted as given; the catalog price is looked up server-side.
type SaleRequestItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Total sums price*quantity across all request lines.
func (r *SaleRequest) Total() float64 {
	var total float64
	for _, item := range r.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

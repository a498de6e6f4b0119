package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is a user's pre-checkout holding area. Every user has at most one.
type Cart struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CartItem holds the unit price captured when the listing was added.
// Service is nil when the listing no longer exists.
type CartItem struct {
	ID           string          `json:"id" db:"id"`
	CartID       string          `json:"cartId" db:"cart_id"`
	ServiceID    string          `json:"serviceId" db:"service_id"`
	Quantity     int             `json:"quantity" db:"quantity"`
	SelectedDate *time.Time      `json:"selectedDate,omitempty" db:"selected_date"`
	UnitPrice    decimal.Decimal `json:"unitPrice" db:"unit_price"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`

	Service *ServiceListing `json:"service" db:"-"`
}

// Resolved reports whether the referenced listing still exists
func (ci *CartItem) Resolved() bool {
	return ci.Service != nil
}

// LineTotal returns unit price times quantity
func (ci *CartItem) LineTotal() decimal.Decimal {
	return ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

// Totals is the computed money summary of a cart or booking
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	Total       decimal.Decimal `json:"total"`
}

// CartView is a cart with its items and totals
type CartView struct {
	Cart
	Items     []CartItem `json:"items"`
	ItemCount int        `json:"itemCount"`
	Totals
}

// AddToCartRequest represents adding a listing to the cart
type AddToCartRequest struct {
	ServiceID    string        `json:"serviceId" binding:"required"`
	Quantity     int           `json:"quantity" binding:"omitempty,min=1,max=100"`
	SelectedDate *FlexibleDate `json:"selectedDate"`
}

// UpdateCartItemRequest represents a quantity change
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1,max=100"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
)

// BookingItemStatus is the per-vendor status of one line
type BookingItemStatus string

const (
	BookingItemStatusPending   BookingItemStatus = "PENDING"
	BookingItemStatusConfirmed BookingItemStatus = "CONFIRMED"
	BookingItemStatusCompleted BookingItemStatus = "COMPLETED"
	BookingItemStatusCancelled BookingItemStatus = "CANCELLED"
)

// IsValid reports whether s is a known item status
func (s BookingItemStatus) IsValid() bool {
	switch s {
	case BookingItemStatusPending, BookingItemStatusConfirmed, BookingItemStatusCompleted, BookingItemStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks money movement for a booking
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Booking is created atomically from a cart at checkout
type Booking struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"userId" db:"user_id"`
	EventType     string          `json:"eventType" db:"event_type"`
	EventDate     *time.Time      `json:"eventDate,omitempty" db:"event_date"`
	EventLocation *string         `json:"eventLocation,omitempty" db:"event_location"`
	GuestCount    *int            `json:"guestCount,omitempty" db:"guest_count"`
	Notes         *string         `json:"notes,omitempty" db:"notes"`
	ContactName   string          `json:"contactName" db:"contact_name"`
	ContactEmail  string          `json:"contactEmail" db:"contact_email"`
	ContactPhone  *string         `json:"contactPhone,omitempty" db:"contact_phone"`
	Subtotal      decimal.Decimal `json:"subtotal" db:"subtotal"`
	PlatformFee   decimal.Decimal `json:"platformFee" db:"platform_fee"`
	Total         decimal.Decimal `json:"total" db:"total"`
	Status        BookingStatus   `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`

	Items       []BookingItem `json:"items,omitempty" db:"-"`
	Transaction *Transaction  `json:"transaction,omitempty" db:"-"`
}

// BookingItem snapshots a listing at booking time.
// ServiceID is nil once the listing has been deleted.
type BookingItem struct {
	ID           string            `json:"id" db:"id"`
	BookingID    string            `json:"bookingId" db:"booking_id"`
	ServiceID    *string           `json:"serviceId,omitempty" db:"service_id"`
	ServiceName  string            `json:"serviceName" db:"service_name"`
	VendorID     string            `json:"vendorId" db:"vendor_id"`
	VendorName   string            `json:"vendorName" db:"vendor_name"`
	Category     string            `json:"category" db:"category"`
	UnitPrice    decimal.Decimal   `json:"unitPrice" db:"unit_price"`
	Quantity     int               `json:"quantity" db:"quantity"`
	LineTotal    decimal.Decimal   `json:"lineTotal" db:"line_total"`
	SelectedDate *time.Time        `json:"selectedDate,omitempty" db:"selected_date"`
	Status       BookingItemStatus `json:"status" db:"status"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time         `json:"updatedAt" db:"updated_at"`
}

// VendorBookingItem is a booking line with the client's event context, as seen by a vendor
type VendorBookingItem struct {
	BookingItem
	EventType     string     `json:"eventType" db:"event_type"`
	EventDate     *time.Time `json:"eventDate,omitempty" db:"event_date"`
	EventLocation *string    `json:"eventLocation,omitempty" db:"event_location"`
	GuestCount    *int       `json:"guestCount,omitempty" db:"guest_count"`
	ContactName   string     `json:"contactName" db:"contact_name"`
	ContactEmail  string     `json:"contactEmail" db:"contact_email"`
	ContactPhone  *string    `json:"contactPhone,omitempty" db:"contact_phone"`
	BookingStatus string     `json:"bookingStatus" db:"booking_status"`
}

// Transaction mirrors the booking amounts; its lifecycle is independent of the booking
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	BookingID     string          `json:"bookingId" db:"booking_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	PlatformFee   decimal.Decimal `json:"platformFee" db:"platform_fee"`
	VendorPayout  decimal.Decimal `json:"vendorPayout" db:"vendor_payout"`
	PaymentStatus PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// EventDetails is the client-supplied event metadata for a checkout.
// Empty contact fields default to the user's profile.
type EventDetails struct {
	EventType     string        `json:"eventType" binding:"required,min=2,max=100"`
	EventDate     *FlexibleDate `json:"eventDate"`
	EventLocation string        `json:"eventLocation" binding:"max=300"`
	GuestCount    *int          `json:"guestCount" binding:"omitempty,min=1,max=100000"`
	Notes         string        `json:"notes" binding:"max=2000"`
	ContactName   string        `json:"contactName" binding:"max=120"`
	ContactEmail  string        `json:"contactEmail" binding:"omitempty,email"`
	ContactPhone  string        `json:"contactPhone" binding:"max=20"`
}

// CheckoutRequest represents a cart checkout
type CheckoutRequest struct {
	CartID string `json:"cartId" binding:"required"`
	EventDetails
}

// UpdateItemStatusRequest represents a vendor status change on a booking line
type UpdateItemStatusRequest struct {
	Status BookingItemStatus `json:"status" binding:"required,oneof=PENDING CONFIRMED COMPLETED CANCELLED"`
}

// ItemStatusResult reports the item change and the re-derived booking status
type ItemStatusResult struct {
	Item          BookingItem   `json:"item"`
	BookingStatus BookingStatus `json:"bookingStatus"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceListing is a vendor's bookable offering.
// VendorUserID and VendorName are filled from the owning vendor profile on read.
type ServiceListing struct {
	ID          string              `json:"id" db:"id"`
	VendorID    string              `json:"vendorId" db:"vendor_id"`
	Name        string              `json:"name" db:"name"`
	Description string              `json:"description" db:"description"`
	Category    string              `json:"category" db:"category"`
	Price       decimal.Decimal     `json:"price" db:"price"`
	PriceMin    decimal.NullDecimal `json:"priceMin" db:"price_min"`
	PriceMax    decimal.NullDecimal `json:"priceMax" db:"price_max"`
	Location    string              `json:"location" db:"location"`
	MinCapacity *int                `json:"minCapacity,omitempty" db:"min_capacity"`
	MaxCapacity *int                `json:"maxCapacity,omitempty" db:"max_capacity"`
	Images      StringList          `json:"images" db:"images"`
	IsActive    bool                `json:"isActive" db:"is_active"`
	CreatedAt   time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time           `json:"updatedAt" db:"updated_at"`

	VendorUserID string `json:"vendorUserId" db:"vendor_user_id"`
	VendorName   string `json:"vendorName" db:"vendor_name"`
}

// ListingInput is the create/update payload for a listing
type ListingInput struct {
	Name        string              `json:"name" binding:"required,min=2,max=200"`
	Description string              `json:"description" binding:"max=5000"`
	Category    string              `json:"category" binding:"required,min=2,max=60"`
	Price       decimal.Decimal     `json:"price"`
	PriceMin    decimal.NullDecimal `json:"priceMin"`
	PriceMax    decimal.NullDecimal `json:"priceMax"`
	Location    string              `json:"location" binding:"max=200"`
	MinCapacity *int                `json:"minCapacity" binding:"omitempty,min=1"`
	MaxCapacity *int                `json:"maxCapacity" binding:"omitempty,min=1"`
	Images      []string            `json:"images" binding:"omitempty,max=20,dive,url"`
	IsActive    *bool               `json:"isActive"`
}

// ListingFilter narrows a catalog browse
type ListingFilter struct {
	Category string           `form:"category"`
	Location string           `form:"location"`
	Search   string           `form:"search"`
	MinPrice *decimal.Decimal `form:"-"`
	MaxPrice *decimal.Decimal `form:"-"`
	Guests   int              `form:"guests" binding:"omitempty,min=1"`
	SortBy   string           `form:"sortBy" binding:"omitempty,oneof=newest price_asc price_desc name"`
	Limit    int              `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset   int              `form:"offset" binding:"omitempty,min=0"`
}

// CategoryCount is a category with the number of active listings in it
type CategoryCount struct {
	Category string `json:"category" db:"category"`
	Count    int    `json:"count" db:"count"`
}

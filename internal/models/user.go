package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UserRole represents marketplace roles
type UserRole string

const (
	UserRoleClient UserRole = "CLIENT"
	UserRoleVendor UserRole = "VENDOR"
)

// IsValid reports whether r is a known role
func (r UserRole) IsValid() bool {
	return r == UserRoleClient || r == UserRoleVendor
}

// User mirrors an identity-provider account. ID is the provider's user id.
type User struct {
	ID                  string              `json:"id" db:"id"`
	Email               string              `json:"email" db:"email"`
	FirstName           string              `json:"firstName" db:"first_name"`
	LastName            string              `json:"lastName" db:"last_name"`
	Phone               *string             `json:"phone,omitempty" db:"phone"`
	PhoneCountry        *string             `json:"phoneCountry,omitempty" db:"phone_country"`
	Avatar              *string             `json:"avatar,omitempty" db:"avatar"`
	Role                UserRole            `json:"role" db:"role"`
	PreferredLocation   *string             `json:"preferredLocation,omitempty" db:"preferred_location"`
	PreferredCategories StringList          `json:"preferredCategories" db:"preferred_categories"`
	BudgetMin           decimal.NullDecimal `json:"budgetMin" db:"budget_min"`
	BudgetMax           decimal.NullDecimal `json:"budgetMax" db:"budget_max"`
	CreatedAt           time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time           `json:"updatedAt" db:"updated_at"`

	VendorProfile *VendorProfile `json:"vendorProfile,omitempty" db:"-"`
}

// UserSummary is the public projection of a user shown to other parties
type UserSummary struct {
	ID        string  `json:"id" db:"id"`
	FirstName string  `json:"firstName" db:"first_name"`
	LastName  string  `json:"lastName" db:"last_name"`
	Avatar    *string `json:"avatar,omitempty" db:"avatar"`
}

// VendorProfile is the business side of a VENDOR user
type VendorProfile struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	BusinessName string    `json:"businessName" db:"business_name"`
	Description  *string   `json:"description,omitempty" db:"description"`
	Location     *string   `json:"location,omitempty" db:"location"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// UpdateRoleRequest represents a role switch
type UpdateRoleRequest struct {
	Role         UserRole `json:"role" binding:"required,oneof=CLIENT VENDOR"`
	BusinessName string   `json:"businessName" binding:"max=120"`
}

// UpdatePreferencesRequest represents client browsing preferences
type UpdatePreferencesRequest struct {
	PreferredLocation   *string             `json:"preferredLocation" binding:"omitempty,max=120"`
	PreferredCategories []string            `json:"preferredCategories" binding:"omitempty,max=20,dive,min=1,max=60"`
	BudgetMin           decimal.NullDecimal `json:"budgetMin"`
	BudgetMax           decimal.NullDecimal `json:"budgetMax"`
}

// VendorProfileUpdate represents vendor profile update data
type VendorProfileUpdate struct {
	BusinessName *string `json:"businessName,omitempty" binding:"omitempty,min=2,max=120"`
	Description  *string `json:"description,omitempty" binding:"omitempty,max=2000"`
	Location     *string `json:"location,omitempty" binding:"omitempty,max=200"`
	Phone        *string `json:"phone,omitempty" binding:"omitempty,max=20"`
}

// GetFullName returns the user's full name
func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsVendor checks if the user currently acts as a vendor
func (u *User) IsVendor() bool {
	return u.Role == UserRoleVendor
}

// Summary returns the public projection of the user
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Avatar: u.Avatar}
}

// FlexibleDate accepts both date-only and datetime JSON strings
type FlexibleDate struct {
	time.Time
}

// UnmarshalJSON implements custom JSON unmarshaling for flexible date parsing
func (fd *FlexibleDate) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	if str == "" {
		return nil
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, str); err == nil {
			fd.Time = t.UTC()
			return nil
		}
	}

	return fmt.Errorf("unable to parse date: %s", str)
}

// Ptr returns nil for an unset date
func (fd *FlexibleDate) Ptr() *time.Time {
	if fd == nil || fd.IsZero() {
		return nil
	}
	t := fd.Time
	return &t
}

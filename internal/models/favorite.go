package models

import "time"

// Favorite is a saved listing; (UserID, ServiceID) is unique
type Favorite struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	ServiceID string    `json:"serviceId" db:"service_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Service *ServiceListing `json:"service,omitempty" db:"-"`
}

// FavoriteAction is the outcome of a toggle
type FavoriteAction string

const (
	FavoriteAdded   FavoriteAction = "added"
	FavoriteRemoved FavoriteAction = "removed"
)

// ToggleFavoriteRequest represents a favorite toggle
type ToggleFavoriteRequest struct {
	ServiceID string `json:"serviceId" binding:"required"`
}

// ToggleFavoriteResult reports what a toggle did
type ToggleFavoriteResult struct {
	Action     FavoriteAction `json:"action"`
	IsFavorite bool           `json:"isFavorite"`
}

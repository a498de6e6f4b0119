package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
)

// FavoriteHandlers serves the saved-listings endpoints
type FavoriteHandlers struct {
	favorites *services.FavoriteService
	log       *zap.Logger
}

// NewFavoriteHandlers creates a new favorite handlers instance
func NewFavoriteHandlers(favorites *services.FavoriteService, log *zap.Logger) *FavoriteHandlers {
	return &FavoriteHandlers{favorites: favorites, log: log}
}

// ToggleFavorite adds or removes a listing from the caller's favorites
func (h *FavoriteHandlers) ToggleFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.ToggleFavoriteRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.favorites.ToggleFavorite(c.Request.Context(), userID, req.ServiceID)
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *FavoriteHandlers) GetFavorites(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	favorites, err := h.favorites.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Favorites not found")
		return
	}
	respond(c, http.StatusOK, favorites)
}

func (h *FavoriteHandlers) GetFavoritesCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	count, err := h.favorites.CountFavorites(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Favorites not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// CheckFavorite reports whether a listing is in the caller's favorites
func (h *FavoriteHandlers) CheckFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	isFavorite, err := h.favorites.IsFavorite(c.Request.Context(), userID, c.Param("serviceId"))
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"isFavorite": isFavorite})
}

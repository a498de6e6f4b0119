package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
)

// CartHandlers handles cart-related HTTP requests
type CartHandlers struct {
	cart *services.CartService
	log  *zap.Logger
}

// NewCartHandlers creates a new cart handlers instance
func NewCartHandlers(cart *services.CartService, log *zap.Logger) *CartHandlers {
	return &CartHandlers{cart: cart, log: log}
}

// GetCart returns the caller's cart with items and totals
func (h *CartHandlers) GetCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	cart, err := h.cart.GetCart(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Cart not found")
		return
	}
	respond(c, http.StatusOK, cart)
}

// AddToCart adds a listing to the caller's cart, merging quantities
func (h *CartHandlers) AddToCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.AddToCartRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.cart.AddToCart(c.Request.Context(), userID, req)
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	respondMessage(c, http.StatusCreated, "Item added to cart", item)
}

func (h *CartHandlers) UpdateCartItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.cart.UpdateCartItemQuantity(c.Request.Context(), userID, c.Param("id"), req.Quantity); err != nil {
		handleError(c, h.log, err, "Cart item not found")
		return
	}
	respondMessage(c, http.StatusOK, "Cart item updated", nil)
}

func (h *CartHandlers) RemoveCartItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.cart.RemoveCartItem(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleError(c, h.log, err, "Cart item not found")
		return
	}
	respondMessage(c, http.StatusOK, "Item removed from cart", nil)
}

// GetCartCount returns the total quantity in the caller's cart
func (h *CartHandlers) GetCartCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	count, err := h.cart.CountCartItems(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Cart not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

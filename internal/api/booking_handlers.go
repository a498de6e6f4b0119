package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
)

// BookingHandlers serves checkout, booking reads and vendor status updates
type BookingHandlers struct {
	bookings *services.BookingService
	log      *zap.Logger
}

// NewBookingHandlers creates a new booking handlers instance
func NewBookingHandlers(bookings *services.BookingService, log *zap.Logger) *BookingHandlers {
	return &BookingHandlers{bookings: bookings, log: log}
}

// Checkout converts the caller's cart into a booking
func (h *BookingHandlers) Checkout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	booking, err := h.bookings.Checkout(c.Request.Context(), userID, req)
	if err != nil {
		handleError(c, h.log, err, "Cart not found")
		return
	}
	respondMessage(c, http.StatusCreated, "Booking created", booking)
}

func (h *BookingHandlers) GetBookings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	bookings, err := h.bookings.ListBookings(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Booking not found")
		return
	}
	respond(c, http.StatusOK, bookings)
}

// GetBooking returns a booking visible to the caller as client or vendor
func (h *BookingHandlers) GetBooking(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	booking, err := h.bookings.GetBooking(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleError(c, h.log, err, "Booking not found")
		return
	}
	respond(c, http.StatusOK, booking)
}

func (h *BookingHandlers) CancelBooking(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	booking, err := h.bookings.CancelBooking(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleError(c, h.log, err, "Booking not found")
		return
	}
	respondMessage(c, http.StatusOK, "Booking cancelled", booking)
}

// UpdateItemStatus lets the owning vendor move a booking line
func (h *BookingHandlers) UpdateItemStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.UpdateItemStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.bookings.UpdateBookingItemStatus(c.Request.Context(), c.Param("id"), req.Status, userID)
	if err != nil {
		handleError(c, h.log, err, "Booking item not found")
		return
	}
	respondMessage(c, http.StatusOK, "Booking item updated", result)
}

// GetVendorBookings lists booking lines for the caller's listings
func (h *BookingHandlers) GetVendorBookings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.bookings.ListVendorBookingItems(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Vendor profile not found")
		return
	}
	respond(c, http.StatusOK, items)
}

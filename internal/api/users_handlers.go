package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
)

// UserHandlers serves the current user's profile, role and vendor profile
type UserHandlers struct {
	identity *services.IdentityService
	log      *zap.Logger
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(identity *services.IdentityService, log *zap.Logger) *UserHandlers {
	return &UserHandlers{identity: identity, log: log}
}

// GetCurrentUser returns the authenticated user, creating the local record on first sight
func (h *UserHandlers) GetCurrentUser(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	user, err := h.identity.CurrentUser(c.Request.Context(), claims)
	if err != nil {
		handleError(c, h.log, err, "User not found")
		return
	}
	respond(c, http.StatusOK, user)
}

// GetRole returns the user's current role
func (h *UserHandlers) GetRole(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	role, err := h.identity.GetRole(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "User not found")
		return
	}
	respond(c, http.StatusOK, gin.H{"role": role})
}

// UpdateRole switches between CLIENT and VENDOR
func (h *UserHandlers) UpdateRole(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.identity.UpdateRole(c.Request.Context(), userID, req)
	if err != nil {
		handleError(c, h.log, err, "User not found")
		return
	}
	respondMessage(c, http.StatusOK, "Role updated", user)
}

// UpdatePreferences stores browsing preferences
func (h *UserHandlers) UpdatePreferences(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.UpdatePreferencesRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.identity.UpdatePreferences(c.Request.Context(), userID, req)
	if err != nil {
		handleError(c, h.log, err, "User not found")
		return
	}
	respondMessage(c, http.StatusOK, "Preferences updated", user)
}

// GetVendorProfile returns the caller's vendor profile
func (h *UserHandlers) GetVendorProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	profile, err := h.identity.GetVendorProfile(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Vendor profile not found")
		return
	}
	respond(c, http.StatusOK, profile)
}

// UpdateVendorProfile edits the caller's vendor profile
func (h *UserHandlers) UpdateVendorProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.VendorProfileUpdate
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.identity.UpdateVendorProfile(c.Request.Context(), userID, req)
	if err != nil {
		handleError(c, h.log, err, "Vendor profile not found")
		return
	}
	respondMessage(c, http.StatusOK, "Vendor profile updated", profile)
}

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/middleware"
	"eventhub-backend/internal/services"
	"eventhub-backend/internal/utils"
)

const genericErrorMessage = "Something went wrong, please try again"

// respond writes the standard success envelope
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondMessage(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

// failValidation answers 400 with field-level details
func failValidation(c *gin.Context, details utils.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Validation failed",
		"details": details,
	})
}

// handleError maps service errors to HTTP responses. Unexpected errors are
// logged and answered with a generic message; storage text never leaks.
func handleError(c *gin.Context, log *zap.Logger, err error, notFound string) {
	var verrs utils.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		failValidation(c, verrs)
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, "User not authenticated")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, "You do not have access to this resource")
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, notFound)
	case errors.Is(err, services.ErrEmptyCart):
		fail(c, http.StatusUnprocessableEntity, "Your cart has no bookable services")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, "This resource was changed by another request, please refresh and try again")
	case errors.Is(err, services.ErrMediaDisabled):
		fail(c, http.StatusServiceUnavailable, "Media uploads are not available")
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("user_id", c.GetString(middleware.ContextUserID)),
			zap.Error(err))
		fail(c, http.StatusInternalServerError, genericErrorMessage)
	}
}

// bindJSON binds the body and answers 400 with details on failure
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		failValidation(c, utils.FromBindingError(err))
		return false
	}
	return true
}

// currentUserID returns the authenticated user or answers 401
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		fail(c, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	return userID, true
}

func currentClaims(c *gin.Context) (*services.SessionClaims, bool) {
	value, ok := c.Get(middleware.ContextClaims)
	if !ok {
		fail(c, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}
	claims, ok := value.(*services.SessionClaims)
	if !ok {
		fail(c, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}
	return claims, true
}

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/services"
)

const maxWebhookBody = 1 << 20

// WebhookHandlers receives identity-provider deliveries
type WebhookHandlers struct {
	verifier *services.WebhookVerifier
	identity *services.IdentityService
	log      *zap.Logger
}

// NewWebhookHandlers creates webhook handlers. A nil verifier rejects every delivery.
func NewWebhookHandlers(verifier *services.WebhookVerifier, identity *services.IdentityService, log *zap.Logger) *WebhookHandlers {
	return &WebhookHandlers{verifier: verifier, identity: identity, log: log.Named("webhooks")}
}

// HandleIdentityWebhook verifies the signature over the raw body, then applies the event
func (h *WebhookHandlers) HandleIdentityWebhook(c *gin.Context) {
	if h.verifier == nil {
		fail(c, http.StatusServiceUnavailable, "Webhooks are not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.verifier.Verify(c.Request.Header, body); err != nil {
		h.log.Warn("webhook signature rejected", zap.Error(err))
		fail(c, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	var event services.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		fail(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if err := h.identity.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		handleError(c, h.log, err, "User not found")
		return
	}

	respondMessage(c, http.StatusOK, "Webhook processed", nil)
}

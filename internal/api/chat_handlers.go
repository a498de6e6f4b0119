package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
)

// ChatHandlers handles conversation and message endpoints
type ChatHandlers struct {
	chat *services.ChatService
	log  *zap.Logger
}

// NewChatHandlers creates a new chat handlers instance
func NewChatHandlers(chat *services.ChatService, log *zap.Logger) *ChatHandlers {
	return &ChatHandlers{chat: chat, log: log}
}

// GetConversations lists the caller's conversations, most recent first
func (h *ChatHandlers) GetConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversations, err := h.chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Conversation not found")
		return
	}
	respond(c, http.StatusOK, conversations)
}

// CreateConversation opens, or returns the existing, conversation with a recipient
func (h *ChatHandlers) CreateConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	conversation, created, err := h.chat.GetOrCreateConversation(c.Request.Context(), userID, req.RecipientID, req.ServiceID)
	if err != nil {
		handleError(c, h.log, err, "Recipient not found")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond(c, status, conversation)
}

// GetMessages returns the conversation history and marks incoming messages read
func (h *ChatHandlers) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	messages, err := h.chat.ListMessages(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, h.log, err, "Conversation not found")
		return
	}
	respond(c, http.StatusOK, messages)
}

func (h *ChatHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	message, err := h.chat.SendMessage(c.Request.Context(), c.Param("id"), userID, req.Content)
	if err != nil {
		handleError(c, h.log, err, "Conversation not found")
		return
	}
	respond(c, http.StatusCreated, message)
}

// GetUnreadCount returns the number of unread messages addressed to the caller
func (h *ChatHandlers) GetUnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	count, err := h.chat.CountUnread(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Conversation not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

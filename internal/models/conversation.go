package models

import "time"

// Conversation is a channel between exactly two users.
// The pair is unordered: (A,B) and (B,A) are the same conversation.
type Conversation struct {
	ID            string     `json:"id" db:"id"`
	User1ID       string     `json:"user1Id" db:"user1_id"`
	User2ID       string     `json:"user2Id" db:"user2_id"`
	ServiceID     *string    `json:"serviceId,omitempty" db:"service_id"`
	LastMessage   *string    `json:"lastMessage,omitempty" db:"last_message"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" db:"last_message_at"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
}

// HasParticipant reports whether userID is one of the two parties
func (c *Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the party that is not userID
func (c *Conversation) OtherParticipant(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary is a list-view row
type ConversationSummary struct {
	Conversation
	OtherUser   UserSummary `json:"otherUser"`
	UnreadCount int         `json:"unreadCount"`
}

// Message belongs to one conversation and is ordered by CreatedAt
type Message struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"conversationId" db:"conversation_id"`
	SenderID       string     `json:"senderId" db:"sender_id"`
	Content        string     `json:"content" db:"content"`
	IsRead         bool       `json:"isRead" db:"is_read"`
	ReadAt         *time.Time `json:"readAt,omitempty" db:"read_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

// CreateConversationRequest represents opening a conversation
type CreateConversationRequest struct {
	RecipientID string  `json:"recipientId" binding:"required"`
	ServiceID   *string `json:"serviceId"`
}

// SendMessageRequest represents a new message
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

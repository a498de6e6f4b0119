package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/utils"
)

const (
	maxMessageLength     = 4000
	messagePreviewLength = 100
)

// Realtime event types pushed to connected clients
const (
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
)

// Notifier pushes realtime events to a user's open connections
type Notifier interface {
	SendToUser(userID string, message WebSocketMessage)
}

// ChatService handles conversations and messages between two users
type ChatService struct {
	db       *sqlx.DB
	log      *zap.Logger
	metrics  *metrics.Manager
	notifier Notifier
}

// NewChatService creates a new chat service. notifier may be nil.
func NewChatService(db *sqlx.DB, log *zap.Logger, m *metrics.Manager, notifier Notifier) *ChatService {
	return &ChatService{db: db, log: log.Named("chat"), metrics: m, notifier: notifier}
}

// GetOrCreateConversation returns the conversation between the two users,
// whichever of them opened it, creating it when none exists.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, userID, recipientID string, serviceID *string) (*models.Conversation, bool, error) {
	if recipientID == userID {
		return nil, false, utils.NewValidationError("recipientId", "cannot start a conversation with yourself")
	}

	existing, err := s.findConversation(ctx, userID, recipientID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	var recipientExists bool
	if err := s.db.GetContext(ctx, &recipientExists, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", recipientID); err != nil {
		return nil, false, fmt.Errorf("failed to check recipient: %w", err)
	}
	if !recipientExists {
		return nil, false, ErrNotFound
	}
	if serviceID != nil && *serviceID != "" {
		var listingExists bool
		if err := s.db.GetContext(ctx, &listingExists, "SELECT EXISTS(SELECT 1 FROM service_listings WHERE id = ?)", *serviceID); err != nil {
			return nil, false, fmt.Errorf("failed to check listing: %w", err)
		}
		if !listingExists {
			return nil, false, ErrNotFound
		}
	} else {
		serviceID = nil
	}

	now := utils.NowUTC()
	conv := models.Conversation{
		ID:        newID(),
		User1ID:   userID,
		User2ID:   recipientID,
		ServiceID: serviceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO conversations (id, user1_id, user2_id, service_id, created_at, updated_at)
		VALUES (:id, :user1_id, :user2_id, :service_id, :created_at, :updated_at)
	`, &conv)
	if isUniqueViolation(err) {
		// the other party opened it concurrently
		existing, err := s.findConversation(ctx, userID, recipientID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.log.Info("conversation created", zap.String("conversation_id", conv.ID))
	return &conv, true, nil
}

// findConversation looks up the unordered pair in both orderings
func (s *ChatService) findConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations
		WHERE (user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)
		LIMIT 1
	`, userA, userB, userB, userA)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation returns a conversation the user participates in
func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	return participantConversation(ctx, s.db, conversationID, userID)
}

func participantConversation(ctx context.Context, q sqlx.QueryerContext, conversationID, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, q, &conv, "SELECT * FROM conversations WHERE id = ?", conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return &conv, nil
}

// SendMessage appends a message and refreshes the conversation preview.
// Creation times are strictly increasing within a conversation.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewValidationError("content", "is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, utils.NewValidationError("content", fmt.Sprintf("must have at most %d characters", maxMessageLength))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	conv, err := participantConversation(ctx, tx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	now := utils.NowUTC()
	var last time.Time
	err = tx.GetContext(ctx, &last, `
		SELECT created_at FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, conversationID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last message time: %w", err)
	}
	if !now.After(last) {
		now = last.Add(time.Microsecond)
	}

	msg := models.Message{
		ID:             newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at)
		VALUES (:id, :conversation_id, :sender_id, :content, :is_read, :created_at)
	`, &msg)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message = ?, last_message_at = ?, updated_at = ? WHERE id = ?
	`, utils.TruncateRunes(content, messagePreviewLength), now, now, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	s.metrics.ObserveMessageSent()
	s.notify(conv, WebSocketMessage{Type: EventNewMessage, RoomID: conversationID, UserID: senderID, Data: msg})
	return &msg, nil
}

// ListMessages returns every message in ascending order and marks the ones
// sent by the other participant as read.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, requesterID string) ([]models.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	conv, err := participantConversation(ctx, tx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	now := utils.NowUTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0
	`, now, conversationID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	marked, _ := res.RowsAffected()

	messages := []models.Message{}
	if err := tx.SelectContext(ctx, &messages, `
		SELECT * FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message read: %w", err)
	}

	if marked > 0 && s.notifier != nil {
		s.notifier.SendToUser(conv.OtherParticipant(requesterID), WebSocketMessage{
			Type:   EventMessagesRead,
			RoomID: conversationID,
			UserID: requesterID,
			Data:   map[string]interface{}{"count": marked, "readAt": now},
		})
	}
	return messages, nil
}

// ListConversations returns the user's conversations, most recently active first
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	if err := s.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	if len(convs) == 0 {
		return summaries, nil
	}

	otherIDs := make([]string, len(convs))
	for i := range convs {
		otherIDs[i] = convs[i].OtherParticipant(userID)
	}
	query, args, err := sqlx.In("SELECT id, first_name, last_name, avatar FROM users WHERE id IN (?)", utils.RemoveDuplicates(otherIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}
	var users []models.UserSummary
	if err := s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	byID := make(map[string]models.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	var unread []struct {
		ConversationID string `db:"conversation_id"`
		Count          int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &unread, `
		SELECT m.conversation_id, COUNT(*) AS count FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user1_id = ? OR c.user2_id = ?) AND m.sender_id <> ? AND m.is_read = 0
		GROUP BY m.conversation_id
	`, userID, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	unreadByConv := make(map[string]int, len(unread))
	for _, u := range unread {
		unreadByConv[u.ConversationID] = u.Count
	}

	for i, conv := range convs {
		other := byID[otherIDs[i]]
		if other.ID == "" {
			other.ID = otherIDs[i]
		}
		summaries = append(summaries, models.ConversationSummary{
			Conversation: conv,
			OtherUser:    other,
			UnreadCount:  unreadByConv[conv.ID],
		})
	}
	return summaries, nil
}

// CountUnread returns how many messages addressed to the user are unread
func (s *ChatService) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user1_id = ? OR c.user2_id = ?) AND m.sender_id <> ? AND m.is_read = 0
	`, userID, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (s *ChatService) notify(conv *models.Conversation, message WebSocketMessage) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendToUser(conv.User1ID, message)
	s.notifier.SendToUser(conv.User2ID, message)
}

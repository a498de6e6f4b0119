package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	clientSendSize = 256
	chatOpTimeout  = 10 * time.Second
)

// WebSocketMessage is the envelope for every frame in either direction
type WebSocketMessage struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"roomId,omitempty"`
	UserID  string      `json:"userId,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ChatBackend is what the socket layer needs from the chat service
type ChatBackend interface {
	GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (*models.Message, error)
}

// Client is one authenticated socket connection. A user may hold several.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan WebSocketMessage
	hub    *Hub
	svc    *WebSocketService
}

// Hub tracks connected clients by user and by conversation room
type Hub struct {
	clients    map[*Client]bool
	users      map[string]map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan WebSocketMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *zap.Logger

	mutex sync.RWMutex
}

func newHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan WebSocketMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// WebSocketService upgrades authenticated requests and fans realtime events
// out to the connections of each user.
type WebSocketService struct {
	hub      *Hub
	upgrader websocket.Upgrader
	auth     *AuthService
	log      *zap.Logger

	chatMu sync.RWMutex
	chat   ChatBackend

	closeOnce sync.Once
}

// NewWebSocketService creates the service and starts its hub
func NewWebSocketService(auth *AuthService, log *zap.Logger, allowedOrigins []string, allowAllOrigins bool) *WebSocketService {
	log = log.Named("websocket")
	s := &WebSocketService{
		hub:  newHub(log),
		auth: auth,
		log:  log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAllOrigins || origin == "" {
				return true
			}
			return utils.Contains(allowedOrigins, origin)
		},
	}

	go s.hub.run()
	return s
}

// AttachChat wires the chat backend used for room joins and socket sends.
// The chat service itself notifies through this hub, so it is attached after
// both exist.
func (s *WebSocketService) AttachChat(chat ChatBackend) {
	s.chatMu.Lock()
	s.chat = chat
	s.chatMu.Unlock()
}

func (s *WebSocketService) chatBackend() ChatBackend {
	s.chatMu.RLock()
	defer s.chatMu.RUnlock()
	return s.chat
}

// Close stops the hub loop
func (s *WebSocketService) Close() {
	s.closeOnce.Do(func() { close(s.hub.done) })
}

// HandleWebSocket authenticates the caller from the auth middleware, the
// token query parameter or a bearer header, then upgrades the connection.
func (s *WebSocketService) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized - no token"})
			return
		}
		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.log.Debug("websocket token rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized - invalid token"})
			return
		}
		userID = claims.UserID()
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     newID(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan WebSocketMessage, clientSendSize),
		hub:    s.hub,
		svc:    s,
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// SendToUser delivers a message to every open connection of the user.
// Slow connections drop the message instead of blocking the caller.
func (s *WebSocketService) SendToUser(userID string, message WebSocketMessage) {
	s.hub.mutex.RLock()
	defer s.hub.mutex.RUnlock()

	for client := range s.hub.users[userID] {
		s.hub.deliver(client, message)
	}
}

// BroadcastToRoom sends a message to every client joined to the room
func (s *WebSocketService) BroadcastToRoom(roomID string, message WebSocketMessage) {
	message.RoomID = roomID
	select {
	case s.hub.broadcast <- message:
	case <-s.hub.done:
	}
}

// ConnectionCount returns the number of open connections for a user
func (s *WebSocketService) ConnectionCount(userID string) int {
	s.hub.mutex.RLock()
	defer s.hub.mutex.RUnlock()
	return len(s.hub.users[userID])
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			if h.users[client.UserID] == nil {
				h.users[client.UserID] = make(map[*Client]bool)
			}
			h.users[client.UserID][client] = true
			h.deliver(client, WebSocketMessage{Type: "connected", UserID: client.UserID, Message: "Connected to chat server"})
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if conns := h.users[client.UserID]; conns != nil {
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.users, client.UserID)
					}
				}
				for roomID, members := range h.rooms {
					delete(members, client)
					if len(members) == 0 {
						delete(h.rooms, roomID)
					}
				}
				close(client.Send)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.rooms[message.RoomID] {
				h.deliver(client, message)
			}
			h.mutex.RUnlock()
		}
	}
}

// deliver must be called with the hub mutex held; Send is only closed under
// the write lock, so the send below never hits a closed channel.
func (h *Hub) deliver(client *Client, message WebSocketMessage) {
	select {
	case client.Send <- message:
	default:
		h.log.Warn("dropping message for slow client",
			zap.String("client_id", client.ID),
			zap.String("type", message.Type))
	}
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

func (h *Hub) leaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var message WebSocketMessage
		if err := c.Conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.svc.log.Warn("websocket read failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}

		switch message.Type {
		case "join_room":
			c.handleJoin(message.RoomID)
		case "leave_room":
			if message.RoomID != "" {
				c.hub.leaveRoom(c, message.RoomID)
			}
		case "send_message":
			c.handleSendMessage(message)
		case "typing":
			if message.RoomID != "" && c.inRoom(message.RoomID) {
				c.svc.BroadcastToRoom(message.RoomID, WebSocketMessage{Type: "typing", UserID: c.UserID})
			}
		case "ping":
			c.reply(WebSocketMessage{Type: "pong"})
		default:
			c.reply(WebSocketMessage{Type: "error", Message: "unknown message type"})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.svc.log.Debug("websocket write failed", zap.String("user_id", c.UserID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a frame for this connection only
func (c *Client) reply(message WebSocketMessage) {
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if c.hub.clients[c] {
		c.hub.deliver(c, message)
	}
}

func (c *Client) inRoom(roomID string) bool {
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	return c.hub.rooms[roomID][c]
}

func (c *Client) handleJoin(roomID string) {
	chat := c.svc.chatBackend()
	if roomID == "" || chat == nil {
		c.reply(WebSocketMessage{Type: "error", Message: "cannot join room"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatOpTimeout)
	defer cancel()
	if _, err := chat.GetConversation(ctx, roomID, c.UserID); err != nil {
		c.reply(WebSocketMessage{Type: "error", RoomID: roomID, Message: socketErrorMessage(err)})
		return
	}
	c.hub.joinRoom(c, roomID)
	c.reply(WebSocketMessage{Type: "joined", RoomID: roomID})
}

// handleSendMessage persists a message sent over the socket. The sender is
// always the authenticated connection owner; delivery happens through the
// chat service's notifier.
func (c *Client) handleSendMessage(message WebSocketMessage) {
	chat := c.svc.chatBackend()
	if chat == nil {
		c.reply(WebSocketMessage{Type: "error", Message: "chat unavailable"})
		return
	}

	data, _ := message.Data.(map[string]interface{})
	roomID := message.RoomID
	if roomID == "" {
		roomID, _ = data["roomId"].(string)
	}
	content, _ := data["content"].(string)
	if roomID == "" {
		c.reply(WebSocketMessage{Type: "error", Message: "roomId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatOpTimeout)
	defer cancel()
	if _, err := chat.SendMessage(ctx, roomID, c.UserID, content); err != nil {
		c.reply(WebSocketMessage{Type: "error", RoomID: roomID, Message: socketErrorMessage(err)})
	}
}

func socketErrorMessage(err error) string {
	var verrs utils.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound):
		return "conversation not found"
	case errors.Is(err, ErrForbidden):
		return "not a participant"
	case errors.As(err, &verrs):
		return verrs.Error()
	}
	return "internal error"
}

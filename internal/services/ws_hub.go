package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bereal-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// ErrConnectionReplaced is returned when a message targets a connection the
// user has since replaced or closed.
var ErrConnectionReplaced = errors.New("websocket connection was replaced")

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	PostID    string      `json:"post_id,omitempty"`
	Slot      *int        `json:"slot,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// wsConn serializes writes to one connection
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsConn
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsConn),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
	}

	h.connections[userID] = &wsConn{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes conn for a user if it is still the registered one
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.connections[userID]; exists && current.conn == conn {
		current.conn.Close()
		delete(h.connections, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	return h.send(userID, c, message)
}

// SendToConn sends a message over conn only while it is still the user's
// registered connection. Replies to a session never reach a newer one.
func (h *WSHub) SendToConn(userID string, conn *websocket.Conn, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists || c.conn != conn {
		return ErrConnectionReplaced
	}

	return h.send(userID, c, message)
}

func (h *WSHub) send(userID string, c *wsConn, message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.write(data); err != nil {
		h.Unregister(userID, c.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// Broadcast sends message to every connected user except exceptUserID
func (h *WSHub) Broadcast(message WSMessage, exceptUserID string) int {
	h.mu.RLock()
	userIDs := make([]string, 0, len(h.connections))
	for userID := range h.connections {
		if userID != exceptUserID {
			userIDs = append(userIDs, userID)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, userID := range userIDs {
		if err := h.SendToUser(userID, message); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to broadcast message")
			continue
		}
		sent++
	}
	return sent
}

// PostCreated tells every other connected user that a post was shared
func (h *WSHub) PostCreated(_ context.Context, post *models.Post) error {
	message := WSMessage{
		Type:      "post_created",
		Timestamp: post.CreatedAt.UnixMilli(),
		PostID:    post.ID,
		Data: map[string]interface{}{
			"author_id": post.UserID,
			"username":  post.Username,
		},
	}

	sent := h.Broadcast(message, post.UserID)
	log.Debug().Str("post_id", post.ID).Int("recipients", sent).Msg("Post broadcast")
	return nil
}

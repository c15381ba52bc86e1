package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"bereal-backend/internal/middleware"
	"bereal-backend/internal/render"
	"bereal-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for MVP
	},
}

// WebSocketHandler handles WebSocket connections. Besides live post
// notifications it renders feed images into numbered slots the client
// reuses while scrolling.
type WebSocketHandler struct {
	hub           *services.WSHub
	userService   *services.UserService
	postService   *services.PostService
	images        render.Fetcher
	thumbnailSide int
	maxPixels     int
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	userService *services.UserService,
	postService *services.PostService,
	images render.Fetcher,
	thumbnailSide int,
	maxPixels int,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		userService:   userService,
		postService:   postService,
		images:        images,
		thumbnailSide: thumbnailSide,
		maxPixels:     maxPixels,
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get token from query parameter
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	viewer, err := middleware.Authenticate(r.Context(), token, h.userService)
	if err != nil {
		if middleware.IsUnauthorized(err) {
			respondError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("Failed to load viewer")
		respondError(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	userID := viewer.ID

	// Upgrade connection
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &wsSession{
		userID: userID,
		conn:   conn,
		slots:  render.NewSlotSet(h.images, render.ThumbnailFunc(h.thumbnailSide, h.maxPixels)),
	}
	defer sess.slots.Close()

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	// Handle messages
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendError(sess, msg.Slot, "", "Invalid message format")
			continue
		}

		if err := h.handleMessage(ctx, sess, msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
		}
	}
}

// wsSession is one open connection and the slots it renders into
type wsSession struct {
	userID string
	conn   *websocket.Conn
	slots  *render.SlotSet
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, sess *wsSession, msg services.WSMessage) error {
	switch msg.Type {
	case "bind_slot":
		return h.handleBindSlot(ctx, sess, msg)
	case "reset_slot":
		if msg.Slot == nil {
			return h.sendError(sess, nil, "", "slot is required")
		}
		sess.slots.Reset(*msg.Slot)
		return nil
	default:
		return h.sendError(sess, msg.Slot, msg.PostID, "Unknown message type")
	}
}

// handleBindSlot points a slot at a post and streams its thumbnail back,
// unless the viewer may not see the post yet.
func (h *WebSocketHandler) handleBindSlot(ctx context.Context, sess *wsSession, msg services.WSMessage) error {
	if msg.Slot == nil || msg.PostID == "" {
		return h.sendError(sess, msg.Slot, msg.PostID, "slot and post_id are required")
	}
	index := *msg.Slot

	// Reload so a post shared from another device unblurs the feed
	viewer, err := h.userService.GetViewer(ctx, sess.userID)
	if err != nil {
		sess.slots.Reset(index)
		return h.sendError(sess, msg.Slot, msg.PostID, "Failed to load user")
	}

	key, err := h.postService.ImageKey(ctx, viewer, msg.PostID)
	switch {
	case errors.Is(err, services.ErrPostBlurred):
		sess.slots.Reset(index)
		return h.send(sess, services.WSMessage{
			Type:   "slot_blurred",
			Slot:   &index,
			PostID: msg.PostID,
		})
	case errors.Is(err, services.ErrPostNotFound):
		sess.slots.Reset(index)
		return h.sendError(sess, msg.Slot, msg.PostID, "Post not found")
	case err != nil:
		sess.slots.Reset(index)
		return h.sendError(sess, msg.Slot, msg.PostID, "Failed to load post")
	}

	sess.slots.Slot(index).Bind(ctx, msg.PostID, key, h.deliver(sess, index))
	return nil
}

func (h *WebSocketHandler) deliver(sess *wsSession, index int) render.Deliver {
	return func(postID string, data []byte, err error) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn().Err(err).Str("post_id", postID).Int("slot", index).Msg("Failed to render slot image")
			h.sendError(sess, &index, postID, "Failed to load image")
			return
		}

		message := services.WSMessage{
			Type:   "slot_image",
			Slot:   &index,
			PostID: postID,
			Data:   base64.StdEncoding.EncodeToString(data),
		}
		if err := h.send(sess, message); err != nil {
			log.Debug().Err(err).Str("user_id", sess.userID).Msg("Failed to send slot image")
		}
	}
}

// send writes to the session's own connection
func (h *WebSocketHandler) send(sess *wsSession, message services.WSMessage) error {
	return h.hub.SendToConn(sess.userID, sess.conn, message)
}

// sendError sends an error message to a session
func (h *WebSocketHandler) sendError(sess *wsSession, slot *int, postID, message string) error {
	return h.send(sess, services.WSMessage{
		Type:    "error",
		Slot:    slot,
		PostID:  postID,
		Message: message,
	})
}

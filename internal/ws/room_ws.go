package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"match-service/internal/models"
	"match-service/internal/observability"
	"match-service/internal/rabbitmq"
	"match-service/internal/repositories"
)

// RoomWebSocketHandler serves room sessions: presence events plus WebRTC
// signaling relayed between seated participants.
type RoomWebSocketHandler struct {
	hub       *Hub
	rooms     repositories.RoomRepository
	publisher rabbitmq.Publisher
	jwtSecret string
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, rooms repositories.RoomRepository, publisher rabbitmq.Publisher, jwtSecret string) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, rooms: rooms, publisher: publisher, jwtSecret: jwtSecret}
}

// Signal types relayed verbatim between room participants.
func relayable(eventType string) bool {
	switch eventType {
	case "offer", "answer", "candidate":
		return true
	}
	return false
}

// Handle upgrades the request and registers the session on the room.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("match-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := authenticate(c, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	room, err := h.rooms.GetByID(ctx, roomID)
	if err != nil || !room.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
		return
	}
	participants, err := h.rooms.Participants(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	seated := false
	for _, p := range participants {
		if p.UserID == userID {
			seated = true
			break
		}
	}
	if !seated {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddRoomClient(roomID, conn, info)
	observability.IncWSActive(kindRoom)
	observability.IncWSEvent(kindRoom, "ws_connect")
	emitWSEvent(h.publisher, kindRoom, roomID, "ws_connect", info, "")

	h.hub.BroadcastRoomEvent(roomID, models.RoomEvent{
		Type: "user_joined",
		From: userID,
	}, conn)

	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveRoomClient(roomID, conn)
			observability.DecWSActive(kindRoom)
			observability.IncWSEvent(kindRoom, "ws_disconnect")
			emitWSEvent(h.publisher, kindRoom, roomID, "ws_disconnect", info, closeReason)
			h.hub.BroadcastRoomEvent(roomID, models.RoomEvent{
				Type: "user_left",
				From: userID,
			}, conn)
			conn.Close()
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent(kindRoom, "ws_error")
				}
				return
			}

			var event models.RoomEvent
			if err := json.Unmarshal(raw, &event); err != nil || !relayable(event.Type) {
				continue
			}
			event.From = userID
			h.hub.BroadcastRoomEvent(roomID, event, conn)
			observability.IncWSEvent(kindRoom, event.Type)
		}
	}()
}

package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"match-service/internal/middleware"
	"match-service/internal/models"
	"match-service/internal/observability"
	"match-service/internal/rabbitmq"
	"match-service/internal/repositories"
)

// ConnectionWebSocketHandler serves the live channel of a connection's chat.
// Messages are written through the REST gate; the socket carries pushed events
// and peer-to-peer call signaling.
type ConnectionWebSocketHandler struct {
	hub       *Hub
	conns     repositories.ConnectionRepository
	publisher rabbitmq.Publisher
	jwtSecret string
}

// NewConnectionWebSocketHandler constructs a ConnectionWebSocketHandler.
func NewConnectionWebSocketHandler(hub *Hub, conns repositories.ConnectionRepository, publisher rabbitmq.Publisher, jwtSecret string) *ConnectionWebSocketHandler {
	return &ConnectionWebSocketHandler{hub: hub, conns: conns, publisher: publisher, jwtSecret: jwtSecret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func authenticate(c *gin.Context, secret string) (int64, error) {
	token := c.GetHeader("Authorization")
	if token != "" {
		parts := strings.SplitN(token, " ", 2)
		if len(parts) == 2 {
			token = parts[1]
		}
	} else {
		token = c.Query("token")
	}
	claims, err := middleware.ParseToken(secret, token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// Handle upgrades the request and registers the session on the connection.
func (h *ConnectionWebSocketHandler) Handle(c *gin.Context) {
	connectionID, err := strconv.ParseInt(c.Param("connection_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
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

	connection, err := h.conns.GetByID(ctx, connectionID)
	if err != nil || !connection.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for connection"})
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
	h.hub.AddChatClient(connectionID, conn, info)
	observability.IncWSActive(kindChat)
	observability.IncWSEvent(kindChat, "ws_connect")
	h.emitWSEvent(kindChat, connectionID, "ws_connect", info, "")

	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveChatClient(connectionID, conn)
			observability.DecWSActive(kindChat)
			observability.IncWSEvent(kindChat, "ws_disconnect")
			h.emitWSEvent(kindChat, connectionID, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent(kindChat, "ws_error")
				}
				return
			}

			var event models.ChatEvent
			if err := json.Unmarshal(raw, &event); err != nil || event.Type != "signal" {
				continue
			}
			// Call signaling is relayed to the peer, never stored.
			event.From = userID
			h.hub.BroadcastChatEvent(connectionID, event, conn)
			observability.IncWSEvent(kindChat, "signal")
		}
	}()
}

func (h *ConnectionWebSocketHandler) emitWSEvent(kind string, resourceID int64, event string, info ConnInfo, reason string) {
	emitWSEvent(h.publisher, kind, resourceID, event, info, reason)
}

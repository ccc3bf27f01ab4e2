package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"match-service/internal/models"
	"match-service/internal/observability"
)

const (
	kindChat = "chat"
	kindRoom = "room"
)

// Hub maintains the active websocket sessions for connection chats and rooms.
// Broadcasts go to local sessions and, when a fanout is attached, to the other
// service instances through Redis.
type Hub struct {
	chatSessions map[int64]map[*websocket.Conn]ConnInfo
	roomSessions map[int64]map[*websocket.Conn]ConnInfo
	mu           sync.RWMutex

	fanout *RedisFanout
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		chatSessions: make(map[int64]map[*websocket.Conn]ConnInfo),
		roomSessions: make(map[int64]map[*websocket.Conn]ConnInfo),
	}
}

// SetFanout attaches a cross-instance fanout. Must be called before the hub
// starts accepting sessions.
func (h *Hub) SetFanout(f *RedisFanout) {
	h.fanout = f
}

// AddChatClient registers a websocket session on a connection's chat.
func (h *Hub) AddChatClient(connectionID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.chatSessions[connectionID]; !ok {
		h.chatSessions[connectionID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.chatSessions[connectionID][conn] = info
}

// RemoveChatClient removes a chat websocket session.
func (h *Hub) RemoveChatClient(connectionID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.chatSessions[connectionID]; ok {
		delete(sessions, conn)
		if len(sessions) == 0 {
			delete(h.chatSessions, connectionID)
		}
	}
}

// AddRoomClient registers a websocket session on a room.
func (h *Hub) AddRoomClient(roomID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.roomSessions[roomID]; !ok {
		h.roomSessions[roomID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.roomSessions[roomID][conn] = info
}

// RemoveRoomClient removes a room websocket session.
func (h *Hub) RemoveRoomClient(roomID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.roomSessions[roomID]; ok {
		delete(sessions, conn)
		if len(sessions) == 0 {
			delete(h.roomSessions, roomID)
		}
	}
}

// BroadcastChatEvent pushes an event to every session on a connection's chat
// except exclude (may be nil), here and on peer instances.
func (h *Hub) BroadcastChatEvent(connectionID int64, event models.ChatEvent, exclude *websocket.Conn) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal chat event: %v", err)
		return
	}
	h.deliverChat(connectionID, payload, exclude)
	if h.fanout != nil {
		h.fanout.publish(kindChat, connectionID, payload)
	}
}

// BroadcastRoomEvent pushes an event to every session in a room except the
// sender's own, here and on peer instances. exclude may be nil.
func (h *Hub) BroadcastRoomEvent(roomID int64, event models.RoomEvent, exclude *websocket.Conn) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal room event: %v", err)
		return
	}
	h.deliverRoom(roomID, payload, exclude)
	if h.fanout != nil {
		h.fanout.publish(kindRoom, roomID, payload)
	}
}

// RoomOccupants returns the user ids with at least one live session in a room
// on this instance.
func (h *Hub) RoomOccupants(roomID int64) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, info := range h.roomSessions[roomID] {
		if !seen[info.UserID] {
			seen[info.UserID] = true
			ids = append(ids, info.UserID)
		}
	}
	return ids
}

func (h *Hub) deliverChat(connectionID int64, payload []byte, exclude *websocket.Conn) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.chatSessions[connectionID]))
	for conn := range h.chatSessions[connectionID] {
		if conn != exclude {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveChatClient(connectionID, conn)
			observability.IncWSEvent(kindChat, "ws_error")
		}
	}
}

func (h *Hub) deliverRoom(roomID int64, payload []byte, exclude *websocket.Conn) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.roomSessions[roomID]))
	for conn := range h.roomSessions[roomID] {
		if conn != exclude {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveRoomClient(roomID, conn)
			observability.IncWSEvent(kindRoom, "ws_error")
		}
	}
}

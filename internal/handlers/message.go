package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"match-service/internal/lifecycle"
	"match-service/internal/models"
	"match-service/internal/observability"
	"match-service/internal/repositories"
	"match-service/internal/ws"
)

// MessageHandler manages the message endpoints behind the chat window gate.
type MessageHandler struct {
	gate  *lifecycle.Gate
	users repositories.UserRepository
	hub   *ws.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(gate *lifecycle.Gate, users repositories.UserRepository, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{gate: gate, users: users, hub: hub}
}

// Post stores a message on an open chat and pushes it to live sessions.
func (h *MessageHandler) Post(c *gin.Context) {
	connectionID, ok := pathID(c, "connection_id")
	if !ok {
		return
	}

	var req struct {
		Content string        `json:"content"`
		Media   *models.Media `json:"media"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	msg, err := h.gate.PostMessage(c.Request.Context(), connectionID, userID, req.Content, req.Media)
	if err != nil {
		observability.IncMessageGated("refused")
		writeError(c, err)
		return
	}

	observability.IncMessageGated("allowed")
	h.hub.BroadcastChatEvent(connectionID, models.ChatEvent{Type: "message", Message: &msg}, nil)
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// List returns a page of messages plus unread count and the window readout.
func (h *MessageHandler) List(c *gin.Context) {
	connectionID, ok := pathID(c, "connection_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	query := repositories.MessageQuery{
		Before: int64(intQuery(c, "before", 0)),
		After:  int64(intQuery(c, "after", 0)),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}

	page, err := h.gate.ListMessages(c.Request.Context(), connectionID, userID, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MarkRead flips the given messages to read and reports how many changed.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	connectionID, ok := pathID(c, "connection_id")
	if !ok {
		return
	}

	var req struct {
		MessageIDs []int64 `json:"message_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	count, err := h.gate.MarkRead(c.Request.Context(), connectionID, userID, req.MessageIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	if count > 0 {
		h.hub.BroadcastChatEvent(connectionID, models.ChatEvent{Type: "read", From: userID}, nil)
	}
	c.JSON(http.StatusOK, gin.H{"marked_count": count})
}

// Delete soft-deletes a message (sender only) and notifies live sessions.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	msg, err := h.gate.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	h.hub.BroadcastChatEvent(msg.ConnectionID, models.ChatEvent{Type: "message_deleted", MessageID: msg.ID}, nil)
	c.Status(http.StatusNoContent)
}

// Summary returns the user's open chats, most recent activity first.
func (h *MessageHandler) Summary(c *gin.Context) {
	userID := c.GetInt64("userID")

	entries, totalUnread, err := h.gate.ChatSummary(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.OtherUserID)
	}
	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load user info"})
		return
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	for i := range entries {
		entries[i].OtherUserName = names[entries[i].OtherUserID]
	}

	c.JSON(http.StatusOK, gin.H{"chats": entries, "total_unread": totalUnread})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"match-service/internal/clock"
	"match-service/internal/lifecycle"
	"match-service/internal/models"
	"match-service/internal/observability"
	"match-service/internal/repositories"
	"match-service/internal/telemetry"
)

// ConnectionHandler manages connection lifecycle endpoints.
type ConnectionHandler struct {
	engine *lifecycle.Engine
	users  repositories.UserRepository
	audit  *telemetry.AuditEmitter
	clock  clock.Clock
}

// NewConnectionHandler builds a ConnectionHandler.
func NewConnectionHandler(engine *lifecycle.Engine, users repositories.UserRepository, audit *telemetry.AuditEmitter, clk clock.Clock) *ConnectionHandler {
	return &ConnectionHandler{engine: engine, users: users, audit: audit, clock: clk}
}

type connectionResponse struct {
	models.Connection
	OtherUserName     string `json:"other_user_name,omitempty"`
	TimeLeftFormatted string `json:"time_left_formatted,omitempty"`
}

func (h *ConnectionHandler) respond(c *gin.Context, conn models.Connection, userID int64, names map[int64]string) connectionResponse {
	resp := connectionResponse{Connection: conn}
	if names != nil {
		resp.OtherUserName = names[conn.OtherParticipant(userID)]
	}
	if remaining, ok := lifecycle.TimeRemaining(conn, h.clock.Now()); ok {
		resp.TimeLeftFormatted = lifecycle.FormatTimeLeft(remaining)
	}
	return resp
}

// Create sends a connection request to another user.
func (h *ConnectionHandler) Create(c *gin.Context) {
	var req struct {
		ReceiverID int64  `json:"receiver_id" binding:"required"`
		Message    string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	conn, err := h.engine.RequestConnection(c.Request.Context(), userID, req.ReceiverID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}

	observability.IncConnectionTransition(string(models.ConnectionPending))
	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "connection requested", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"connection": h.respond(c, conn, userID, nil)})
}

// List returns the user's connections with pagination.
func (h *ConnectionHandler) List(c *gin.Context) {
	userID := c.GetInt64("userID")

	filter := repositories.ConnectionFilter{
		Type:   c.Query("type"),
		Limit:  intQuery(c, "limit", 20),
		Offset: intQuery(c, "offset", 0),
	}
	if filter.Type == "all" {
		filter.Type = ""
	}
	if status := c.Query("status"); status != "" {
		s := models.ConnectionStatus(status)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
			return
		}
		filter.Status = s
	}

	conns, total, err := h.engine.ListForUser(c.Request.Context(), userID, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	names, err := h.lookupNames(c, conns, userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load user info"})
		return
	}

	responses := make([]connectionResponse, 0, len(conns))
	for _, conn := range conns {
		responses = append(responses, h.respond(c, conn, userID, names))
	}
	c.JSON(http.StatusOK, gin.H{
		"connections": responses,
		"total":       total,
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

// UpdateStatus resolves a pending request (accept or reject, receiver only).
func (h *ConnectionHandler) UpdateStatus(c *gin.Context) {
	connectionID, ok := pathID(c, "connection_id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	conn, err := h.engine.UpdateStatus(c.Request.Context(), connectionID, userID, models.ConnectionStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}

	observability.IncConnectionTransition(string(conn.Status))
	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "connection "+string(conn.Status), requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, gin.H{"connection": h.respond(c, conn, userID, nil)})
}

// Get returns a single connection. Participant only.
func (h *ConnectionHandler) Get(c *gin.Context) {
	connectionID, ok := pathID(c, "connection_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	conn, err := h.engine.Get(c.Request.Context(), connectionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	names, err := h.lookupNames(c, []models.Connection{conn}, userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load user info"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": h.respond(c, conn, userID, names)})
}

// Active returns accepted connections whose chat window is open, soonest to
// expire first.
func (h *ConnectionHandler) Active(c *gin.Context) {
	userID := c.GetInt64("userID")

	conns, err := h.engine.ActiveChats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	names, err := h.lookupNames(c, conns, userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load user info"})
		return
	}

	responses := make([]connectionResponse, 0, len(conns))
	for _, conn := range conns {
		responses = append(responses, h.respond(c, conn, userID, names))
	}
	c.JSON(http.StatusOK, gin.H{"connections": responses})
}

// Delete removes a connection and its messages. Participant only.
func (h *ConnectionHandler) Delete(c *gin.Context) {
	connectionID, ok := pathID(c, "connection_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	if err := h.engine.Delete(c.Request.Context(), connectionID, userID); err != nil {
		writeError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelWarn, "connection deleted", requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}

func (h *ConnectionHandler) lookupNames(c *gin.Context, conns []models.Connection, userID int64) (map[int64]string, error) {
	ids := make([]int64, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, conn.OtherParticipant(userID))
	}
	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

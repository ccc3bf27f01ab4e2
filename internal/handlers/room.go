package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"match-service/internal/models"
	"match-service/internal/repositories"
	"match-service/internal/rooms"
	"match-service/internal/telemetry"
	"match-service/internal/ws"
)

// RoomHandler manages room endpoints.
type RoomHandler struct {
	scheduler *rooms.Scheduler
	hub       *ws.Hub
	audit     *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(scheduler *rooms.Scheduler, hub *ws.Hub, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{scheduler: scheduler, hub: hub, audit: audit}
}

// Create opens a new room with the caller seated as creator.
func (h *RoomHandler) Create(c *gin.Context) {
	var req struct {
		Name            string     `json:"name" binding:"required"`
		Description     string     `json:"description"`
		MaxParticipants int        `json:"max_participants"`
		RoomType        string     `json:"room_type" binding:"required"`
		Tags            []string   `json:"tags"`
		IsPrivate       bool       `json:"is_private"`
		ScheduledFor    *time.Time `json:"scheduled_for"`
		DurationMinutes int        `json:"duration_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	view, err := h.scheduler.CreateRoom(c.Request.Context(), userID, rooms.CreateRoomInput{
		Name:            req.Name,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		RoomType:        models.RoomType(req.RoomType),
		Tags:            req.Tags,
		IsPrivate:       req.IsPrivate,
		ScheduledFor:    req.ScheduledFor,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "room created", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"room": view})
}

// List returns active rooms, optionally filtered by type, tags, privacy and
// derived status.
func (h *RoomHandler) List(c *gin.Context) {
	userID := c.GetInt64("userID")

	filter := repositories.RoomFilter{
		RoomType: models.RoomType(c.Query("type")),
		ViewerID: userID,
		Limit:    intQuery(c, "limit", 20),
		Offset:   intQuery(c, "offset", 0),
	}
	if tags := c.Query("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	if raw := c.Query("is_private"); raw != "" {
		private := raw == "true"
		filter.IsPrivate = &private
	}

	views, err := h.scheduler.ListRooms(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	if statusFilter := c.Query("status"); statusFilter != "" {
		want := models.RoomStatus(statusFilter)
		if statusFilter == "past" {
			want = models.RoomEnded
		}
		filtered := views[:0]
		for _, view := range views {
			if view.Status == want {
				filtered = append(filtered, view)
			}
		}
		views = filtered
	}

	c.JSON(http.StatusOK, gin.H{"rooms": views})
}

// Mine returns the caller's created and joined rooms.
func (h *RoomHandler) Mine(c *gin.Context) {
	userID := c.GetInt64("userID")

	created, joined, err := h.scheduler.MyRooms(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "joined": joined})
}

// Get returns one room with its derived status and seating.
func (h *RoomHandler) Get(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	view, err := h.scheduler.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}

	participants, err := h.scheduler.Participants(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": view, "participants": participants})
}

// Join seats the caller in the room.
func (h *RoomHandler) Join(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	view, err := h.scheduler.Join(c.Request.Context(), roomID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	h.hub.BroadcastRoomEvent(roomID, models.RoomEvent{Type: "participant_joined", From: userID}, nil)
	c.JSON(http.StatusOK, gin.H{"room": view})
}

// Leave unseats the caller; ownership transfer and empty-room deactivation
// are reflected in the returned room.
func (h *RoomHandler) Leave(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	view, err := h.scheduler.Leave(c.Request.Context(), roomID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	h.hub.BroadcastRoomEvent(roomID, models.RoomEvent{Type: "participant_left", From: userID}, nil)
	c.JSON(http.StatusOK, gin.H{"room": view})
}

// Update applies creator edits to the room settings.
func (h *RoomHandler) Update(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	var req struct {
		Name            *string    `json:"name"`
		Description     *string    `json:"description"`
		MaxParticipants *int       `json:"max_participants"`
		Tags            []string   `json:"tags"`
		IsPrivate       *bool      `json:"is_private"`
		ScheduledFor    *time.Time `json:"scheduled_for"`
		ClearSchedule   bool       `json:"clear_schedule"`
		DurationMinutes *int       `json:"duration_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	view, err := h.scheduler.UpdateSettings(c.Request.Context(), roomID, userID, repositories.RoomSettings{
		Name:            req.Name,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		Tags:            req.Tags,
		IsPrivate:       req.IsPrivate,
		ScheduledFor:    req.ScheduledFor,
		ClearSchedule:   req.ClearSchedule,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.hub.BroadcastRoomEvent(roomID, models.RoomEvent{Type: "room_updated", From: userID}, nil)
	c.JSON(http.StatusOK, gin.H{"room": view})
}

// Deactivate closes the room (creator only).
func (h *RoomHandler) Deactivate(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	if err := h.scheduler.Deactivate(c.Request.Context(), roomID, userID); err != nil {
		writeError(c, err)
		return
	}

	h.hub.BroadcastRoomEvent(roomID, models.RoomEvent{Type: "room_closed", From: userID}, nil)
	h.audit.Emit(c.Request.Context(), telemetry.LevelWarn, "room deactivated", requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}

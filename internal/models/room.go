package models

import (
	"time"

	"github.com/lib/pq"
)

// RoomStatus is derived from the schedule and the clock, never stored.
type RoomStatus string

const (
	RoomUpcoming RoomStatus = "upcoming"
	RoomLive     RoomStatus = "live"
	RoomEnded    RoomStatus = "ended"
)

// RoomType classifies a room.
type RoomType string

const (
	RoomTypeDiscussion RoomType = "discussion"
	RoomTypeEvent      RoomType = "event"
	RoomTypeMeetup     RoomType = "meetup"
	RoomTypeHobby      RoomType = "hobby"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeDiscussion, RoomTypeEvent, RoomTypeMeetup, RoomTypeHobby:
		return true
	}
	return false
}

const (
	// RoomMinParticipants and RoomMaxParticipants bound the capacity of any room.
	RoomMinParticipants = 2
	RoomMaxParticipants = 10
	// RoomDefaultDuration applies when a scheduled room has no explicit duration.
	RoomDefaultDuration = 60
)

// Room is a scheduled or always-live group session. A nil ScheduledFor means
// the room is live unconditionally. Rooms are deactivated, never deleted.
type Room struct {
	ID              int64          `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Description     string         `db:"description" json:"description"`
	CreatedBy       int64          `db:"created_by" json:"created_by"`
	MaxParticipants int            `db:"max_participants" json:"max_participants"`
	RoomType        RoomType       `db:"room_type" json:"room_type"`
	Tags            pq.StringArray `db:"tags" json:"tags"`
	IsPrivate       bool           `db:"is_private" json:"is_private"`
	ScheduledFor    *time.Time     `db:"scheduled_for" json:"scheduled_for,omitempty"`
	DurationMinutes int            `db:"duration_minutes" json:"duration_minutes"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// RoomParticipant records membership with explicit join order. Ownership
// transfer on creator leave picks the earliest (joined_at, id) remaining row.
type RoomParticipant struct {
	ID       int64     `db:"id" json:"-"`
	RoomID   int64     `db:"room_id" json:"room_id"`
	UserID   int64     `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// RoomEvent is pushed over websocket sessions for a room.
type RoomEvent struct {
	Type    string         `json:"type"`
	From    int64          `json:"from,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

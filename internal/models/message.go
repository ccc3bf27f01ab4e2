package models

import "time"

// MediaType classifies message attachments.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaFile  MediaType = "file"
)

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool {
	switch t {
	case MediaImage, MediaVideo, MediaAudio, MediaFile:
		return true
	}
	return false
}

// Media describes an attachment on a message.
type Media struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// Message belongs to exactly one connection. ReceiverID is always the other
// endpoint of the connection, derived at write time. Deleted messages stay in
// the store for audit and are excluded from all reads.
type Message struct {
	ID           int64      `db:"id" json:"id"`
	ConnectionID int64      `db:"connection_id" json:"connection_id"`
	SenderID     int64      `db:"sender_id" json:"sender_id"`
	ReceiverID   int64      `db:"receiver_id" json:"receiver_id"`
	Content      string     `db:"content" json:"content"`
	IsMedia      bool       `db:"is_media" json:"is_media"`
	MediaURL     *string    `db:"media_url" json:"media_url,omitempty"`
	MediaType    *MediaType `db:"media_type" json:"media_type,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	IsDeleted    bool       `db:"is_deleted" json:"-"`
	IsRead       bool       `db:"is_read" json:"is_read"`
	ReadAt       *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// ChatEvent is pushed over websocket connections for a chat.
type ChatEvent struct {
	Type      string         `json:"type"`
	Message   *Message       `json:"message,omitempty"`
	MessageID int64          `json:"message_id,omitempty"`
	From      int64          `json:"from,omitempty"`
	Signal    map[string]any `json:"signal,omitempty"`
}

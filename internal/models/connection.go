package models

import "time"

// ConnectionStatus is the lifecycle state of a connection request.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
	ConnectionExpired  ConnectionStatus = "expired"
)

// Valid reports whether s is a known status value.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPending, ConnectionAccepted, ConnectionRejected, ConnectionExpired:
		return true
	}
	return false
}

// Connection is a directed request from one user to another. Acceptance opens
// a bounded chat window; ChatExpiresAt is set exactly once, at the moment the
// request is accepted, and never reset.
type Connection struct {
	ID               int64            `db:"id" json:"id"`
	RequesterID      int64            `db:"requester_id" json:"requester_id"`
	ReceiverID       int64            `db:"receiver_id" json:"receiver_id"`
	Status           ConnectionStatus `db:"status" json:"status"`
	Message          string           `db:"message" json:"message,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	RequestExpiresAt time.Time        `db:"request_expires_at" json:"request_expires_at"`
	ChatExpiresAt    *time.Time       `db:"chat_expires_at" json:"chat_expires_at,omitempty"`
}

// HasParticipant reports whether userID is one of the two endpoints.
func (c Connection) HasParticipant(userID int64) bool {
	return c.RequesterID == userID || c.ReceiverID == userID
}

// OtherParticipant returns the endpoint that is not userID.
func (c Connection) OtherParticipant(userID int64) int64 {
	if c.RequesterID == userID {
		return c.ReceiverID
	}
	return c.RequesterID
}

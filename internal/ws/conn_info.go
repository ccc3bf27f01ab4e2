package ws

import "time"

// ConnInfo identifies a live socket for delivery, lifecycle events and
// troubleshooting.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Package notify is the one-way side channel informed on state transitions.
// Delivery is best effort: a publish failure is logged and never rolls back
// the mutation that triggered it.
package notify

import (
	"context"
	"log"
	"time"

	"match-service/internal/rabbitmq"
)

// Notification kinds emitted by the lifecycle engine and room scheduler.
const (
	KindConnectionRequest  = "connection_request"
	KindConnectionAccepted = "connection_accepted"
	KindConnectionExpired  = "connection_expired"
	KindNewMessage         = "new_message"
	KindRoomJoined         = "room_joined"
)

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind string, payload map[string]any)
}

// Envelope is the published notification document.
type Envelope struct {
	SchemaVersion int            `json:"schema_version"`
	UserID        int64          `json:"user_id"`
	Kind          string         `json:"kind"`
	OccurredAt    string         `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type publisherNotifier struct {
	publisher rabbitmq.Publisher
}

// NewNotifier builds a Notifier on top of the event publisher.
func NewNotifier(publisher rabbitmq.Publisher) Notifier {
	return &publisherNotifier{publisher: publisher}
}

func (n *publisherNotifier) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) {
	envelope := Envelope{
		SchemaVersion: 1,
		UserID:        userID,
		Kind:          kind,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload:       payload,
	}
	if err := n.publisher.Publish(ctx, "notifications."+kind, envelope); err != nil {
		log.Printf("notify publish failed kind=%s user_id=%d: %v", kind, userID, err)
	}
}

// Noop discards notifications; used in tests.
type Noop struct{}

func (Noop) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) {}

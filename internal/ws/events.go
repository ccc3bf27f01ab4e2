package ws

import (
	"context"
	"time"

	"match-service/internal/observability"
	"match-service/internal/rabbitmq"
)

type wsEventEnvelope struct {
	EventType string         `json:"event_type"`
	EventName string         `json:"event_name"`
	Payload   map[string]any `json:"payload"`
}

func wsRoutingKey(kind string) string {
	if kind == kindRoom {
		return "ws_events.rooms"
	}
	return "ws_events.connections"
}

func emitWSEvent(publisher rabbitmq.Publisher, kind string, resourceID int64, event string, info ConnInfo, reason string) {
	if publisher == nil {
		return
	}
	envelope := wsEventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        kind,
				"resource_id": resourceID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}
	if err := publisher.Publish(context.Background(), wsRoutingKey(kind), envelope); err != nil {
		observability.IncAMQPPublishError()
	}
}

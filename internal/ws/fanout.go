package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisFanout relays hub broadcasts across service instances over a Redis
// pub/sub channel. Each instance tags its own messages and skips them on
// receipt, so local sessions never see a broadcast twice.
type RedisFanout struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        *Hub
}

type fanoutEnvelope struct {
	Instance string          `json:"instance"`
	Kind     string          `json:"kind"`
	ID       int64           `json:"id"`
	Payload  json.RawMessage `json:"payload"`
}

// NewRedisFanout wires a fanout between the hub and a Redis channel.
func NewRedisFanout(client *redis.Client, channel string, hub *Hub) *RedisFanout {
	f := &RedisFanout{
		client:     client,
		channel:    channel,
		instanceID: newConnID(),
		hub:        hub,
	}
	hub.SetFanout(f)
	return f
}

// Start subscribes and relays remote broadcasts until ctx is canceled.
func (f *RedisFanout) Start(ctx context.Context) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	go func() {
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("fanout unmarshal error: %v", err)
				continue
			}
			if env.Instance == f.instanceID {
				continue
			}
			switch env.Kind {
			case kindChat:
				f.hub.deliverChat(env.ID, env.Payload, nil)
			case kindRoom:
				f.hub.deliverRoom(env.ID, env.Payload, nil)
			}
		}
	}()
}

func (f *RedisFanout) publish(kind string, id int64, payload []byte) {
	body, err := json.Marshal(fanoutEnvelope{
		Instance: f.instanceID,
		Kind:     kind,
		ID:       id,
		Payload:  payload,
	})
	if err != nil {
		log.Printf("fanout marshal error: %v", err)
		return
	}
	if err := f.client.Publish(context.Background(), f.channel, body).Err(); err != nil {
		log.Printf("fanout publish error: %v", err)
	}
}

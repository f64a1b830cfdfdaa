package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dehublabs/predictiond/internal/domain"
)

// eventsChannel carries round lifecycle events between processes: the
// operator publishes after every tick, API instances subscribe and fan out to
// their websocket clients.
const eventsChannel = "events:rounds"

// EventBus implements cross-process round event delivery over Redis Pub/Sub.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends one round event. Delivery is at-most-once; the durable record
// lives in the stores, the bus only drives live updates.
func (b *EventBus) Publish(ctx context.Context, ev domain.RoundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Type, err)
	}
	if err := b.rdb.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe returns a channel of round events. The subscription is closed,
// and the channel with it, when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.RoundEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, eventsChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", eventsChannel, err)
	}

	out := make(chan domain.RoundEvent, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.RoundEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes over Redis pub/sub so every API node sees every event.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func channelName(chatID string) string {
	return "chat:" + chatID + ":events"
}

func (b *RedisBus) Publish(ctx context.Context, chatID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(chatID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, chatID string) (<-chan Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelName(chatID))
	// Wait for the confirmation so events published right after Subscribe returns are delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", chatID, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("events: drop malformed payload on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}

// Package events fans tool update notifications out to chat subscribers.
package events

import (
	"context"
	"sync"
)

const (
	TypeItineraryUpdate = "data-itinerary-update"
	TypePollUpdate      = "data-poll-update"
)

// Event tells a client which itinerary or poll to refetch. Data is the id.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type Bus interface {
	Publish(ctx context.Context, chatID string, event Event) error
	// Subscribe returns a channel of events for chatID. The channel is closed
	// once ctx is done or the returned cancel func is called.
	Subscribe(ctx context.Context, chatID string) (<-chan Event, func(), error)
}

const subscriberBuffer = 16

// MemoryBus delivers events within a single process. Slow subscribers drop
// events rather than block publishers.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

type memorySub struct {
	ch   chan Event
	once sync.Once
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[*memorySub]struct{}{}}
}

func (b *MemoryBus) Publish(_ context.Context, chatID string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[chatID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, chatID string) (<-chan Event, func(), error) {
	sub := &memorySub{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[chatID] == nil {
		b.subs[chatID] = map[*memorySub]struct{}{}
	}
	b.subs[chatID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[chatID], sub)
			if len(b.subs[chatID]) == 0 {
				delete(b.subs, chatID)
			}
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.ch, cancel, nil
}

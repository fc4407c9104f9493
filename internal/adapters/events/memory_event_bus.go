package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
)

// MemoryEventBus is an in-process EventBus used by the single-node memory
// deployment and by tests. Delivery is best-effort like the Redis bus.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.QueueStatusEvent]struct{}
	closed      bool
}

// NewMemoryEventBus creates an empty in-process event bus
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.QueueStatusEvent]struct{}),
	}
}

var _ providers.EventBus = (*MemoryEventBus)(nil)

// Publish delivers the event to every current subscriber of channel
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.QueueStatusEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event.Clone():
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx ends
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueStatusEvent, error) {
	eventChan := make(chan *entities.QueueStatusEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(eventChan)
		return eventChan, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.QueueStatusEvent]struct{})
	}
	b.subscribers[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *MemoryEventBus) remove(channel string, eventChan chan *entities.QueueStatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[channel][eventChan]; !ok {
		return
	}
	delete(b.subscribers[channel], eventChan)
	close(eventChan)
	if len(b.subscribers[channel]) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes every subscriber; later subscriptions are closed immediately
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}

// SubscriberCount returns the number of subscribers on channel
func (b *MemoryEventBus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	redisclient "github.com/zatekoja/clinicqueue/internal/infrastructure/clients/redis"
)

// subscriberBuffer bounds each local subscriber; slow readers drop events
// and recover through the periodic refetch.
const subscriberBuffer = 100

// channelSub is one Redis subscription and the local readers fed from it
type channelSub struct {
	pubsub  *redis.PubSub
	readers map[chan *entities.QueueStatusEvent]struct{}
}

// RedisEventBus implements EventBus over Redis Pub/Sub, so the API process
// and the stream process see the same events. Each channel holds a single
// Redis subscription that fans out to every local reader.
type RedisEventBus struct {
	client *redisclient.Client

	mu       sync.RWMutex
	channels map[string]*channelSub
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:   client,
		channels: make(map[string]*channelSub),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Publish sends the event to every process subscribed to channel
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.QueueStatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal queue event: %w", err)
	}

	receivers, err := b.client.Client().Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish queue event on %s: %w", channel, err)
	}

	log.Debug().
		Str("channel", channel).
		Str("event_id", event.ID).
		Str("action", string(event.Action)).
		Int64("receivers", receivers).
		Msg("Published queue event")
	return nil
}

// Subscribe returns a reader for channel once Redis has confirmed the
// subscription. The reader is closed when ctx ends or the bus closes. The
// Redis round-trip happens outside the bus lock, so fan-out on other
// channels continues while a new channel is being subscribed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueStatusEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("event bus is closed")
	}
	if sub, ok := b.channels[channel]; ok {
		reader := b.addReaderLocked(ctx, channel, sub)
		b.mu.Unlock()
		return reader, nil
	}
	b.mu.Unlock()

	pubsub := b.client.Client().Subscribe(b.ctx, channel)
	// Wait for the confirmation so events published right after
	// Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = pubsub.Close()
		return nil, errors.New("event bus is closed")
	}
	sub, ok := b.channels[channel]
	if ok {
		// A concurrent Subscribe installed the channel first.
		_ = pubsub.Close()
	} else {
		sub = &channelSub{pubsub: pubsub, readers: make(map[chan *entities.QueueStatusEvent]struct{})}
		b.channels[channel] = sub
		go b.receive(channel, sub)
	}
	return b.addReaderLocked(ctx, channel, sub), nil
}

func (b *RedisEventBus) addReaderLocked(ctx context.Context, channel string, sub *channelSub) <-chan *entities.QueueStatusEvent {
	reader := make(chan *entities.QueueStatusEvent, subscriberBuffer)
	sub.readers[reader] = struct{}{}
	log.Debug().Str("channel", channel).Int("readers", len(sub.readers)).Msg("Subscribed to queue channel")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeReader(channel, sub, reader)
	}()
	return reader
}

// receive fans messages of one subscription out until it is closed
func (b *RedisEventBus) receive(channel string, sub *channelSub) {
	defer b.dropChannel(channel, sub)

	for msg := range sub.pubsub.Channel() {
		var event entities.QueueStatusEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed queue event")
			continue
		}

		b.mu.RLock()
		for reader := range sub.readers {
			select {
			case reader <- event.Clone():
			default:
				log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Queue event reader full, skipping event")
			}
		}
		b.mu.RUnlock()
	}
}

func (b *RedisEventBus) removeReader(channel string, sub *channelSub, reader chan *entities.QueueStatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := sub.readers[reader]; !ok {
		return
	}
	delete(sub.readers, reader)
	close(reader)

	if len(sub.readers) == 0 && b.channels[channel] == sub {
		delete(b.channels, channel)
		_ = sub.pubsub.Close()
		log.Debug().Str("channel", channel).Msg("Closed queue channel subscription")
	}
}

// dropChannel closes every reader of sub. A newer subscription on the same
// channel is left alone.
func (b *RedisEventBus) dropChannel(channel string, sub *channelSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for reader := range sub.readers {
		close(reader)
	}
	sub.readers = map[chan *entities.QueueStatusEvent]struct{}{}

	if b.channels[channel] == sub {
		delete(b.channels, channel)
	}
}

// Unsubscribe closes every local reader of channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	sub, ok := b.channels[channel]
	if ok {
		delete(b.channels, channel)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	// Closing the pubsub ends receive, which closes the readers.
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", channel, err)
	}
	return nil
}

// Close ends every subscription. Publishing stays possible until the Redis
// client itself is closed.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.channels
	b.channels = make(map[string]*channelSub)
	b.mu.Unlock()

	b.cancel()

	var errs []error
	for channel, sub := range subs {
		if err := sub.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close subscription %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

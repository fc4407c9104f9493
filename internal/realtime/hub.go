// Package realtime fans queue events out to WebSocket dashboards.
//
// Clients subscribe to topics named like event bus channels ("receptionist",
// "room.<roomId>"). The hub holds one event bus subscription per topic while
// at least one client wants it, and drops events for clients whose send
// buffer is full; those dashboards recover on their next refetch.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
)

// ClientMessage is an inbound control message from a dashboard
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected dashboard
type Client struct {
	ID   string
	Send chan []byte

	topics map[string]struct{}
}

// NewClient creates a client with a send buffer of the given size
func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, buffer),
		topics: make(map[string]struct{}),
	}
}

type topicState struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
}

// Hub tracks clients and their topic subscriptions
type Hub struct {
	bus     providers.EventBus
	metrics *observability.Metrics

	mu     sync.Mutex
	topics map[string]*topicState
	all    map[*Client]struct{}
	closed bool
}

// NewHub creates a hub fed by bus. metrics may be nil.
func NewHub(bus providers.EventBus, metrics *observability.Metrics) *Hub {
	return &Hub{
		bus:     bus,
		metrics: metrics,
		topics:  make(map[string]*topicState),
		all:     make(map[*Client]struct{}),
	}
}

// ValidTopic reports whether topic names a queue channel
func ValidTopic(topic string) bool {
	if topic == providers.EventChannelReceptionist {
		return true
	}
	room, ok := strings.CutPrefix(topic, providers.EventChannelRoomPrefix)
	return ok && room != ""
}

// Register adds a client with no subscriptions
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	observability.RecordPushClient(context.Background(), h.metrics, "websocket", 1)
}

// Unregister drops every subscription of client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for topic := range client.topics {
		h.leaveLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
	observability.RecordPushClient(context.Background(), h.metrics, "websocket", -1)
}

// Subscribe adds topics to a registered client. Invalid topics are skipped
// and returned in rejected.
func (h *Hub) Subscribe(client *Client, topics []string) (rejected []string, err error) {
	for _, topic := range topics {
		if !ValidTopic(topic) {
			rejected = append(rejected, topic)
			continue
		}
		if err := h.join(client, topic); err != nil {
			return rejected, err
		}
	}
	return rejected, nil
}

// join adds client to topic. A missing topic is opened on the bus without
// holding the hub lock, so a slow subscribe never stalls delivery on other
// topics.
func (h *Hub) join(client *Client, topic string) error {
	h.mu.Lock()
	if err := h.checkClientLocked(client); err != nil {
		h.mu.Unlock()
		return err
	}
	if _, ok := client.topics[topic]; ok {
		h.mu.Unlock()
		return nil
	}
	if state, ok := h.topics[topic]; ok {
		h.addLocked(client, topic, state)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.bus.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkClientLocked(client); err != nil {
		cancel()
		return err
	}
	state, ok := h.topics[topic]
	if ok {
		// Another client opened the topic meanwhile; keep its subscription.
		cancel()
	} else {
		state = &topicState{clients: make(map[*Client]struct{}), cancel: cancel}
		h.topics[topic] = state
		go h.relay(ctx, topic, events)
		log.Debug().Str("topic", topic).Msg("Opened hub topic")
	}
	h.addLocked(client, topic, state)
	return nil
}

func (h *Hub) checkClientLocked(client *Client) error {
	if h.closed {
		return fmt.Errorf("hub is closed")
	}
	if _, ok := h.all[client]; !ok {
		return fmt.Errorf("client %s is not registered", client.ID)
	}
	return nil
}

func (h *Hub) addLocked(client *Client, topic string, state *topicState) {
	state.clients[client] = struct{}{}
	client.topics[topic] = struct{}{}
}

// Unsubscribe removes topics from a client
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, ok := client.topics[topic]; ok {
			h.leaveLocked(client, topic)
		}
	}
}

// ProcessMessage dispatches a client control message
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) ([]string, error) {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
}

// Broadcast sends event to every client subscribed to topic
func (h *Hub) Broadcast(topic string, event *entities.QueueStatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal queue event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.topics[topic]
	if !ok {
		return
	}
	for client := range state.clients {
		select {
		case client.Send <- data:
		default:
			log.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("WebSocket client buffer full, dropping event")
		}
	}
}

// Deliver queues data for one registered client without blocking. It reports
// false when the client is gone or its buffer is full.
func (h *Hub) Deliver(client *Client, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic
func (h *Hub) TopicCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.topics[topic]; ok {
		return len(state.clients)
	}
	return 0
}

// Close ends every bus subscription and disconnects all clients
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, state := range h.topics {
		state.cancel()
		delete(h.topics, topic)
	}
	for client := range h.all {
		delete(h.all, client)
		close(client.Send)
	}
	h.closed = true
}

func (h *Hub) relay(ctx context.Context, topic string, events <-chan *entities.QueueStatusEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(topic, event)
		}
	}
}

func (h *Hub) leaveLocked(client *Client, topic string) {
	delete(client.topics, topic)

	state, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(state.clients, client)
	if len(state.clients) == 0 {
		state.cancel()
		delete(h.topics, topic)
		log.Debug().Str("topic", topic).Msg("Closed hub topic")
	}
}

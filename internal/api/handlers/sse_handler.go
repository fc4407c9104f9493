package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
)

// SSEHandler streams queue status events to doctor and receptionist dashboards
type SSEHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration
	metrics   *observability.Metrics

	mu      sync.Mutex
	clients map[string]int // channel -> open streams
}

// NewSSEHandler creates a new SSE handler. metrics may be nil.
func NewSSEHandler(eventBus providers.EventBus, heartbeat time.Duration, metrics *observability.Metrics) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &SSEHandler{
		eventBus:  eventBus,
		heartbeat: heartbeat,
		metrics:   metrics,
		clients:   make(map[string]int),
	}
}

// StreamRoom handles GET /api/stream/rooms/{roomId}
func (h *SSEHandler) StreamRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if roomID == "" {
		respondWithError(w, http.StatusBadRequest, "room ID is required")
		return
	}
	h.stream(w, r, providers.RoomChannel(roomID))
}

// StreamReceptionist handles GET /api/stream/receptionist
func (h *SSEHandler) StreamReceptionist(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, providers.EventChannelReceptionist)
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, channel string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	events, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to subscribe to channel")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.track(channel, 1)
	defer h.track(channel, -1)

	h.sendEvent(w, "connected", map[string]interface{}{
		"channel":   channel,
		"timestamp": time.Now(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				// Bus went away; the dashboard reconnects and refetches.
				return
			}
			h.sendEvent(w, string(event.Action), event)
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) track(channel string, delta int) {
	h.mu.Lock()
	h.clients[channel] += delta
	if h.clients[channel] <= 0 {
		delete(h.clients, channel)
	}
	h.mu.Unlock()

	observability.RecordPushClient(context.Background(), h.metrics, "sse", int64(delta))
	log.Debug().Str("channel", channel).Int("delta", delta).Msg("SSE client count changed")
}

// sendEvent writes one SSE frame
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to marshal event data")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}

// ClientCount returns the number of open streams
func (h *SSEHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, n := range h.clients {
		count += n
	}
	return count
}

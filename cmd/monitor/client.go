package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	"github.com/zatekoja/clinicqueue/internal/query/views"
	"github.com/zatekoja/clinicqueue/internal/realtime"
)

// queueClient reads listings from the queue API
type queueClient struct {
	baseURL    string
	httpClient *http.Client
}

func newQueueClient(baseURL string) *queueClient {
	return &queueClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type listResponse struct {
	Date    string                 `json:"date"`
	Entries []*entities.QueueEntry `json:"entries"`
	Count   int                    `json:"count"`
}

// List fetches the clinic day's queue, optionally for one room
func (c *queueClient) List(ctx context.Context, date, room string) ([]*entities.QueueEntry, error) {
	query := url.Values{"date": []string{date}}
	if room != "" {
		query.Set("room_id", room)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/queue?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("queue API returned %d", resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode queue listing: %w", err)
	}
	return body.Entries, nil
}

func topicFor(room string) string {
	if room == "" {
		return providers.EventChannelReceptionist
	}
	return providers.RoomChannel(room)
}

// streamEvents subscribes to topic on the stream server and forwards every
// frame until the connection drops or ctx ends.
func streamEvents(ctx context.Context, endpoint, topic string, out chan<- []byte) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := conn.WriteJSON(realtime.ClientMessage{Action: "subscribe", Topics: []string{topic}}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return nil
		}
	}
}

// applyMessage patches the view from a pushed frame. Control replies and
// frames that are not queue events are ignored.
func applyMessage(view *views.QueueView, data []byte) bool {
	var event entities.QueueStatusEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Entry == nil {
		return false
	}
	return view.Apply(&event)
}

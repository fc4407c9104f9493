package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicqueue/internal/adapters/events"
	"github.com/zatekoja/clinicqueue/internal/api/handlers"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/realtime"
)

func dialHub(t *testing.T, origins []string, header http.Header) (*websocket.Conn, *events.MemoryEventBus, *realtime.Hub, error) {
	t.Helper()
	bus := events.NewMemoryEventBus()
	hub := realtime.NewHub(bus, nil)
	handler := handlers.NewWebSocketHandler(hub, origins, time.Minute, 8)

	server := httptest.NewServer(http.HandlerFunc(handler.Connect))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
		bus.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, bus, hub, err
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestWebSocketHandler_SubscribeAndReceive(t *testing.T) {
	conn, bus, hub, err := dialHub(t, []string{"*"}, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(realtime.ClientMessage{Action: "subscribe", Topics: []string{"room.3", "receptionist", "nope"}}))

	var ack map[string]interface{}
	readJSON(t, conn, &ack)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, []interface{}{"nope"}, ack["rejected"])
	assert.Equal(t, 1, hub.TopicCount("room.3"))

	event := entities.NewQueueStatusEvent(&entities.QueueEntry{
		ID: "q-7", RoomID: "3", Status: entities.QueueStatusInConsultation, Version: 2,
	}, entities.QueueEventUpdated)
	require.NoError(t, bus.Publish(context.Background(), "room.3", event))

	var got entities.QueueStatusEvent
	readJSON(t, conn, &got)
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, "q-7", got.Entry.ID)
	assert.Equal(t, entities.QueueStatusInConsultation, got.Entry.Status)
}

func TestWebSocketHandler_MalformedMessage(t *testing.T) {
	conn, _, _, err := dialHub(t, []string{"*"}, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var reply map[string]interface{}
	readJSON(t, conn, &reply)
	assert.Equal(t, "error", reply["type"])
}

func TestWebSocketHandler_DisconnectUnregisters(t *testing.T) {
	conn, _, hub, err := dialHub(t, []string{"*"}, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(realtime.ClientMessage{Action: "subscribe", Topics: []string{"receptionist"}}))
	var ack map[string]interface{}
	readJSON(t, conn, &ack)
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.TopicCount("receptionist"))
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	header := http.Header{"Origin": []string{"https://evil.test"}}
	_, _, _, err := dialHub(t, []string{"https://desk.clinic.test"}, header)
	assert.Error(t, err)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/realtime"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4096
)

// controlReply acknowledges a client control message
type controlReply struct {
	Type     string   `json:"type"`
	Action   string   `json:"action,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// WebSocketHandler upgrades dashboard connections and attaches them to the hub
type WebSocketHandler struct {
	hub       *realtime.Hub
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	buffer    int
}

// NewWebSocketHandler creates a handler. allowedOrigins follows the CORS
// setting; "*" accepts any origin.
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string, heartbeat time.Duration, buffer int) *WebSocketHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	wildcard := slices.Contains(allowedOrigins, "*")
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return wildcard || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		heartbeat: heartbeat,
		buffer:    buffer,
	}
}

// Connect handles GET /api/ws
func (h *WebSocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.buffer)
	h.hub.Register(client)
	log.Info().Str("client_id", client.ID).Msg("WebSocket client connected")

	go h.writePump(client, conn)
	h.readPump(client, conn)
}

func (h *WebSocketHandler) readPump(client *realtime.Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
		log.Info().Str("client_id", client.ID).Msg("WebSocket client disconnected")
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg realtime.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(client, controlReply{Type: "error", Error: "malformed message"})
			continue
		}

		rejected, err := h.hub.ProcessMessage(client, msg)
		reply := controlReply{Type: "ack", Action: msg.Action, Rejected: rejected}
		if err != nil {
			reply = controlReply{Type: "error", Action: msg.Action, Rejected: rejected, Error: err.Error()}
		}
		h.reply(client, reply)
	}
}

func (h *WebSocketHandler) writePump(client *realtime.Client, conn *websocket.Conn) {
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a control reply without blocking the read loop
func (h *WebSocketHandler) reply(client *realtime.Client, reply controlReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	h.hub.Deliver(client, data)
}

// ClientCount returns the number of connected WebSocket clients
func (h *WebSocketHandler) ClientCount() int {
	return h.hub.ClientCount()
}

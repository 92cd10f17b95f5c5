package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ordersync/node/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The node serves the in-store UI on the local network
		return true
	},
}

// WebSocketHandler handles WebSocket connections for live node events
type WebSocketHandler struct {
	hub *services.EventHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.EventHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.New().String()
	client := h.hub.NewClient(clientID, conn)

	h.hub.Register(client)

	// Start the write pump in a goroutine
	go client.WritePump()

	// Run the read pump (blocks until connection closes)
	client.ReadPump(h.handleMessage)
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(client *services.EventClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.Event
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.EventTypeSubscribe:
		if topic, ok := messageTopic(msg.Payload); ok {
			h.hub.Subscribe(client, topic)
		}

	case services.EventTypeUnsubscribe:
		if topic, ok := messageTopic(msg.Payload); ok {
			h.hub.Unsubscribe(client, topic)
		}

	case services.EventTypePing:
		response := services.Event{Type: services.EventTypePong}
		if data, err := json.Marshal(response); err == nil {
			client.Send <- data
		}

	default:
		log.Printf("Unknown WebSocket message type: %s", msg.Type)
	}
}

func messageTopic(payload interface{}) (string, bool) {
	if topic, ok := payload.(string); ok {
		return topic, true
	}
	if obj, ok := payload.(map[string]interface{}); ok {
		if topic, ok := obj["topic"].(string); ok {
			return topic, true
		}
	}
	return "", false
}

package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"chitchat-service/internal/models"
	"chitchat-service/internal/observability"
)

// Hub maintains the per-group websocket rooms. Joining and leaving follow the
// client's subscription frames; publishing happens only after the message has
// been durably persisted, so room order reflects persistence order within a
// group.
type Hub struct {
	rooms map[int]map[*Client]bool
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[*Client]bool)}
}

// Join subscribes a client to a group room.
func (h *Hub) Join(groupID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[*Client]bool)
	}
	h.rooms[groupID][client] = true
}

// Leave unsubscribes a client from a group room.
func (h *Hub) Leave(groupID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[groupID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// LeaveAll removes the client from every room it joined.
func (h *Hub) LeaveAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for groupID, clients := range h.rooms {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// Publish delivers a persisted message to every client subscribed to the
// group except the originating connection. Only the connection is excluded:
// the sender's other devices still receive the push, their send path never
// rendered it.
func (h *Hub) Publish(groupID int, msg models.Message, excludeConnID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[groupID]))
	for client := range h.rooms[groupID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	event := models.GroupEvent{Type: models.EventMessage, Message: &msg}
	for _, client := range clients {
		if excludeConnID != "" && client.Info.ConnID == excludeConnID {
			continue
		}
		if err := client.WriteEvent(event); err != nil {
			log.Printf("websocket write error: %v", err)
			client.Close()
			h.Leave(groupID, client)
			h.publishWSError(groupID, client, err)
		}
	}
}

func (h *Hub) publishWSError(groupID int, client *Client, err error) {
	info := client.Info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "group",
			"resource_id": groupID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.groups", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("group", "ws_error")
}

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chitchat-service/internal/auth"
	"chitchat-service/internal/models"
	"chitchat-service/internal/observability"
	"chitchat-service/internal/repositories"
)

// Handler upgrades websocket connections and runs their lifecycle: presence
// registration, group subscription frames, heartbeat, and teardown.
type Handler struct {
	hub       *Hub
	presence  *Presence
	verifier  *auth.TokenVerifier
	groupRepo repositories.GroupRepository
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, presence *Presence, verifier *auth.TokenVerifier, groupRepo repositories.GroupRepository) *Handler {
	return &Handler{hub: hub, presence: presence, verifier: verifier, groupRepo: groupRepo}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeFrame is what clients send to manage group subscriptions.
type subscribeFrame struct {
	Action  string `json:"action"`
	GroupID int    `json:"group_id"`
}

// Handle upgrades the connection and registers the client.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chitchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}

	identity, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	h.presence.Connect(identity.UserID, client)

	// hand the client its connection id so the send path can exclude this
	// connection from its own broadcasts
	if err := client.WriteEvent(models.GroupEvent{Type: models.EventConnected, ConnectionID: info.ConnID}); err != nil {
		h.presence.Disconnect(client)
		client.Close()
		return
	}

	observability.IncWSActive("group")
	observability.IncWSEvent("group", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.groups", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	go h.pingLoop(client)
	go h.readLoop(ctx, client, requestID, traceID)
}

// pingLoop keeps the liveness contract explicit: a peer that stops answering
// pings trips the read deadline and the read loop tears the connection down.
func (h *Handler) pingLoop(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if err := client.Ping(); err != nil {
			client.Close()
			return
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, client *Client, requestID, traceID string) {
	conn := client.conn
	var closeReason string
	defer func() {
		h.hub.LeaveAll(client)
		h.presence.Disconnect(client)
		observability.DecWSActive("group")
		observability.IncWSEvent("group", "ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.groups", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   wsEventPayload(client.Info, "ws_disconnect", time.Since(client.Info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(requestID, traceID))
		client.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("group", "ws_error")
			}
			return
		}

		var frame subscribeFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}

		switch frame.Action {
		case "join":
			member, err := h.groupRepo.IsMember(context.Background(), frame.GroupID, client.Info.UserID)
			if err != nil || !member {
				continue
			}
			h.hub.Join(frame.GroupID, client)
		case "leave":
			h.hub.Leave(frame.GroupID, client)
		}
	}
}

func (h *Handler) validateToken(header string) (auth.Identity, error) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return h.verifier.Verify(header[len(prefix):])
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

func wsEventPayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "group",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}

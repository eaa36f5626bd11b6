package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chitchat-service/internal/models"
)

const (
	writeWait = 10 * time.Second

	// pongWait is how long a peer may stay silent before the read loop
	// gives up on it; pings go out well inside that window so a live peer
	// always answers in time.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client wraps a websocket connection with a write lock so the hub, the
// presence tracker and the ping loop can all write without interleaving
// frames.
type Client struct {
	Info ConnInfo

	conn *websocket.Conn
	mu   sync.Mutex
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{Info: info, conn: conn}
}

// WriteEvent sends a single event frame.
func (c *Client) WriteEvent(event models.GroupEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event)
}

// Ping sends a control ping; the read deadline is refreshed by the pong
// handler installed in the read loop.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

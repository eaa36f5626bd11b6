package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"chitchat-service/internal/models"
)

// Socket maintains the websocket connection and pumps pushed events into a
// Session. Subscriptions are per group: Join before expecting pushes.
type Socket struct {
	conn    *websocket.Conn
	session *Session

	writeMu sync.Mutex
	done    chan struct{}
}

type subscribeFrame struct {
	Action  string `json:"action"`
	GroupID int    `json:"group_id"`
}

// DialSocket connects to the service's websocket endpoint and starts the
// read pump. baseURL is the http(s) service URL; the token authenticates
// the handshake.
func DialSocket(ctx context.Context, baseURL, token string, session *Session) (*Socket, error) {
	wsURL, err := websocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &Socket{
		conn:    conn,
		session: session,
		done:    make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// Join subscribes to a group's room.
func (s *Socket) Join(groupID int) error {
	return s.writeFrame(subscribeFrame{Action: "join", GroupID: groupID})
}

// Leave unsubscribes from a group's room.
func (s *Socket) Leave(groupID int) error {
	return s.writeFrame(subscribeFrame{Action: "leave", GroupID: groupID})
}

// Done is closed when the read pump exits.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Close tears down the connection; the read pump exits shortly after.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func (s *Socket) writeFrame(frame subscribeFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *Socket) readPump() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var event models.GroupEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		s.session.HandleEvent(event)
	}
}

func websocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

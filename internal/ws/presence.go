package ws

import (
	"log"
	"sort"
	"sync"

	"chitchat-service/internal/models"
)

// Presence tracks which users currently hold at least one live connection.
// A user may be connected from several devices at once; they stay online
// until the last of those connections goes away. State is process-lifetime
// only: after a restart clients re-announce themselves on reconnect.
//
// No other component reads or writes the user-connection mapping; everything
// goes through Connect, Disconnect and Snapshot.
type Presence struct {
	mu    sync.RWMutex
	users map[int]map[*Client]bool
	conns map[*Client]int
}

// NewPresence creates an empty presence tracker.
func NewPresence() *Presence {
	return &Presence{
		users: make(map[int]map[*Client]bool),
		conns: make(map[*Client]int),
	}
}

// Connect registers a connection for a user and pushes the current online
// set to every registered connection. The push happens on every connect so a
// client that just arrived sees the current state without a separate fetch.
func (p *Presence) Connect(userID int, client *Client) {
	p.mu.Lock()
	if _, ok := p.users[userID]; !ok {
		p.users[userID] = make(map[*Client]bool)
	}
	p.users[userID][client] = true
	p.conns[client] = userID
	p.mu.Unlock()

	p.broadcast()
}

// Disconnect removes exactly the given connection. The online set is only
// re-broadcast when this was the user's last live connection, so closing one
// of two devices never produces a spurious offline transition.
func (p *Presence) Disconnect(client *Client) {
	p.mu.Lock()
	userID, ok := p.conns[client]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.conns, client)
	wentOffline := false
	if conns, ok := p.users[userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(p.users, userID)
			wentOffline = true
		}
	}
	p.mu.Unlock()

	if wentOffline {
		p.broadcast()
	}
}

// Snapshot returns the ids of all currently online users, sorted.
func (p *Presence) Snapshot() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]int, 0, len(p.users))
	for id := range p.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (p *Presence) broadcast() {
	online := p.Snapshot()

	p.mu.RLock()
	clients := make([]*Client, 0, len(p.conns))
	for client := range p.conns {
		clients = append(clients, client)
	}
	p.mu.RUnlock()

	event := models.GroupEvent{Type: models.EventPresence, Online: online}
	for _, client := range clients {
		if err := client.WriteEvent(event); err != nil {
			// the client's read loop notices the dead connection and
			// runs the full disconnect path
			log.Printf("presence write error: %v", err)
		}
	}
}

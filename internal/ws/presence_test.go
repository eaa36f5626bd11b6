package ws

import (
	"reflect"
	"testing"

	"chitchat-service/internal/models"
)

func TestPresenceSnapshotSorted(t *testing.T) {
	p := NewPresence()

	c9, _ := newTestClient(t, ConnInfo{ConnID: "a", UserID: 9})
	c2, _ := newTestClient(t, ConnInfo{ConnID: "b", UserID: 2})
	p.Connect(9, c9)
	p.Connect(2, c2)

	if got := p.Snapshot(); !reflect.DeepEqual(got, []int{2, 9}) {
		t.Fatalf("expected sorted snapshot, got %v", got)
	}
}

func TestPresenceBroadcastOnConnect(t *testing.T) {
	p := NewPresence()

	first, firstPeer := newTestClient(t, ConnInfo{ConnID: "a", UserID: 1})
	p.Connect(1, first)

	event := readEvent(t, firstPeer)
	if event.Type != models.EventPresence {
		t.Fatalf("expected presence event, got %q", event.Type)
	}
	if !reflect.DeepEqual(event.Online, []int{1}) {
		t.Fatalf("expected online [1], got %v", event.Online)
	}

	second, _ := newTestClient(t, ConnInfo{ConnID: "b", UserID: 2})
	p.Connect(2, second)

	event = readEvent(t, firstPeer)
	if !reflect.DeepEqual(event.Online, []int{1, 2}) {
		t.Fatalf("expected online [1 2], got %v", event.Online)
	}
}

func TestPresenceUserStaysOnlineUntilLastConnection(t *testing.T) {
	p := NewPresence()

	phone, _ := newTestClient(t, ConnInfo{ConnID: "phone", UserID: 1})
	laptop, _ := newTestClient(t, ConnInfo{ConnID: "laptop", UserID: 1})
	watcher, watcherPeer := newTestClient(t, ConnInfo{ConnID: "w", UserID: 2})

	p.Connect(1, phone)
	p.Connect(1, laptop)
	p.Connect(2, watcher)

	// drain the broadcast from the watcher's own connect
	readEvent(t, watcherPeer)

	p.Disconnect(phone)

	// first device down: user 1 still online, no broadcast
	expectNoEvent(t, watcherPeer)
	if got := p.Snapshot(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("expected [1 2], got %v", got)
	}

	p.Disconnect(laptop)

	event := readEvent(t, watcherPeer)
	if !reflect.DeepEqual(event.Online, []int{2}) {
		t.Fatalf("expected online [2] after last disconnect, got %v", event.Online)
	}
}

func TestPresenceDisconnectUnknownClient(t *testing.T) {
	p := NewPresence()
	p.Disconnect(&Client{})

	if got := p.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}

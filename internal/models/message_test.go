package models

import "testing"

func TestDeletedForUser(t *testing.T) {
	msg := Message{DeletedFor: []int64{3, 8}}

	if !msg.DeletedForUser(3) {
		t.Fatalf("expected message hidden for user 3")
	}
	if msg.DeletedForUser(4) {
		t.Fatalf("expected message visible for user 4")
	}

	var empty Message
	if empty.DeletedForUser(3) {
		t.Fatalf("expected message with no deletions visible for everyone")
	}
}

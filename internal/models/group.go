package models

import "time"

// Group represents a chat group. Membership is a set: duplicates are
// collapsed on create and the owner is always a member.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupSummary is the conversation-list view of a group. LastMessage is
// derived at read time from the most recent message still visible to the
// requesting user; it is never stored.
type GroupSummary struct {
	Group
	Members     []int    `json:"members"`
	LastMessage *Message `json:"last_message,omitempty"`
}

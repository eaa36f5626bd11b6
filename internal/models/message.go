package models

import (
	"time"

	"github.com/lib/pq"
)

// AssistantSenderID is the reserved sender id for messages authored by the
// AI participant. It can never collide with a real user id issued by the
// identity service, which starts at 1.
const AssistantSenderID = 0

// AssistantSenderName is the display name attached to AI messages.
const AssistantSenderName = "AI Assistant"

// Message represents a message sent in a group. Reply and forward context is
// denormalized onto the row: a reply carries the quoted sender and snippet,
// not a live reference, and a forwarded copy carries where it came from.
type Message struct {
	ID         int    `db:"id" json:"id"`
	GroupID    int    `db:"group_id" json:"group_id"`
	SenderID   int    `db:"sender_id" json:"sender_id"`
	SenderName string `db:"sender_name" json:"sender_name"`
	Content    string `db:"content" json:"content"`
	IsAI       bool   `db:"is_ai" json:"is_ai"`

	ReplyToSender  *string `db:"reply_sender_name" json:"reply_to_sender,omitempty"`
	ReplyToSnippet *string `db:"reply_snippet" json:"reply_to_snippet,omitempty"`

	ForwardedFromSender    *string `db:"forwarded_from_sender" json:"forwarded_from_sender,omitempty"`
	ForwardedFromGroup     *string `db:"forwarded_from_group" json:"forwarded_from_group,omitempty"`
	ForwardedFromMessageID *int64  `db:"forwarded_from_message_id" json:"forwarded_from_message_id,omitempty"`

	// DeletedFor lists user ids for whom this message is invisible. The
	// message remains the canonical record for everyone else.
	DeletedFor pq.Int64Array `db:"deleted_for" json:"-"`

	Seen      bool      `db:"seen" json:"seen"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DeletedForUser reports whether the message is hidden for the given user.
func (m Message) DeletedForUser(userID int) bool {
	for _, id := range m.DeletedFor {
		if int(id) == userID {
			return true
		}
	}
	return false
}

// GroupEvent is emitted over WebSocket connections for groups.
type GroupEvent struct {
	Type         string   `json:"type"`
	Message      *Message `json:"message,omitempty"`
	ConnectionID string   `json:"connection_id,omitempty"`
	Online       []int    `json:"online,omitempty"`
}

// Event type values for GroupEvent.
const (
	EventMessage   = "message"
	EventConnected = "connected"
	EventPresence  = "presence"
)

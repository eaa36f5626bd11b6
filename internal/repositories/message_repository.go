package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chitchat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, group_id, sender_id, sender_name, content, is_ai,
	reply_sender_name, reply_snippet,
	forwarded_from_sender, forwarded_from_group, forwarded_from_message_id,
	deleted_for, seen, created_at`

// CreateMessageParams carries everything needed to persist a new message.
// Reply and forward context is optional and stored denormalized.
type CreateMessageParams struct {
	GroupID    int
	SenderID   int
	SenderName string
	Content    string
	IsAI       bool

	ReplyToSender  *string
	ReplyToSnippet *string

	ForwardedFromSender    *string
	ForwardedFromGroup     *string
	ForwardedFromMessageID *int64
}

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (models.Message, error)
	ListGroupMessagesForUser(ctx context.Context, groupID int, userID int) ([]models.Message, error)
	ListMessagesSince(ctx context.Context, groupID int, since time.Time) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	LastMessageForUser(ctx context.Context, groupID int, userID int) (*models.Message, error)
	AddDeletedFor(ctx context.Context, messageID int, userID int) error
	MarkSeen(ctx context.Context, messageID int) error
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message and returns the canonical row.
func (r *MessageRepo) CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_messages
		(group_id, sender_id, sender_name, content, is_ai,
		 reply_sender_name, reply_snippet,
		 forwarded_from_sender, forwarded_from_group, forwarded_from_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+messageColumns,
		p.GroupID, p.SenderID, p.SenderName, p.Content, p.IsAI,
		p.ReplyToSender, p.ReplyToSnippet,
		p.ForwardedFromSender, p.ForwardedFromGroup, p.ForwardedFromMessageID).
		StructScan(&msg)
	return msg, err
}

// ListGroupMessagesForUser returns messages ordered by creation, excluding
// those soft-deleted for the requesting user.
func (r *MessageRepo) ListGroupMessagesForUser(ctx context.Context, groupID int, userID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM group_messages
		WHERE group_id=$1 AND NOT ($2 = ANY(deleted_for))
		ORDER BY created_at ASC, id ASC`, groupID, userID)
	return msgs, err
}

// ListMessagesSince returns messages in the trailing window starting at
// since, ordered by creation. Used by the summary command.
func (r *MessageRepo) ListMessagesSince(ctx context.Context, groupID int, since time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM group_messages
		WHERE group_id=$1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC`, groupID, since)
	return msgs, err
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM group_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// LastMessageForUser returns the most recent message still visible to the
// user, or nil when the group has none.
func (r *MessageRepo) LastMessageForUser(ctx context.Context, groupID int, userID int) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM group_messages
		WHERE group_id=$1 AND NOT ($2 = ANY(deleted_for))
		ORDER BY created_at DESC, id DESC LIMIT 1`, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AddDeletedFor hides a message from one user. Other participants are
// unaffected and not notified.
func (r *MessageRepo) AddDeletedFor(ctx context.Context, messageID int, userID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE group_messages
		SET deleted_for = array_append(deleted_for, $2)
		WHERE id=$1 AND NOT ($2 = ANY(deleted_for))`, messageID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		// already hidden or missing; distinguish for the caller
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_messages WHERE id=$1)`, messageID); err != nil {
			return err
		}
		if !exists {
			return ErrMessageNotFound
		}
	}
	return nil
}

// MarkSeen flags a message as seen.
func (r *MessageRepo) MarkSeen(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE group_messages SET seen = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

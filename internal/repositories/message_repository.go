package repositories

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
)

// MessageFilter selects the stream a page is cut from.
type MessageFilter struct {
	ConversationID string
	Type           models.MessageType
}

// Conversation selects the private conversation between a and b, in either direction.
func Conversation(a, b int64) MessageFilter {
	return MessageFilter{ConversationID: models.ConversationID(a, b)}
}

// Feed selects the public broadcast stream.
func Feed() MessageFilter {
	return MessageFilter{Type: models.MessageChat}
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Save(ctx context.Context, msg models.Message) (models.Message, error)
	Page(ctx context.Context, filter MessageFilter, cursor *Cursor, limit int) ([]models.Message, error)
	UnreadBySender(ctx context.Context, recipientID int64) (map[int64]int64, error)
	MarkRead(ctx context.Context, recipientID, senderID int64) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, recipient_id, message_type, content, content_type, color,
        reply_to_id, file_url, file_name, file_size, iv, wrapped_key_recipient, wrapped_key_sender,
        is_read, is_edited, is_deleted, created_at`

// Save stores a message and returns it with its id.
func (r *MessageRepo) Save(ctx context.Context, msg models.Message) (models.Message, error) {
	query := `INSERT INTO messages (conversation_id, sender_id, recipient_id, message_type, content, content_type, color,
            reply_to_id, file_url, file_name, file_size, iv, wrapped_key_recipient, wrapped_key_sender, created_at)
        VALUES (:conversation_id, :sender_id, :recipient_id, :message_type, :content, :content_type, :color,
            :reply_to_id, :file_url, :file_name, :file_size, :iv, :wrapped_key_recipient, :wrapped_key_sender, :created_at)
        RETURNING id`
	named, args, err := sqlx.Named(query, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("bind message: %w", err)
	}
	named = sqlx.Rebind(sqlx.DOLLAR, named)

	if err := db.Conn(ctx, r.db).QueryRowxContext(ctx, named, args...).Scan(&msg.ID); err != nil {
		return models.Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// Page returns up to limit messages of filter strictly older than cursor,
// ordered newest first with the id as tie-break.
func (r *MessageRepo) Page(ctx context.Context, filter MessageFilter, cursor *Cursor, limit int) ([]models.Message, error) {
	var (
		where string
		args  []any
	)
	if filter.ConversationID != "" {
		where = `conversation_id = $1`
		args = append(args, filter.ConversationID)
	} else {
		where = `message_type = $1`
		args = append(args, string(filter.Type))
	}
	if cursor != nil {
		where += ` AND (created_at, id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	args = append(args, limit)

	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	msgs := []models.Message{}
	if err := db.Conn(ctx, r.db).SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("page messages: %w", err)
	}
	return msgs, nil
}

// UnreadBySender counts unread private messages of recipientID grouped by sender.
func (r *MessageRepo) UnreadBySender(ctx context.Context, recipientID int64) (map[int64]int64, error) {
	rows, err := db.Conn(ctx, r.db).QueryxContext(ctx, `SELECT sender_id, COUNT(*) FROM messages
        WHERE recipient_id=$1 AND message_type='PRIVATE_CHAT' AND is_read = FALSE
        GROUP BY sender_id`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	counts := map[int64]int64{}
	for rows.Next() {
		var sender, n int64
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

// MarkRead flags every unread message from senderID to recipientID as read.
func (r *MessageRepo) MarkRead(ctx context.Context, recipientID, senderID int64) (int64, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE recipient_id=$1 AND sender_id=$2 AND is_read = FALSE`, recipientID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

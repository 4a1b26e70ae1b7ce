package models

import (
	"fmt"
	"time"
)

// MessageType discriminates persisted messages.
type MessageType string

const (
	MessageChat        MessageType = "CHAT"
	MessagePrivateChat MessageType = "PRIVATE_CHAT"
	MessageJoin        MessageType = "JOIN"
	MessageLeave       MessageType = "LEAVE"
)

// Message represents a stored chat message. Encryption fields are opaque.
type Message struct {
	ID                  int64       `db:"id" json:"id"`
	ConversationID      string      `db:"conversation_id" json:"conversationId,omitempty"`
	SenderID            int64       `db:"sender_id" json:"senderId"`
	RecipientID         *int64      `db:"recipient_id" json:"recipientId,omitempty"`
	Type                MessageType `db:"message_type" json:"type"`
	Content             string      `db:"content" json:"content"`
	ContentType         string      `db:"content_type" json:"contentType,omitempty"`
	Color               string      `db:"color" json:"color,omitempty"`
	ReplyToID           *int64      `db:"reply_to_id" json:"replyToId,omitempty"`
	FileURL             string      `db:"file_url" json:"fileUrl,omitempty"`
	FileName            string      `db:"file_name" json:"fileName,omitempty"`
	FileSize            *int64      `db:"file_size" json:"fileSize,omitempty"`
	IV                  string      `db:"iv" json:"iv,omitempty"`
	WrappedKeyRecipient string      `db:"wrapped_key_recipient" json:"wrappedKeyRecipient,omitempty"`
	WrappedKeySender    string      `db:"wrapped_key_sender" json:"wrappedKeySender,omitempty"`
	IsRead              bool        `db:"is_read" json:"isRead"`
	IsEdited            bool        `db:"is_edited" json:"isEdited"`
	IsDeleted           bool        `db:"is_deleted" json:"isDeleted"`
	CreatedAt           time.Time   `db:"created_at" json:"createdAt"`

	// LocalID is echoed back to the sending client and never stored.
	LocalID string `db:"-" json:"localId,omitempty"`
}

// MessageView is a message enriched with the participants' usernames.
type MessageView struct {
	Message
	SenderUsername    string `json:"sender"`
	SenderAvatar      string `json:"senderAvatar,omitempty"`
	RecipientUsername string `json:"recipient,omitempty"`
}

// ChatMessageRequest is the payload of sendMessage, sendPrivateMessage and addUser frames.
type ChatMessageRequest struct {
	Type                MessageType `json:"type"`
	Content             string      `json:"content"`
	ContentType         string      `json:"contentType"`
	Color               string      `json:"color"`
	Recipient           string      `json:"recipient"`
	ReplyToID           *int64      `json:"replyToId"`
	FileURL             string      `json:"fileUrl"`
	FileName            string      `json:"fileName"`
	FileSize            *int64      `json:"fileSize"`
	IV                  string      `json:"iv"`
	WrappedKeyRecipient string      `json:"wrappedKeyRecipient"`
	WrappedKeySender    string      `json:"wrappedKeySender"`
	LocalID             string      `json:"localId"`
}

// ToMessage copies the client supplied fields into a new message.
func (r ChatMessageRequest) ToMessage(senderID int64) Message {
	return Message{
		SenderID:            senderID,
		Type:                r.Type,
		Content:             r.Content,
		ContentType:         r.ContentType,
		Color:               r.Color,
		ReplyToID:           r.ReplyToID,
		FileURL:             r.FileURL,
		FileName:            r.FileName,
		FileSize:            r.FileSize,
		IV:                  r.IV,
		WrappedKeyRecipient: r.WrappedKeyRecipient,
		WrappedKeySender:    r.WrappedKeySender,
		LocalID:             r.LocalID,
	}
}

// ConversationID returns the order-independent key of a private conversation.
func ConversationID(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

// MarkReadRequest is the body of the mark-as-read endpoint.
type MarkReadRequest struct {
	Sender string `json:"sender" binding:"required"`
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

// MessageQueries is the read side of the message store.
type MessageQueries interface {
	PrivateHistory(ctx context.Context, callerID int64, user1, user2, cursor string, size int) (models.CursorPage[models.MessageView], error)
	PublicHistory(ctx context.Context, cursor string, size int) (models.CursorPage[models.MessageView], error)
	UnreadCounts(ctx context.Context, recipientID int64) (map[string]int64, error)
	MarkRead(ctx context.Context, recipientID int64, sender string) (int64, error)
}

// MessageHandler serves message history and unread state.
type MessageHandler struct {
	messages MessageQueries
	log      *zap.Logger
}

func NewMessageHandler(messages MessageQueries, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, log: log}
}

// Register mounts the message routes on group.
func (h *MessageHandler) Register(group gin.IRoutes) {
	group.GET("/messages/private", h.PrivateHistory)
	group.GET("/messages/group", h.PublicHistory)
	group.GET("/messages/unread-counts", h.UnreadCounts)
	group.POST("/messages/mark-as-read", h.MarkRead)
}

// PrivateHistory pages the conversation between user1 and user2.
func (h *MessageHandler) PrivateHistory(c *gin.Context) {
	user1, user2 := c.Query("user1"), c.Query("user2")
	if user1 == "" || user2 == "" {
		fail(c, h.log, errs.E(errs.ErrInvalidInput, "user1 and user2 are required"))
		return
	}
	size, err := queryInt(c, "size", 0)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	page, err := h.messages.PrivateHistory(c.Request.Context(), principal(c).UserID, user1, user2, c.Query("cursor"), size)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "private messages", page)
}

// PublicHistory pages the public stream.
func (h *MessageHandler) PublicHistory(c *gin.Context) {
	size, err := queryInt(c, "size", 0)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	page, err := h.messages.PublicHistory(c.Request.Context(), c.Query("cursor"), size)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "public messages", page)
}

func (h *MessageHandler) UnreadCounts(c *gin.Context) {
	counts, err := h.messages.UnreadCounts(c.Request.Context(), principal(c).UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "unread counts", counts)
}

// MarkRead marks every message from the given sender to the caller as read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req models.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, h.log, errs.E(errs.ErrInvalidInput, "sender is required"))
		return
	}

	n, err := h.messages.MarkRead(c.Request.Context(), principal(c).UserID, req.Sender)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "messages marked as read", gin.H{"updated": n})
}

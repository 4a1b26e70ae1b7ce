package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-realtime/internal/models"
)

// FriendCommands is the friendship surface exposed over HTTP.
type FriendCommands interface {
	ListFriends(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error)
	ListPending(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error)
	ListSent(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error)
	DeleteFriendship(ctx context.Context, callerID int64, target string) error
	BlockUser(ctx context.Context, blockerID int64, target string) (models.Friendship, error)
	UnblockUser(ctx context.Context, blockerID int64, target string) error
}

// FriendHandler serves friend lists and the edge mutations that have no
// streaming counterpart.
type FriendHandler struct {
	friends FriendCommands
	log     *zap.Logger
}

func NewFriendHandler(friends FriendCommands, log *zap.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, log: log}
}

// Register mounts the friend routes on group.
func (h *FriendHandler) Register(group gin.IRoutes) {
	group.GET("/friends", h.list(h.friends.ListFriends, "friends"))
	group.GET("/friends/requests", h.list(h.friends.ListPending, "pending requests"))
	group.GET("/friends/sent", h.list(h.friends.ListSent, "sent requests"))
	group.DELETE("/friends/:username", h.Delete)
	group.POST("/friends/block/:username", h.Block)
	group.DELETE("/friends/block/:username", h.Unblock)
}

type listFunc func(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error)

func (h *FriendHandler) list(fn listFunc, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pageRequest(c)
		if err != nil {
			fail(c, h.log, err)
			return
		}
		resp, err := fn(c.Request.Context(), principal(c).UserID, page)
		if err != nil {
			fail(c, h.log, err)
			return
		}
		ok(c, message, resp)
	}
}

func pageRequest(c *gin.Context) (models.PageRequest, error) {
	page, err := queryInt(c, "page", 0)
	if err != nil {
		return models.PageRequest{}, err
	}
	size, err := queryInt(c, "size", 0)
	if err != nil {
		return models.PageRequest{}, err
	}
	return models.PageRequest{Page: page, Size: size, SortBy: c.Query("sortBy")}, nil
}

// Delete cancels, rejects or unfriends depending on the edge state.
func (h *FriendHandler) Delete(c *gin.Context) {
	if err := h.friends.DeleteFriendship(c.Request.Context(), principal(c).UserID, c.Param("username")); err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "friendship removed", nil)
}

func (h *FriendHandler) Block(c *gin.Context) {
	edge, err := h.friends.BlockUser(c.Request.Context(), principal(c).UserID, c.Param("username"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "user blocked", edge)
}

func (h *FriendHandler) Unblock(c *gin.Context) {
	if err := h.friends.UnblockUser(c.Request.Context(), principal(c).UserID, c.Param("username")); err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "user unblocked", nil)
}

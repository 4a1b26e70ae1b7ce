package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-realtime/internal/models"
)

// UserQueries lists identities with at least one bound session and checks
// usernames against the account directory.
type UserQueries interface {
	ListOnline(ctx context.Context) (map[string]models.UserSummary, error)
	UserExists(ctx context.Context, username string) (bool, error)
}

type UserHandler struct {
	presence UserQueries
	log      *zap.Logger
}

func NewUserHandler(presence UserQueries, log *zap.Logger) *UserHandler {
	return &UserHandler{presence: presence, log: log}
}

func (h *UserHandler) Register(group gin.IRoutes) {
	group.GET("/users/online", h.Online)
	group.GET("/users/exists", h.Exists)
}

// Online returns the online identities keyed by username.
func (h *UserHandler) Online(c *gin.Context) {
	online, err := h.presence.ListOnline(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "online users", online)
}

// Exists reports whether the username query parameter names a registered user.
func (h *UserHandler) Exists(c *gin.Context) {
	username := c.Query("username")
	exists, err := h.presence.UserExists(c.Request.Context(), username)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, "user lookup", gin.H{"username": username, "exists": exists})
}

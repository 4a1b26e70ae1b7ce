package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
)

var errInvalidQuery = errs.E(errs.ErrInvalidInput, "invalid query parameter")

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, models.APIResponse{Code: http.StatusOK, Message: message, Data: data})
}

// fail writes err as an envelope. Errors of unknown kind are logged and
// answered with a generic message.
func fail(c *gin.Context, log *zap.Logger, err error) {
	status := errs.Status(err)
	if !errs.IsKnown(err) {
		logging.FromContext(c.Request.Context(), log).Error("request failed",
			zap.String("route", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, models.APIResponse{Code: status, Message: errs.Message(err)})
}

func principal(c *gin.Context) auth.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errInvalidQuery
	}
	return n, nil
}

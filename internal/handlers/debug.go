package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/models"
	"chat-realtime/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, models.APIResponse{Code: http.StatusServiceUnavailable, Message: "audit emitter not configured"})
			return
		}
		emitter.Action(c.Request.Context(), telemetry.LevelInfo, "debug.audit_test", "audit test", requestID(c), principal(c).UserID)
		ok(c, "audit emitted", nil)
	})
}

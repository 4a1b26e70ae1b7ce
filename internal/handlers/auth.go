package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/service"
	"chat-realtime/internal/telemetry"
)

// RefreshTokenCookie carries the refresh token when the body does not.
const RefreshTokenCookie = "refreshToken"

// SessionCommands refreshes and revokes credentials.
type SessionCommands interface {
	Refresh(ctx context.Context, refreshToken string) (service.TokenPair, error)
	Logout(ctx context.Context, p auth.Principal, refreshToken string) error
	LogoutAll(ctx context.Context, p auth.Principal) (int, error)
}

type AuthHandler struct {
	sessions SessionCommands
	audit    *telemetry.AuditEmitter
	log      *zap.Logger
}

func NewAuthHandler(sessions SessionCommands, audit *telemetry.AuditEmitter, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, audit: audit, log: log}
}

// RegisterPublic mounts the routes that authenticate with a refresh token.
func (h *AuthHandler) RegisterPublic(group gin.IRoutes) {
	group.POST("/auth/refresh", h.Refresh)
}

// Register mounts the routes that require an access token.
func (h *AuthHandler) Register(group gin.IRoutes) {
	group.POST("/auth/logout", h.Logout)
	group.POST("/auth/logout-all", h.LogoutAll)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func refreshToken(c *gin.Context) string {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if req.RefreshToken != "" {
		return auth.StripBearer(req.RefreshToken)
	}
	if cookie, err := c.Cookie(RefreshTokenCookie); err == nil {
		return auth.StripBearer(cookie)
	}
	return ""
}

// Refresh trades a refresh token for a new access token and sets the access
// cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	pair, err := h.sessions.Refresh(c.Request.Context(), refreshToken(c))
	if err != nil {
		h.audit.Action(c.Request.Context(), telemetry.LevelWarn, "auth.refresh_failed", err.Error(), requestID(c), 0)
		fail(c, h.log, err)
		return
	}

	maxAge := int(time.Until(pair.AccessExpiresAt).Seconds())
	c.SetCookie(auth.AccessTokenCookie, pair.AccessToken, maxAge, "/", "", false, true)
	ok(c, "token refreshed", pair)
}

// Logout revokes the caller's access token and, when given, the refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	p := principal(c)
	if err := h.sessions.Logout(c.Request.Context(), p, refreshToken(c)); err != nil {
		fail(c, h.log, err)
		return
	}

	clearCookies(c)
	h.audit.Action(c.Request.Context(), telemetry.LevelInfo, "auth.logout", "session logged out", requestID(c), p.UserID)
	ok(c, "logged out", nil)
}

// LogoutAll invalidates every token issued to the caller.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	p := principal(c)
	version, err := h.sessions.LogoutAll(c.Request.Context(), p)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	clearCookies(c)
	h.audit.Action(c.Request.Context(), telemetry.LevelWarn, "auth.logout_all", "all sessions revoked", requestID(c), p.UserID)
	ok(c, "all sessions revoked", gin.H{"tokenVersion": version})
}

func clearCookies(c *gin.Context) {
	c.SetCookie(auth.AccessTokenCookie, "", -1, "/", "", false, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", false, true)
}

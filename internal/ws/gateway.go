package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

var (
	ErrConnectRequired = errs.E(errs.ErrAuthenticationFailed, "first frame must be CONNECT")
	ErrConnectTimeout  = errs.E(errs.ErrAuthenticationFailed, "CONNECT frame not received")
	ErrMalformedFrame  = errs.E(errs.ErrInvalidInput, "malformed frame")
	ErrUnknownFrame    = errs.E(errs.ErrInvalidInput, "unknown frame type")
	ErrAlreadyBound    = errs.E(errs.ErrInvalidInput, "session is already connected")
	ErrRateLimited     = errs.E(errs.ErrInvalidInput, "too many frames, slow down")
)

// Authenticator verifies a raw access token.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (auth.Principal, error)
}

// MessageService handles chat frames.
type MessageService interface {
	Join(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error)
	SendPublic(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error)
	SendPrivate(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error)
	Leave(ctx context.Context, user models.User)
}

// FriendService handles friendship frames.
type FriendService interface {
	SendRequest(ctx context.Context, requesterID int64, addressee string) (models.Friendship, error)
	AcceptRequest(ctx context.Context, acceptorID int64, requester string) (models.Friendship, error)
}

// PresenceService counts sessions across nodes.
type PresenceService interface {
	Connect(ctx context.Context, id int64) (bool, error)
	Disconnect(ctx context.Context, id int64) (bool, error)
}

// Options tune a Gateway. PongWait bounds the silence tolerated from a bound
// peer; pings go out every PingPeriod, nine tenths of PongWait by default.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	FrameRate        float64
	FrameBurst       int
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxFrameBytes    int64
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.FrameBurst <= 0 {
		o.FrameBurst = 20
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	return o
}

// Gateway upgrades connections, binds them to a verified identity on CONNECT
// and routes application frames.
type Gateway struct {
	hub      *Hub
	authn    Authenticator
	messages MessageService
	friends  FriendService
	presence PresenceService
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, authn Authenticator, messages MessageService, friends FriendService,
	presence PresenceService, opts Options, log *zap.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		authn:    authn,
		messages: messages,
		friends:  friends,
		presence: presence,
		opts:     opts.withDefaults(),
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and serves it until it closes.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	token := handshakeToken(c.Request)

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		g.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(g.opts.MaxFrameBytes)

	info := ConnInfo{
		ConnID:      newConnID(),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	var limiter *rate.Limiter
	if g.opts.FrameRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.opts.FrameRate), g.opts.FrameBurst)
	}
	sess := newSession(conn, info, g.opts.WriteTimeout, limiter)

	p, err := g.bind(ctx, sess, token)
	span.End()
	if err != nil {
		g.reject(ctx, sess, err)
		return
	}
	sess.info.UserID = p.UserID
	sess.info.Username = p.Username

	_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})
	g.serve(context.WithoutCancel(ctx), sess, p)
}

// bind waits for CONNECT and authenticates the session. No other frame is
// accepted before it succeeds.
func (g *Gateway) bind(ctx context.Context, sess *Session, token string) (auth.Principal, error) {
	_ = sess.conn.SetReadDeadline(time.Now().Add(g.opts.HandshakeTimeout))
	_, data, err := sess.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return auth.Principal{}, err
		}
		return auth.Principal{}, ErrConnectTimeout
	}
	_ = sess.conn.SetReadDeadline(time.Time{})

	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return auth.Principal{}, ErrMalformedFrame
	}
	if frame.Type != models.FrameConnect {
		return auth.Principal{}, ErrConnectRequired
	}
	if token == "" {
		token = connectToken(frame.Token, frame.Headers)
	}
	return g.authn.Authenticate(ctx, token)
}

func (g *Gateway) reject(ctx context.Context, sess *Session, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		_ = sess.Close()
		return
	}

	code := errs.Code(err)
	observability.IncAuthFailure("ws", code)
	g.log.Info("websocket connect rejected", zap.String("conn_id", sess.info.ConnID), zap.String("code", code), zap.Error(err))
	_ = sess.SendFrame(errorFrame(err))
	sess.closeWith(websocket.ClosePolicyViolation, code)
	publishLifecycle(ctx, "ws_rejected", sess.info, code)
}

func errorFrame(err error) models.SocketResponse {
	return models.ErrorFrame(errs.Message(err), map[string]string{"code": errs.Code(err)})
}

func (g *Gateway) serve(ctx context.Context, sess *Session, p auth.Principal) {
	log := g.log.With(zap.String("conn_id", sess.info.ConnID), zap.Int64("user_id", p.UserID))
	g.hub.Register(sess)
	if _, err := g.presence.Connect(ctx, p.UserID); err != nil {
		log.Warn("presence connect failed", zap.Error(err))
	}

	observability.IncWSActive(wsKind)
	publishLifecycle(ctx, "ws_connect", sess.info, "")
	_ = sess.SendFrame(models.SocketResponse{
		Destination: models.DestinationSession,
		Type:        models.FrameConnected,
		Message:     "connected",
		Data:        map[string]any{"userId": p.UserID, "username": p.Username},
	})

	stopPing := make(chan struct{})
	go g.keepAlive(sess, stopPing, log)

	var closeReason string
	defer func() {
		close(stopPing)
		g.hub.Unregister(sess)
		_ = sess.Close()
		last, err := g.presence.Disconnect(ctx, p.UserID)
		if err != nil {
			log.Warn("presence disconnect failed", zap.Error(err))
		}
		if last {
			g.messages.Leave(ctx, models.User{ID: p.UserID, Username: p.Username})
		}
		observability.DecWSActive(wsKind)
		publishLifecycle(ctx, "ws_disconnect", sess.info, closeReason)
	}()

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(ctx, "ws_error", sess.info, closeReason)
			}
			return
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
		if !sess.allow() {
			observability.IncWSFrame("unknown", "rate_limited")
			_ = sess.SendFrame(errorFrame(ErrRateLimited))
			continue
		}
		g.route(ctx, sess, p, data, log)
	}
}

// keepAlive pings the peer until stop closes. A failed ping closes the
// session, which ends the read loop and runs the disconnect path.
func (g *Gateway) keepAlive(sess *Session, stop <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(g.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sess.Ping(); err != nil {
				if !errors.Is(err, errSessionClosed) {
					log.Debug("websocket ping failed", zap.Error(err))
				}
				_ = sess.Close()
				return
			}
		}
	}
}

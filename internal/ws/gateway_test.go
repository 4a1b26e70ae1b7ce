package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
)

var (
	_ MessageService  = (*mocks.MessageServiceMock)(nil)
	_ FriendService   = (*mocks.FriendServiceMock)(nil)
	_ PresenceService = (*mocks.PresenceServiceMock)(nil)
)

type fakeAuth map[string]auth.Principal

func (f fakeAuth) Authenticate(_ context.Context, raw string) (auth.Principal, error) {
	if raw == "" {
		return auth.Principal{}, auth.ErrMissingToken
	}
	p, ok := f[raw]
	if !ok {
		return auth.Principal{}, auth.ErrTokenSignature
	}
	return p, nil
}

type gatewayFixture struct {
	hub      *Hub
	messages *mocks.MessageServiceMock
	friends  *mocks.FriendServiceMock
	presence *mocks.PresenceServiceMock
	url      string
	left     chan struct{}
}

func newGatewayFixture(t *testing.T, opts Options) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &gatewayFixture{
		hub:      NewHub(zap.NewNop()),
		messages: new(mocks.MessageServiceMock),
		friends:  new(mocks.FriendServiceMock),
		presence: new(mocks.PresenceServiceMock),
		left:     make(chan struct{}, 4),
	}
	f.presence.On("Connect", mock.Anything, int64(1)).Return(true, nil).Maybe()
	f.presence.On("Disconnect", mock.Anything, int64(1)).Return(true, nil).Maybe()
	f.messages.On("Leave", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		f.left <- struct{}{}
	}).Return().Maybe()

	authn := fakeAuth{"good": {UserID: 1, Username: "alice", Token: "good"}}
	gw := NewGateway(f.hub, authn, f.messages, f.friends, f.presence, opts, zap.NewNop())

	router := gin.New()
	router.GET("/ws", gw.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return f
}

func (f *gatewayFixture) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func send(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

type received struct {
	Destination string         `json:"destination"`
	Type        string         `json:"type"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var r received
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func expectClosed(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, code), "unexpected close: %v", err)
}

func connect(t *testing.T, f *gatewayFixture) *websocket.Conn {
	t.Helper()
	conn := f.dial(t, bearer("good"))
	send(t, conn, map[string]any{"type": models.FrameConnect})
	r := read(t, conn)
	require.Equal(t, models.FrameConnected, r.Type)
	require.Equal(t, models.DestinationSession, r.Destination)
	return conn
}

func TestConnectWithoutTokenIsRejected(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	conn := f.dial(t, nil)

	send(t, conn, map[string]any{"type": models.FrameConnect})

	r := read(t, conn)
	assert.Equal(t, models.FrameError, r.Type)
	assert.Equal(t, models.DestinationErrors, r.Destination)
	assert.Equal(t, "AUTHENTICATION_FAILED", r.Data["code"])
	expectClosed(t, conn, websocket.ClosePolicyViolation)
	f.presence.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
}

func TestConnectWithBadTokenIsRejected(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	conn := f.dial(t, bearer("forged"))

	send(t, conn, map[string]any{"type": models.FrameConnect})

	r := read(t, conn)
	assert.Equal(t, models.FrameError, r.Type)
	assert.Equal(t, auth.ErrTokenSignature.Error(), r.Message)
	expectClosed(t, conn, websocket.ClosePolicyViolation)
}

func TestApplicationFrameBeforeConnectIsRejected(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	conn := f.dial(t, bearer("good"))

	send(t, conn, map[string]any{"type": models.FrameSendMessage, "payload": map[string]any{"content": "hi"}})

	r := read(t, conn)
	assert.Equal(t, models.FrameError, r.Type)
	assert.Equal(t, ErrConnectRequired.Error(), r.Message)
	expectClosed(t, conn, websocket.ClosePolicyViolation)
	f.messages.AssertNotCalled(t, "SendPublic", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectTokenFromFrame(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	conn := f.dial(t, nil)

	send(t, conn, map[string]any{"type": models.FrameConnect, "headers": map[string]string{"Authorization": "Bearer good"}})

	r := read(t, conn)
	assert.Equal(t, models.FrameConnected, r.Type)
	assert.Equal(t, "alice", r.Data["username"])
}

func TestBoundSessionRoutesFramesAndSurvivesErrors(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	conn := connect(t, f)

	forbidden := errs.E(errs.ErrAccessForbidden, "private messages are limited to friends")
	f.messages.On("SendPrivate", mock.Anything, int64(1), models.ChatMessageRequest{Recipient: "bob", Content: "hi"}).
		Return(models.MessageView{}, forbidden).Once()
	send(t, conn, map[string]any{
		"type":    models.FrameSendPrivateMessage,
		"payload": map[string]any{"recipient": "bob", "content": "hi"},
	})
	r := read(t, conn)
	assert.Equal(t, models.FrameError, r.Type)
	assert.Equal(t, models.DestinationErrors, r.Destination)
	assert.Equal(t, "ACCESS_FORBIDDEN", r.Data["code"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	r = read(t, conn)
	assert.Equal(t, "INVALID_INPUT", r.Data["code"])

	requested := make(chan struct{})
	f.friends.On("SendRequest", mock.Anything, int64(1), "bob").Run(func(mock.Arguments) {
		close(requested)
	}).Return(models.Friendship{ID: 3}, nil).Once()
	send(t, conn, map[string]any{"type": models.FrameFriendRequest, "payload": map[string]any{"username": "bob"}})
	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("friend request was not routed")
	}

	assert.Equal(t, 1, f.hub.SendToUser(1, []byte(`{"destination":"/user/queue/private","type":"MESSAGE","message":"pushed"}`)))
	r = read(t, conn)
	assert.Equal(t, "pushed", r.Message)
}

func TestLastSessionCloseBroadcastsLeave(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	conn := connect(t, f)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	select {
	case <-f.left:
	case <-time.After(2 * time.Second):
		t.Fatal("leave was not announced")
	}
	f.presence.AssertCalled(t, "Disconnect", mock.Anything, int64(1))
	assert.Eventually(t, func() bool { return f.hub.SessionCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFramesOverRateAreRefused(t *testing.T) {
	f := newGatewayFixture(t, Options{FrameRate: 0.001, FrameBurst: 1})
	conn := connect(t, f)

	send(t, conn, map[string]any{"type": "typing"})
	r := read(t, conn)
	assert.Equal(t, ErrUnknownFrame.Error(), r.Message)

	send(t, conn, map[string]any{"type": "typing"})
	r = read(t, conn)
	assert.Equal(t, ErrRateLimited.Error(), r.Message)
}

func TestSilentPeerIsDisconnected(t *testing.T) {
	f := newGatewayFixture(t, Options{PongWait: 200 * time.Millisecond, PingPeriod: 50 * time.Millisecond})
	// the client stops reading, so pings are never answered
	_ = connect(t, f)

	select {
	case <-f.left:
	case <-time.After(2 * time.Second):
		t.Fatal("silent peer was never disconnected")
	}
	f.presence.AssertCalled(t, "Disconnect", mock.Anything, int64(1))
	assert.Eventually(t, func() bool { return f.hub.SessionCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestResponsivePeerIsKeptAlive(t *testing.T) {
	f := newGatewayFixture(t, Options{PongWait: 200 * time.Millisecond, PingPeriod: 50 * time.Millisecond})
	conn := connect(t, f)
	require.NoError(t, conn.SetReadDeadline(time.Time{}))
	go func() {
		// reading answers pings through the default handler
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 1, f.hub.SessionCount(1))
	assert.Empty(t, f.left)
}

func TestOversizedFrameClosesSession(t *testing.T) {
	f := newGatewayFixture(t, Options{MaxFrameBytes: 256})
	conn := connect(t, f)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 4096))))

	expectClosed(t, conn, websocket.CloseMessageTooBig)
	select {
	case <-f.left:
	case <-time.After(2 * time.Second):
		t.Fatal("leave was not announced")
	}
}

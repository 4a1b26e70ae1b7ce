package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chat-realtime/internal/models"
)

var errSessionClosed = errors.New("session closed")

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one bound connection. Writes are serialised; reads happen on
// the connection's own goroutine only.
type Session struct {
	info         ConnInfo
	conn         Conn
	writeTimeout time.Duration
	limiter      *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func newSession(conn Conn, info ConnInfo, writeTimeout time.Duration, limiter *rate.Limiter) *Session {
	return &Session{info: info, conn: conn, writeTimeout: writeTimeout, limiter: limiter}
}

func (s *Session) UserID() int64 { return s.info.UserID }

func (s *Session) Info() ConnInfo { return s.info }

// Send writes one text frame.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Ping writes a ping control frame under the write lock.
func (s *Session) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *Session) SendFrame(frame models.SocketResponse) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.Send(payload)
}

// allow reports whether one more inbound frame fits the session's rate.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// closeWith sends a close control frame with code and closes the connection.
func (s *Session) closeWith(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
	_ = s.conn.Close()
}

// Close closes the connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

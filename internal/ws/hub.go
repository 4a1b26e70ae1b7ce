// Package ws is the connection gateway: it binds a verified identity to each
// websocket, routes inbound frames to the chat services and delivers outbound
// frames to every session of an identity.
package ws

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"chat-realtime/internal/observability"
)

// Hub tracks the sessions bound on this node, by identity.
type Hub struct {
	byUser map[int64]map[*Session]struct{}
	all    map[*Session]struct{}
	mu     sync.RWMutex
	log    *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		byUser: make(map[int64]map[*Session]struct{}),
		all:    make(map[*Session]struct{}),
		log:    log,
	}
}

// Register adds s. first reports that s is the identity's only session here.
func (h *Hub) Register(s *Session) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions, ok := h.byUser[s.UserID()]
	if !ok {
		sessions = make(map[*Session]struct{})
		h.byUser[s.UserID()] = sessions
	}
	sessions[s] = struct{}{}
	h.all[s] = struct{}{}
	observability.SetOnlineUsers(len(h.byUser))
	return len(sessions) == 1
}

// Unregister removes s. last reports that no session of the identity remains here.
func (h *Hub) Unregister(s *Session) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[s]; !ok {
		return false
	}
	delete(h.all, s)
	sessions := h.byUser[s.UserID()]
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(h.byUser, s.UserID())
		last = true
	}
	observability.SetOnlineUsers(len(h.byUser))
	return last
}

// SessionCount returns the number of sessions bound for userID.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// SendToUser writes payload to every session of userID and returns how many
// sessions received it.
func (h *Hub) SendToUser(userID int64, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.byUser[userID]))
	for s := range h.byUser[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	return h.write(targets, payload)
}

// Broadcast writes payload to every bound session.
func (h *Hub) Broadcast(payload []byte) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.all))
	for s := range h.all {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	return h.write(targets, payload)
}

func (h *Hub) write(targets []*Session, payload []byte) int {
	delivered := 0
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			if errors.Is(err, errSessionClosed) {
				continue
			}
			h.log.Warn("websocket write error", zap.String("conn_id", s.info.ConnID), zap.Error(err))
			_ = s.Close()
			h.Unregister(s)
			publishLifecycle(context.Background(), "ws_error", s.info, err.Error())
			continue
		}
		delivered++
	}
	return delivered
}

package ws

import (
	"context"
	"time"

	"chat-realtime/internal/observability"
)

const (
	wsKind       = "chat"
	wsRoutingKey = "ws_events.sessions"
)

// publishLifecycle emits a ws_events envelope for one session transition.
func publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	var duration int64
	if !info.ConnectedAt.IsZero() {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        wsKind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":  info.UserID,
			"username": info.Username,
			"ip":       info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(wsKind, event)
}

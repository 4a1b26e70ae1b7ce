package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return p.err
}

func TestActionBuildsEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewAuditEmitter(pub, "audit.chat", "chat-realtime", "test", zap.NewNop())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	e.Action(context.Background(), LevelWarn, "logout_all", "all sessions revoked", "req-1", 42)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "audit.chat", pub.keys[0])
	env := pub.events[0].(AuditEnvelope)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "2024-05-01T10:00:00Z", env.OccurredAt)
	assert.Equal(t, "req-1", env.RequestID)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "42", *env.UserID)
	assert.Equal(t, "logout_all", env.Payload.Action)
}

func TestAnonymousActionOmitsUser(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewAuditEmitter(pub, "audit.chat", "chat-realtime", "test", zap.NewNop())

	e.Action(context.Background(), LevelWarn, "auth_failed", "bad token", "", 0)

	require.Len(t, pub.events, 1)
	assert.Nil(t, pub.events[0].(AuditEnvelope).UserID)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	e := NewAuditEmitter(pub, "audit.chat", "chat-realtime", "test", zap.NewNop())

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), LevelInfo, "hello", "", nil)
	})
	assert.Len(t, pub.events, 1)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var e *AuditEmitter
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), LevelInfo, "hello", "", nil)
	})
}

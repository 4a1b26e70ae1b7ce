package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deliverer writes payloads to bound sessions and reports how many received it.
type Deliverer interface {
	SendToUser(userID int64, payload []byte) int
	Broadcast(payload []byte) int
}

// LocalSink delivers to the sessions bound on this node.
type LocalSink struct {
	hub Deliverer
}

// NewLocalSink constructs a LocalSink.
func NewLocalSink(hub Deliverer) *LocalSink {
	return &LocalSink{hub: hub}
}

func (s *LocalSink) Deliver(_ context.Context, ev Event, payload []byte) error {
	if ev.Broadcast {
		s.hub.Broadcast(payload)
		return nil
	}
	if s.hub.SendToUser(ev.UserID, payload) == 0 {
		return ErrNoSession
	}
	return nil
}

// DefaultRelayChannel is the pub/sub channel shared by every node.
const DefaultRelayChannel = "chat:events"

type relayEnvelope struct {
	UserID    int64           `json:"userId,omitempty"`
	Broadcast bool            `json:"broadcast,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisRelay publishes events on a redis channel; every node subscribed with
// Run delivers them to its own sessions.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
	local   Sink
	log     *zap.Logger
}

// NewRedisRelay constructs a RedisRelay that hands received events to local.
func NewRedisRelay(rdb redis.UniversalClient, channel string, local Sink, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{rdb: rdb, channel: channel, local: local, log: log}
}

func (r *RedisRelay) Deliver(ctx context.Context, ev Event, payload []byte) error {
	body, err := json.Marshal(relayEnvelope{UserID: ev.UserID, Broadcast: ev.Broadcast, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish relay envelope: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and delivers locally until ctx is done.
// ready, when not nil, is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("bad relay envelope", zap.Error(err))
				continue
			}
			ev := Event{UserID: env.UserID, Broadcast: env.Broadcast}
			if err := r.local.Deliver(ctx, ev, env.Payload); err != nil && !errors.Is(err, ErrNoSession) {
				r.log.Warn("relay local delivery failed", zap.Int64("user_id", env.UserID), zap.Error(err))
			}
		}
	}
}

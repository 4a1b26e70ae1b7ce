// Package service holds the chat domain operations: the friendship state
// machine, message store and pager, presence tracking and session revocation.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
	"chat-realtime/internal/notify"
)

// TxRunner runs fn inside a transaction carried by ctx.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier queues frames for delivery once the current transaction commits.
type Notifier interface {
	Notify(ctx context.Context, events ...notify.Event)
}

// FriendCache is the fast-lookup friends set.
type FriendCache interface {
	AddFriends(ctx context.Context, a, b int64) error
	RemoveFriends(ctx context.Context, a, b int64) error
	IsFriend(ctx context.Context, a, b int64) (bool, error)
}

// UnreadCache holds per-recipient unread counters keyed by sender.
type UnreadCache interface {
	UnreadCounts(ctx context.Context, recipient int64) (map[int64]int64, bool, error)
	UnreadGeneration(ctx context.Context, recipient int64) (int64, error)
	StoreUnreadCounts(ctx context.Context, recipient, gen int64, counts map[int64]int64) (bool, error)
	InvalidateUnread(ctx context.Context, recipient int64) error
	ClearUnread(ctx context.Context, recipient, sender int64) error
}

// PresenceCache is the online set and per-identity session counters.
type PresenceCache interface {
	MarkOnline(ctx context.Context, id int64) error
	MarkOffline(ctx context.Context, id int64) error
	OnlineIDs(ctx context.Context) ([]int64, error)
	IncrSessions(ctx context.Context, id int64) (int64, error)
	DecrSessions(ctx context.Context, id int64) (int64, error)
	ResetPresence(ctx context.Context) error
}

// afterCommit runs a best-effort cache write once the durable write has
// committed. Failures are logged and never reach the caller.
func afterCommit(ctx context.Context, log *zap.Logger, what string, fn func(ctx context.Context) error) {
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			log.Warn("cache update failed", zap.String("op", what), zap.Error(err))
		}
	})
}

func notification(status, message string, from *models.User, at time.Time) models.SocketResponse {
	n := models.Notification{Status: status, Message: message, CreatedAt: at}
	if from != nil {
		summary := from.Summary()
		n.From = &summary
	}
	return models.SocketResponse{
		Destination: models.DestinationNotifications,
		Type:        models.FrameNotifications,
		Message:     message,
		Data:        n,
	}
}

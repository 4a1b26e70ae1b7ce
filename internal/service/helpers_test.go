package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/cache"
	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
	"chat-realtime/internal/notify"
)

// recordingNotifier keeps the events that would have been dispatched after commit.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, events ...notify.Event) {
	db.AfterCommit(ctx, func(context.Context) {
		n.mu.Lock()
		n.events = append(n.events, events...)
		n.mu.Unlock()
	})
}

func (n *recordingNotifier) sent() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

func newTransactor(t *testing.T) (*db.Transactor, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return db.NewTransactor(sqlx.NewDb(raw, "postgres")), mock
}

func newCache(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewStore(rdb), mr
}

func user(id int64, name string) models.User {
	return models.User{ID: id, Username: name, FirstName: name, Status: models.UserActive}
}

func notificationOf(t *testing.T, ev notify.Event) models.Notification {
	t.Helper()
	require.Equal(t, models.FrameNotifications, ev.Frame.Type)
	require.Equal(t, models.DestinationNotifications, ev.Frame.Destination)
	n, ok := ev.Frame.Data.(models.Notification)
	require.True(t, ok)
	return n
}

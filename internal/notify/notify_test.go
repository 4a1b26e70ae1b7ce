package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
)

type delivery struct {
	ev      Event
	payload []byte
}

type recordingSink struct {
	mu    sync.Mutex
	got   []delivery
	err   error
	block chan struct{}
	seen  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan struct{}, 64)}
}

func (s *recordingSink) Deliver(_ context.Context, ev Event, payload []byte) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.got = append(s.got, delivery{ev: ev, payload: payload})
	s.mu.Unlock()
	s.seen <- struct{}{}
	return s.err
}

func (s *recordingSink) deliveries() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery(nil), s.got...)
}

func waitFor(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}
}

func frame(msg string) models.SocketResponse {
	return models.SocketResponse{
		Destination: models.DestinationNotifications,
		Type:        models.FrameNotifications,
		Message:     msg,
	}
}

func TestNotifyWithoutTxDeliversImmediately(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(sink, 2, 8, zap.NewNop())
	d.Start(context.Background())
	defer d.Stop()

	d.Notify(context.Background(), ToUser(7, frame("hello")), ToAll(frame("everyone")))
	waitFor(t, sink.seen, 2)

	got := sink.deliveries()
	require.Len(t, got, 2)
	var users []int64
	for _, g := range got {
		if !g.ev.Broadcast {
			users = append(users, g.ev.UserID)
			var decoded models.SocketResponse
			require.NoError(t, json.Unmarshal(g.payload, &decoded))
			assert.Equal(t, "hello", decoded.Message)
		}
	}
	assert.Equal(t, []int64{7}, users)
}

func newMockTransactor(t *testing.T) (*db.Transactor, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return db.NewTransactor(sqlx.NewDb(raw, "postgres")), mock
}

func TestNotifyWaitsForCommit(t *testing.T) {
	tr, mock := newMockTransactor(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	sink := newRecordingSink()
	d := NewDispatcher(sink, 1, 8, zap.NewNop())
	d.Start(context.Background())
	defer d.Stop()

	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		d.Notify(ctx, ToUser(1, frame("after commit")))
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, sink.deliveries())
		return nil
	})
	require.NoError(t, err)

	waitFor(t, sink.seen, 1)
	assert.Len(t, sink.deliveries(), 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyDroppedOnRollback(t *testing.T) {
	tr, mock := newMockTransactor(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	sink := newRecordingSink()
	d := NewDispatcher(sink, 1, 8, zap.NewNop())
	d.Start(context.Background())

	boom := errors.New("boom")
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		d.Notify(ctx, ToUser(1, frame("never")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	d.Stop()
	assert.Empty(t, sink.deliveries())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	sink := newRecordingSink()
	sink.block = make(chan struct{})
	d := NewDispatcher(sink, 1, 1, zap.NewNop())
	d.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), ToUser(1, frame("burst")))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(sink.block)
	d.Stop()
	got := len(sink.deliveries())
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, 2)
}

func TestUnencodableFrameIsSwallowed(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(sink, 1, 4, zap.NewNop())
	d.Start(context.Background())

	bad := models.SocketResponse{Destination: models.DestinationPrivate, Data: make(chan int)}
	d.Notify(context.Background(), ToUser(1, bad), ToUser(1, frame("ok")))
	waitFor(t, sink.seen, 1)
	d.Stop()

	got := sink.deliveries()
	require.Len(t, got, 1)
	assert.Contains(t, string(got[0].payload), `"ok"`)
}

func TestDeliverErrorsDoNotStopWorkers(t *testing.T) {
	sink := newRecordingSink()
	sink.err = ErrNoSession
	d := NewDispatcher(sink, 1, 4, zap.NewNop())
	d.Start(context.Background())

	d.Notify(context.Background(), ToUser(1, frame("a")), ToUser(2, frame("b")))
	waitFor(t, sink.seen, 2)
	d.Stop()
	assert.Len(t, sink.deliveries(), 2)
}

func TestNotifyAfterStopIsDropped(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(sink, 1, 4, zap.NewNop())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), ToUser(1, frame("late")))
	})
	assert.Empty(t, sink.deliveries())
}

type fakeDeliverer struct {
	mu        sync.Mutex
	sessions  map[int64]int
	toUser    map[int64][][]byte
	broadcast [][]byte
	seen      chan struct{}
}

func newFakeDeliverer(sessions map[int64]int) *fakeDeliverer {
	return &fakeDeliverer{sessions: sessions, toUser: map[int64][][]byte{}, seen: make(chan struct{}, 16)}
}

func (f *fakeDeliverer) SendToUser(userID int64, payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.sessions[userID]
	if n > 0 {
		f.toUser[userID] = append(f.toUser[userID], payload)
		f.seen <- struct{}{}
	}
	return n
}

func (f *fakeDeliverer) Broadcast(payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, payload)
	f.seen <- struct{}{}
	return len(f.sessions)
}

func TestLocalSink(t *testing.T) {
	hub := newFakeDeliverer(map[int64]int{1: 2})
	sink := NewLocalSink(hub)
	ctx := context.Background()

	require.NoError(t, sink.Deliver(ctx, Event{UserID: 1}, []byte(`{}`)))
	require.ErrorIs(t, sink.Deliver(ctx, Event{UserID: 9}, []byte(`{}`)), ErrNoSession)
	require.NoError(t, sink.Deliver(ctx, Event{Broadcast: true}, []byte(`{}`)))

	assert.Len(t, hub.toUser[1], 1)
	assert.Len(t, hub.broadcast, 1)
}

func TestRedisRelayRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := newFakeDeliverer(map[int64]int{5: 1})
	relay := NewRedisRelay(rdb, "", NewLocalSink(hub), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- relay.Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	require.NoError(t, relay.Deliver(ctx, Event{UserID: 5}, []byte(`{"type":"MESSAGE"}`)))
	require.NoError(t, relay.Deliver(ctx, Event{Broadcast: true}, []byte(`{"type":"MESSAGE"}`)))
	waitFor(t, hub.seen, 2)

	hub.mu.Lock()
	assert.JSONEq(t, `{"type":"MESSAGE"}`, string(hub.toUser[5][0]))
	assert.Len(t, hub.broadcast, 1)
	hub.mu.Unlock()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

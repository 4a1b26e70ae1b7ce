// Package notify fans out frames to connected sessions once the writes that
// produced them have committed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// ErrNoSession reports that the recipient has no bound session on this node.
var ErrNoSession = errors.New("no bound session")

// Event is a frame addressed to one identity, or to every session when Broadcast is set.
type Event struct {
	UserID    int64
	Broadcast bool
	Frame     models.SocketResponse
}

// ToUser addresses frame to every session of userID.
func ToUser(userID int64, frame models.SocketResponse) Event {
	return Event{UserID: userID, Frame: frame}
}

// ToAll addresses frame to every bound session.
func ToAll(frame models.SocketResponse) Event {
	return Event{Broadcast: true, Frame: frame}
}

// Sink delivers an encoded frame.
type Sink interface {
	Deliver(ctx context.Context, ev Event, payload []byte) error
}

// Dispatcher is a bounded queue drained by a fixed pool of workers. It never
// blocks or fails the caller: a full queue drops the event.
type Dispatcher struct {
	sink    Sink
	workers int
	queue   chan Event
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. Call Start before notifying.
func NewDispatcher(sink Sink, workers, queueSize int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		sink:    sink,
		workers: workers,
		queue:   make(chan Event, queueSize),
		log:     log,
	}
}

// Start launches the workers. They run until Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ctx, ev)
			}
		}()
	}
	d.log.Info("dispatcher started", zap.Int("workers", d.workers), zap.Int("queue", cap(d.queue)))
}

// Notify hands events to the workers after the transaction carried by ctx
// commits, or immediately when ctx carries none. Events of a rolled back
// transaction are never delivered.
func (d *Dispatcher) Notify(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}
	db.AfterCommit(ctx, func(context.Context) {
		for _, ev := range events {
			d.enqueue(ev)
		}
	})
}

func (d *Dispatcher) enqueue(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		observability.IncDispatch("dropped_closed")
		return
	}
	select {
	case d.queue <- ev:
		observability.SetDispatchQueueDepth(len(d.queue))
	default:
		observability.IncDispatch("dropped_full")
		d.log.Warn("dispatch queue full, dropping event",
			zap.Int64("user_id", ev.UserID),
			zap.String("destination", ev.Frame.Destination),
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.IncDispatch("panic")
			d.log.Error("dispatch panic", zap.Any("reason", r))
		}
	}()

	payload, err := json.Marshal(ev.Frame)
	if err != nil {
		observability.IncDispatch("marshal_error")
		d.log.Error("encode frame failed", zap.String("destination", ev.Frame.Destination), zap.Error(err))
		return
	}

	err = d.sink.Deliver(ctx, ev, payload)
	switch {
	case err == nil:
		observability.IncDispatch("delivered")
	case errors.Is(err, ErrNoSession):
		observability.IncDispatch("offline")
		d.log.Debug("recipient offline, event dropped", zap.Int64("user_id", ev.UserID))
	default:
		observability.IncDispatch("deliver_error")
		d.log.Warn("deliver frame failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}

// Stop refuses new events, lets the workers drain the queue and waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

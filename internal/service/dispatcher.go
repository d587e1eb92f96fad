package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/paybot/pkg/mylogger"
	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type EventObserver interface {
	ObserveEvent(eventType string, took time.Duration, err error)
}

type DispatcherOption func(*Dispatcher)

func WithEventObserver(o EventObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// Dispatcher delivers events to a handler with one worker per shard. A user
// always maps to the same shard, so their events are handled in arrival order
// while different users proceed concurrently.
type Dispatcher struct {
	handler  Handler
	shards   []chan Event
	observer EventObserver
	logger   *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(handler Handler, workers, buffer int, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	shards := make([]chan Event, workers)
	for i := range shards {
		shards[i] = make(chan Event, buffer)
	}

	d := &Dispatcher{
		handler: handler,
		shards:  shards,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start launches the workers. Handlers run with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		d.logger,
		"Starting dispatcher",
		zap.Int("workers", len(d.shards)),
	)

	for i, ch := range d.shards {
		d.wg.Add(1)
		go d.work(ctx, i, ch)
	}
}

// Dispatch blocks while the user's shard is full.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.shards[d.shard(ev.UserID)] <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new events and waits until queued ones are handled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) shard(userID int64) int {
	return int(uint64(userID) % uint64(len(d.shards)))
}

func (d *Dispatcher) work(ctx context.Context, id int, events <-chan Event) {
	defer d.wg.Done()

	for ev := range events {
		if err := d.handle(ctx, ev); err != nil {
			mylogger.Error(
				ctx,
				d.logger,
				"Error handling event",
				zap.Int("worker", id),
				zap.Int64("user_id", ev.UserID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if d.observer != nil {
			d.observer.ObserveEvent(string(ev.Type), time.Since(start), err)
		}
	}()

	return d.handler.Handle(ctx, ev)
}

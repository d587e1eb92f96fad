package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orderingHandler struct {
	mu      sync.Mutex
	seen    map[int64][]string
	active  map[int64]bool
	overlap bool
	panicOn string
}

func (h *orderingHandler) Handle(_ context.Context, ev Event) error {
	h.mu.Lock()
	if h.active[ev.UserID] {
		h.overlap = true
	}
	h.active[ev.UserID] = true
	h.mu.Unlock()

	if ev.Payload == h.panicOn {
		h.mu.Lock()
		h.active[ev.UserID] = false
		h.mu.Unlock()
		panic("handler exploded")
	}

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	h.seen[ev.UserID] = append(h.seen[ev.UserID], ev.Payload)
	h.active[ev.UserID] = false
	h.mu.Unlock()

	return nil
}

func TestDispatcher_PerUserOrdering(t *testing.T) {
	handler := &orderingHandler{
		seen:    make(map[int64][]string),
		active:  make(map[int64]bool),
		panicOn: "boom",
	}

	d := NewDispatcher(handler, 4, 16, zap.NewNop())
	d.Start(context.Background())

	ctx := context.Background()
	users := []int64{1, 2, 3, 5, 8}

	for i := 0; i < 20; i++ {
		for _, user := range users {
			require.NoError(t, d.Dispatch(ctx, Event{Type: EventText, UserID: user, Payload: string(rune('a' + i))}))
		}
	}
	require.NoError(t, d.Dispatch(ctx, Event{Type: EventText, UserID: 1, Payload: "boom"}))
	require.NoError(t, d.Dispatch(ctx, Event{Type: EventText, UserID: 1, Payload: "after"}))

	d.Stop()

	require.False(t, handler.overlap)
	for _, user := range users {
		got := handler.seen[user]
		if user == 1 {
			require.Len(t, got, 21)
			require.Equal(t, "after", got[20])
			got = got[:20]
		}
		require.Len(t, got, 20)
		for i, payload := range got {
			require.Equal(t, string(rune('a'+i)), payload)
		}
	}
}

func TestDispatcher_RejectsAfterStop(t *testing.T) {
	d := NewDispatcher(&orderingHandler{seen: map[int64][]string{}, active: map[int64]bool{}}, 2, 1, zap.NewNop())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	err := d.Dispatch(context.Background(), Event{Type: EventText, UserID: 1})
	require.ErrorIs(t, err, ErrDispatcherStopped)
}

func TestDispatcher_DispatchHonorsContext(t *testing.T) {
	d := NewDispatcher(&orderingHandler{seen: map[int64][]string{}, active: map[int64]bool{}}, 1, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, Event{Type: EventText, UserID: 1})
	require.ErrorIs(t, err, context.Canceled)
}

type eventCounter struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (c *eventCounter) ObserveEvent(_ string, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func TestDispatcher_ObservesPanicsAsFailures(t *testing.T) {
	handler := &orderingHandler{
		seen:    make(map[int64][]string),
		active:  make(map[int64]bool),
		panicOn: "boom",
	}
	counter := &eventCounter{}

	d := NewDispatcher(handler, 2, 4, zap.NewNop(), WithEventObserver(counter))
	d.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, Event{Type: EventText, UserID: 1, Payload: "a"}))
	require.NoError(t, d.Dispatch(ctx, Event{Type: EventText, UserID: 1, Payload: "boom"}))
	require.NoError(t, d.Dispatch(ctx, Event{Type: EventText, UserID: 2, Payload: "b"}))
	d.Stop()

	counter.mu.Lock()
	defer counter.mu.Unlock()
	require.Equal(t, 2, counter.ok)
	require.Equal(t, 1, counter.failed)
}

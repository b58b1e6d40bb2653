package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return r.err
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, ev := range r.events {
		names[i] = ev.Name
	}
	return names
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("inventory:update", "product-1", map[string]int{"quantity": 3})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "inventory:update", ev.Name)
	assert.Equal(t, "product-1", ev.Key)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMultiAttemptsEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	healthy := &recordingSink{}

	err := Multi{failing, healthy}.Publish(context.Background(), NewEvent("a", "k", nil))
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, failing.names())
	assert.Equal(t, []string{"a"}, healthy.names())
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := hub.Subscribe(4)
	second, cancelSecond := hub.Subscribe(4)
	defer cancelSecond()

	require.NoError(t, hub.Publish(context.Background(), NewEvent("alerts:new", "product-1", nil)))

	assert.Equal(t, "alerts:new", (<-first).Name)
	assert.Equal(t, "alerts:new", (<-second).Name)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, hub.Len())
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, NewEvent("one", "k", nil), NewEvent("two", "k", nil)))

	assert.Equal(t, "one", (<-ch).Name)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Name)
	default:
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	hub.Close()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	late, _ := hub.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	require.NoError(t, d.Publish(ctx, NewEvent("a", "k", nil), NewEvent("b", "k", nil)))
	require.NoError(t, d.Publish(ctx, NewEvent("c", "k", nil)))

	assert.Eventually(t, func() bool { return len(sink.names()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sink.names())

	cancel()
	<-done
}

func TestDispatcherSinkErrorIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker unavailable")}
	d := NewDispatcher(sink, 1)

	assert.NoError(t, d.Publish(context.Background(), NewEvent("a", "k", nil)))
	// queue is full now; the batch is dropped without blocking
	assert.NoError(t, d.Publish(context.Background(), NewEvent("b", "k", nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, []string{"a"}, sink.names())
}

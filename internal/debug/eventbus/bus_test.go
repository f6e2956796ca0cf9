package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribersOfKind(t *testing.T) {
	bus := NewBus(8)
	defer bus.Shutdown()

	var mu sync.Mutex
	var got []Kind
	done := make(chan struct{}, 2)
	bus.Subscribe(KindLoadStarted, HandlerFunc{Name: "a", Fn: func(e Event) {
		mu.Lock()
		got = append(got, e.Kind)
		mu.Unlock()
		done <- struct{}{}
	}})

	bus.Publish(Event{Kind: KindLoadCompleted})
	bus.Publish(Event{Kind: KindLoadStarted, Data: map[string]interface{}{"path": "a.dng"}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{KindLoadStarted}, got)
}

func TestBusUnsubscribeByID(t *testing.T) {
	bus := NewBus(8)
	defer bus.Shutdown()

	h := HandlerFunc{Name: "x", Fn: func(Event) {}}
	bus.Subscribe(KindFrameSkipped, h)
	bus.Unsubscribe(KindFrameSkipped, h)

	bus.mu.RLock()
	defer bus.mu.RUnlock()
	assert.Empty(t, bus.subscribers[KindFrameSkipped])
}

func TestPublishAfterShutdownDoesNotBlock(t *testing.T) {
	bus := NewBus(1)
	bus.Shutdown()
	bus.Shutdown()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindLoadFailed})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		require.Fail(t, "publish blocked after shutdown")
	}
}

func TestPanickingHandlerDoesNotStopWorker(t *testing.T) {
	bus := NewBus(8)
	defer bus.Shutdown()

	delivered := make(chan struct{}, 1)
	bus.Subscribe(KindLoadIgnored, HandlerFunc{Name: "boom", Fn: func(Event) { panic("boom") }})
	bus.Subscribe(KindLoadCompleted, HandlerFunc{Name: "ok", Fn: func(Event) { delivered <- struct{}{} }})

	bus.Publish(Event{Kind: KindLoadIgnored})
	bus.Publish(Event{Kind: KindLoadCompleted})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after handler panic")
	}
}

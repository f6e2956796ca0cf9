package eventbus

import (
	"context"
	"sync"
	"time"
)

type Kind string

const (
	KindLoadStarted      Kind = "load_started"
	KindLoadCompleted    Kind = "load_completed"
	KindLoadFailed       Kind = "load_failed"
	KindLoadIgnored      Kind = "load_ignored"
	KindResourceCreated  Kind = "resource_created"
	KindResourceReleased Kind = "resource_released"
	KindResourceUnknown  Kind = "resource_untracked_release"
	KindTimingCompleted  Kind = "timing_completed"
	KindFrameSkipped     Kind = "frame_skipped"
)

type Event struct {
	Kind      Kind
	Timestamp time.Time
	Data      map[string]interface{}
}

type Handler interface {
	Handle(event Event)
	ID() string
}

// HandlerFunc adapts a function to Handler under a fixed subscription id.
type HandlerFunc struct {
	Name string
	Fn   func(Event)
}

func (h HandlerFunc) Handle(event Event) { h.Fn(event) }
func (h HandlerFunc) ID() string         { return h.Name }

// Publisher is the narrow view handed to producers.
type Publisher interface {
	Publish(event Event)
}

type Bus struct {
	subscribers map[Kind][]Handler
	mu          sync.RWMutex
	buffer      chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())

	bus := &Bus{
		subscribers: make(map[Kind][]Handler),
		buffer:      make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	bus.startWorker()
	return bus
}

// Publish never blocks; events are dropped when the buffer is full or the
// bus has shut down.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.buffer <- event:
	default:
	}
}

func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[kind] = append(b.subscribers[kind], handler)
}

func (b *Bus) Unsubscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[kind]
	for i, h := range handlers {
		if h.ID() == handler.ID() {
			b.subscribers[kind] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
}

func (b *Bus) Shutdown() {
	b.closeOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
	})
}

func (b *Bus) startWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case event := <-b.buffer:
				b.dispatch(event)
			case <-b.ctx.Done():
				return
			}
		}
	}()
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[event.Kind]))
	copy(handlers, b.subscribers[event.Kind])
	b.mu.RUnlock()

	for _, handler := range handlers {
		func(h Handler) {
			defer func() {
				// a misbehaving subscriber must not stop the worker
				_ = recover()
			}()
			h.Handle(event)
		}(handler)
	}
}

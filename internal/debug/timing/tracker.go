package timing

import (
	"context"
	"sync"
	"time"

	"photocrispy/internal/debug/eventbus"
)

type contextKey struct{}

type span struct {
	operation string
	start     time.Time
}

// Observer receives every completed duration, e.g. a prometheus histogram.
type Observer func(operation string, d time.Duration)

type Tracker struct {
	timings   map[string][]time.Duration
	mu        sync.RWMutex
	publisher eventbus.Publisher
	observer  Observer
	enabled   bool
	maxKept   int
}

func NewTracker(publisher eventbus.Publisher) *Tracker {
	return &Tracker{
		timings:   make(map[string][]time.Duration),
		publisher: publisher,
		enabled:   true,
		maxKept:   256,
	}
}

func (tt *Tracker) SetObserver(observer Observer) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.observer = observer
}

// StartTiming returns ctx carrying the start of operation. Pass the result
// to EndTiming.
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	tt.mu.RLock()
	enabled := tt.enabled
	tt.mu.RUnlock()
	if !enabled {
		return ctx
	}

	return context.WithValue(ctx, contextKey{}, span{operation: operation, start: time.Now()})
}

func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	s, ok := ctx.Value(contextKey{}).(span)
	if !ok {
		return 0
	}

	duration := time.Since(s.start)

	tt.mu.Lock()
	list := append(tt.timings[s.operation], duration)
	if len(list) > tt.maxKept {
		list = list[len(list)-tt.maxKept:]
	}
	tt.timings[s.operation] = list
	observer := tt.observer
	tt.mu.Unlock()

	if observer != nil {
		observer(s.operation, duration)
	}

	if tt.publisher != nil {
		tt.publisher.Publish(eventbus.Event{
			Kind: eventbus.KindTimingCompleted,
			Data: map[string]interface{}{
				"operation": s.operation,
				"duration":  duration,
			},
		})
	}

	return duration
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return 0
	}

	var total time.Duration
	for _, duration := range timings {
		total += duration
	}

	return total / time.Duration(len(timings))
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}
